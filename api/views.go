package api

// GlobalLockView is the caller-facing projection of a global lock. Numeric
// ids are serialised as strings so they survive JavaScript clients.
type GlobalLockView struct {
	XID           string `json:"xid"`
	TransactionID int64  `json:"transactionId,string"`
	BranchID      int64  `json:"branchId,string"`
	ResourceID    string `json:"resourceId"`
	TableName     string `json:"tableName"`
	PK            string `json:"pk"`
	RowKey        string `json:"rowKey"`
	// GmtCreate and GmtModified are unix millis; 0 when unknown.
	GmtCreate   int64 `json:"gmtCreate"`
	GmtModified int64 `json:"gmtModified"`
}

// GlobalSessionView is the caller-facing projection of a global session.
type GlobalSessionView struct {
	XID           string `json:"xid"`
	TransactionID int64  `json:"transactionId"`
	// Status is the numeric global status code.
	Status                  int    `json:"status"`
	ApplicationID           string `json:"applicationId"`
	TransactionServiceGroup string `json:"transactionServiceGroup"`
	TransactionName         string `json:"transactionName"`
	// Timeout is in milliseconds.
	Timeout int64 `json:"timeout"`
	// BeginTime is unix millis.
	BeginTime       int64  `json:"beginTime"`
	ApplicationData string `json:"applicationData"`
	// BranchSessionVOs is a set: unique by branch id, ordered by branch id,
	// never nil.
	BranchSessionVOs []BranchSessionView `json:"branchSessionVOs"`
}

// BranchSessionView is the caller-facing projection of a branch session.
type BranchSessionView struct {
	XID             string `json:"xid"`
	TransactionID   int64  `json:"transactionId"`
	BranchID        int64  `json:"branchId"`
	ResourceGroupID string `json:"resourceGroupId"`
	ResourceID      string `json:"resourceId"`
	// BranchType is the type name (AT, TCC, SAGA, XA).
	BranchType string `json:"branchType"`
	// Status is the numeric branch status code.
	Status          int    `json:"status"`
	ClientID        string `json:"clientId"`
	ApplicationData string `json:"applicationData"`
	// GmtCreate and GmtModified are never populated on views.
	GmtCreate   *int64 `json:"gmtCreate"`
	GmtModified *int64 `json:"gmtModified"`
}
