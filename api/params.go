// Package api defines the caller-facing query parameters, view objects and
// page envelope of the coordinator console.
package api

// GlobalLockParam selects global lock records.
type GlobalLockParam struct {
	// XID is the global transaction identifier owning the lock.
	XID string `json:"xid,omitempty"`
	// TransactionID is the decimal numeric transaction id.
	TransactionID string `json:"transactionId,omitempty"`
	// TableName filters by locked table. Not supported by key-value stores.
	TableName string `json:"tableName,omitempty"`
	// BranchID filters by owning branch. Not supported by key-value stores.
	BranchID string `json:"branchId,omitempty"`
	// PageNum is the 1-based page index.
	PageNum int `json:"pageNum"`
	// PageSize is the number of records per page.
	PageSize int `json:"pageSize"`
	// Cursor resumes an enumeration from a previous PageResult.NextCursor.
	// When set, the page is the first PageSize records after the cursor.
	Cursor string `json:"cursor,omitempty"`
}

// GlobalSessionParam selects global transaction sessions.
type GlobalSessionParam struct {
	// XID selects one session exactly.
	XID string `json:"xid,omitempty"`
	// ApplicationID filters by owning application. Not supported by key-value stores.
	ApplicationID string `json:"applicationId,omitempty"`
	// TransactionName filters by transaction name. Not supported by key-value stores.
	TransactionName string `json:"transactionName,omitempty"`
	// Status keeps only sessions with this global status code.
	Status *int `json:"status,omitempty"`
	// WithBranch loads the branch sessions of every returned session.
	WithBranch bool `json:"withBranch,omitempty"`
	// TimeStart and TimeEnd bound the begin time in unix millis. Not
	// supported by key-value stores.
	TimeStart int64 `json:"timeStart,omitempty"`
	TimeEnd   int64 `json:"timeEnd,omitempty"`
	PageNum   int   `json:"pageNum"`
	PageSize  int   `json:"pageSize"`
	// Cursor resumes an enumeration from a previous PageResult.NextCursor.
	Cursor string `json:"cursor,omitempty"`
}
