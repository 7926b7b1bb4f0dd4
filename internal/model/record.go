// Package model defines the records the coordinator persists and the
// field-map codecs that read them from a hash-style store.
package model

import "time"

// GlobalLockRecord is one held lock on a resource row.
type GlobalLockRecord struct {
	XID           string
	TransactionID int64
	BranchID      int64
	ResourceID    string
	TableName     string
	PK            string
	RowKey        string
	GmtCreate     time.Time
	GmtModified   time.Time
}

// GlobalTransactionRecord is the persisted form of a global transaction.
// Status holds the numeric code and is not validated here.
type GlobalTransactionRecord struct {
	XID                     string
	TransactionID           int64
	Status                  int
	ApplicationID           string
	TransactionServiceGroup string
	TransactionName         string
	Timeout                 int32
	BeginTime               int64
	ApplicationData         string
	GmtCreate               time.Time
	GmtModified             time.Time
}

// BranchTransactionRecord is the persisted form of one branch. BranchType
// holds the type name and Status the numeric code.
type BranchTransactionRecord struct {
	XID             string
	TransactionID   int64
	BranchID        int64
	ResourceGroupID string
	ResourceID      string
	BranchType      string
	Status          int
	ClientID        string
	ApplicationData string
	GmtCreate       time.Time
	GmtModified     time.Time
}
