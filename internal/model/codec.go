package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrDecode marks a stored field map that does not form a valid record.
var ErrDecode = errors.New("model: decode failure")

// Stored field names.
const (
	FieldXID                     = "xid"
	FieldTransactionID           = "transactionId"
	FieldBranchID                = "branchId"
	FieldResourceID              = "resourceId"
	FieldTableName               = "tableName"
	FieldPK                      = "pk"
	FieldRowKey                  = "rowKey"
	FieldStatus                  = "status"
	FieldApplicationID           = "applicationId"
	FieldTransactionServiceGroup = "transactionServiceGroup"
	FieldTransactionName         = "transactionName"
	FieldTimeout                 = "timeout"
	FieldBeginTime               = "beginTime"
	FieldApplicationData         = "applicationData"
	FieldResourceGroupID         = "resourceGroupId"
	FieldBranchType              = "branchType"
	FieldClientID                = "clientId"
	FieldGmtCreate               = "gmtCreate"
	FieldGmtModified             = "gmtModified"
)

// DecodeGlobalLock decodes a lock hash. An empty map yields (nil, nil).
func DecodeGlobalLock(fields map[string]string) (*GlobalLockRecord, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	r := fieldReader{fields: fields}
	rec := &GlobalLockRecord{
		XID:           r.required(FieldXID),
		TransactionID: r.num64(FieldTransactionID, true),
		BranchID:      r.num64(FieldBranchID, false),
		ResourceID:    r.str(FieldResourceID),
		TableName:     r.str(FieldTableName),
		PK:            r.str(FieldPK),
		RowKey:        r.str(FieldRowKey),
		GmtCreate:     r.millis(FieldGmtCreate),
		GmtModified:   r.millis(FieldGmtModified),
	}
	if err := r.err("global lock"); err != nil {
		return nil, err
	}
	return rec, nil
}

// EncodeGlobalLock renders rec as a field map. Zero times are omitted.
func EncodeGlobalLock(rec *GlobalLockRecord) map[string]string {
	if rec == nil {
		return nil
	}
	w := fieldWriter{}
	w.str(FieldXID, rec.XID)
	w.num(FieldTransactionID, rec.TransactionID)
	w.num(FieldBranchID, rec.BranchID)
	w.str(FieldResourceID, rec.ResourceID)
	w.str(FieldTableName, rec.TableName)
	w.str(FieldPK, rec.PK)
	w.str(FieldRowKey, rec.RowKey)
	w.millis(FieldGmtCreate, rec.GmtCreate)
	w.millis(FieldGmtModified, rec.GmtModified)
	return w
}

// DecodeGlobalTransaction decodes a global session hash. An empty map yields
// (nil, nil).
func DecodeGlobalTransaction(fields map[string]string) (*GlobalTransactionRecord, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	r := fieldReader{fields: fields}
	rec := &GlobalTransactionRecord{
		XID:                     r.required(FieldXID),
		TransactionID:           r.num64(FieldTransactionID, true),
		Status:                  r.code(FieldStatus, true),
		ApplicationID:           r.str(FieldApplicationID),
		TransactionServiceGroup: r.str(FieldTransactionServiceGroup),
		TransactionName:         r.str(FieldTransactionName),
		Timeout:                 r.num32(FieldTimeout),
		BeginTime:               r.num64(FieldBeginTime, false),
		ApplicationData:         r.str(FieldApplicationData),
		GmtCreate:               r.millis(FieldGmtCreate),
		GmtModified:             r.millis(FieldGmtModified),
	}
	if err := r.err("global transaction"); err != nil {
		return nil, err
	}
	return rec, nil
}

// EncodeGlobalTransaction renders rec as a field map.
func EncodeGlobalTransaction(rec *GlobalTransactionRecord) map[string]string {
	if rec == nil {
		return nil
	}
	w := fieldWriter{}
	w.str(FieldXID, rec.XID)
	w.num(FieldTransactionID, rec.TransactionID)
	w.num(FieldStatus, int64(rec.Status))
	w.str(FieldApplicationID, rec.ApplicationID)
	w.str(FieldTransactionServiceGroup, rec.TransactionServiceGroup)
	w.str(FieldTransactionName, rec.TransactionName)
	w.num(FieldTimeout, int64(rec.Timeout))
	w.num(FieldBeginTime, rec.BeginTime)
	w.str(FieldApplicationData, rec.ApplicationData)
	w.millis(FieldGmtCreate, rec.GmtCreate)
	w.millis(FieldGmtModified, rec.GmtModified)
	return w
}

// DecodeBranchTransaction decodes a branch hash. An empty map yields
// (nil, nil).
func DecodeBranchTransaction(fields map[string]string) (*BranchTransactionRecord, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	r := fieldReader{fields: fields}
	rec := &BranchTransactionRecord{
		XID:             r.required(FieldXID),
		TransactionID:   r.num64(FieldTransactionID, true),
		BranchID:        r.num64(FieldBranchID, true),
		ResourceGroupID: r.str(FieldResourceGroupID),
		ResourceID:      r.str(FieldResourceID),
		BranchType:      r.required(FieldBranchType),
		Status:          r.code(FieldStatus, true),
		ClientID:        r.str(FieldClientID),
		ApplicationData: r.str(FieldApplicationData),
		GmtCreate:       r.millis(FieldGmtCreate),
		GmtModified:     r.millis(FieldGmtModified),
	}
	if err := r.err("branch transaction"); err != nil {
		return nil, err
	}
	return rec, nil
}

// EncodeBranchTransaction renders rec as a field map.
func EncodeBranchTransaction(rec *BranchTransactionRecord) map[string]string {
	if rec == nil {
		return nil
	}
	w := fieldWriter{}
	w.str(FieldXID, rec.XID)
	w.num(FieldTransactionID, rec.TransactionID)
	w.num(FieldBranchID, rec.BranchID)
	w.str(FieldResourceGroupID, rec.ResourceGroupID)
	w.str(FieldResourceID, rec.ResourceID)
	w.str(FieldBranchType, rec.BranchType)
	w.num(FieldStatus, int64(rec.Status))
	w.str(FieldClientID, rec.ClientID)
	w.str(FieldApplicationData, rec.ApplicationData)
	w.millis(FieldGmtCreate, rec.GmtCreate)
	w.millis(FieldGmtModified, rec.GmtModified)
	return w
}

// fieldReader collects the first problem encountered so decoders read
// straight through.
type fieldReader struct {
	fields  map[string]string
	problem string
}

func (r *fieldReader) fail(format string, args ...any) {
	if r.problem == "" {
		r.problem = fmt.Sprintf(format, args...)
	}
}

func (r *fieldReader) err(kind string) error {
	if r.problem == "" {
		return nil
	}
	return fmt.Errorf("%w: %s: %s", ErrDecode, kind, r.problem)
}

func (r *fieldReader) str(name string) string {
	return r.fields[name]
}

func (r *fieldReader) required(name string) string {
	v := r.fields[name]
	if strings.TrimSpace(v) == "" {
		r.fail("%s missing", name)
	}
	return v
}

func (r *fieldReader) num64(name string, required bool) int64 {
	raw, ok := r.fields[name]
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		if required {
			r.fail("%s missing", name)
		}
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		r.fail("%s %q not an integer", name, raw)
		return 0
	}
	return v
}

func (r *fieldReader) code(name string, required bool) int {
	v := r.num64(name, required)
	if v < math.MinInt32 || v > math.MaxInt32 {
		r.fail("%s out of range", name)
		return 0
	}
	return int(v)
}

func (r *fieldReader) num32(name string) int32 {
	v := r.num64(name, false)
	if v < math.MinInt32 || v > math.MaxInt32 {
		r.fail("%s out of range", name)
		return 0
	}
	return int32(v)
}

func (r *fieldReader) millis(name string) time.Time {
	v := r.num64(name, false)
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}

type fieldWriter map[string]string

func (w fieldWriter) str(name, v string) {
	if v != "" {
		w[name] = v
	}
}

func (w fieldWriter) num(name string, v int64) {
	w[name] = strconv.FormatInt(v, 10)
}

func (w fieldWriter) millis(name string, t time.Time) {
	if !t.IsZero() {
		w[name] = strconv.FormatInt(t.UnixMilli(), 10)
	}
}
