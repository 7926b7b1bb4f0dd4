// Package convert maps transaction state between its persisted records,
// runtime sessions and caller-facing views. Every function is pure.
package convert

import (
	"sort"

	"pkt.systems/tcconsole/api"
	"pkt.systems/tcconsole/internal/failure"
	"pkt.systems/tcconsole/internal/model"
	"pkt.systems/tcconsole/internal/session"
)

// GlobalSession builds a runtime session from rec. A nil record yields a nil
// session. Storage timestamps are not carried.
func GlobalSession(rec *model.GlobalTransactionRecord) (*session.GlobalSession, error) {
	if rec == nil {
		return nil, nil
	}
	status, ok := model.GlobalStatusOf(rec.Status)
	if !ok {
		return nil, failure.InvalidArgument("unknown global status %d for %s", rec.Status, rec.XID)
	}
	return &session.GlobalSession{
		XID:                     rec.XID,
		TransactionID:           rec.TransactionID,
		Status:                  status,
		ApplicationID:           rec.ApplicationID,
		TransactionServiceGroup: rec.TransactionServiceGroup,
		TransactionName:         rec.TransactionName,
		Timeout:                 rec.Timeout,
		BeginTime:               rec.BeginTime,
		ApplicationData:         rec.ApplicationData,
	}, nil
}

// BranchSession builds a runtime branch from rec. A nil record yields a nil
// session.
func BranchSession(rec *model.BranchTransactionRecord) (*session.BranchSession, error) {
	if rec == nil {
		return nil, nil
	}
	branchType, ok := model.ParseBranchType(rec.BranchType)
	if !ok {
		return nil, failure.InvalidArgument("unknown branch type %q for branch %d", rec.BranchType, rec.BranchID)
	}
	status, ok := model.BranchStatusOf(rec.Status)
	if !ok {
		return nil, failure.InvalidArgument("unknown branch status %d for branch %d", rec.Status, rec.BranchID)
	}
	return &session.BranchSession{
		XID:             rec.XID,
		TransactionID:   rec.TransactionID,
		BranchID:        rec.BranchID,
		BranchType:      branchType,
		ResourceGroupID: rec.ResourceGroupID,
		ResourceID:      rec.ResourceID,
		ClientID:        rec.ClientID,
		ApplicationData: rec.ApplicationData,
		Status:          status,
	}, nil
}

// GlobalRecord is the inverse of GlobalSession. s must be a non-nil
// *session.GlobalSession.
func GlobalRecord(s session.Storable) (*model.GlobalTransactionRecord, error) {
	g, ok := s.(*session.GlobalSession)
	if !ok || g == nil {
		return nil, failure.TypeMismatch("*session.GlobalSession", s)
	}
	return &model.GlobalTransactionRecord{
		XID:                     g.XID,
		TransactionID:           g.TransactionID,
		Status:                  g.Status.Code(),
		ApplicationID:           g.ApplicationID,
		TransactionServiceGroup: g.TransactionServiceGroup,
		TransactionName:         g.TransactionName,
		Timeout:                 g.Timeout,
		BeginTime:               g.BeginTime,
		ApplicationData:         g.ApplicationData,
	}, nil
}

// BranchRecord is the inverse of BranchSession. s must be a non-nil
// *session.BranchSession.
func BranchRecord(s session.Storable) (*model.BranchTransactionRecord, error) {
	b, ok := s.(*session.BranchSession)
	if !ok || b == nil {
		return nil, failure.TypeMismatch("*session.BranchSession", s)
	}
	return &model.BranchTransactionRecord{
		XID:             b.XID,
		TransactionID:   b.TransactionID,
		BranchID:        b.BranchID,
		ResourceGroupID: b.ResourceGroupID,
		ResourceID:      b.ResourceID,
		BranchType:      b.BranchType.String(),
		Status:          b.Status.Code(),
		ClientID:        b.ClientID,
		ApplicationData: b.ApplicationData,
	}, nil
}

// GlobalSessionViews flattens sessions into views, skipping nil entries. The
// result is never nil.
func GlobalSessionViews(sessions []*session.GlobalSession) []api.GlobalSessionView {
	views := make([]api.GlobalSessionView, 0, len(sessions))
	for _, s := range sessions {
		if s == nil {
			continue
		}
		views = append(views, GlobalSessionView(s))
	}
	return views
}

// GlobalSessionView flattens one session and its branches.
func GlobalSessionView(s *session.GlobalSession) api.GlobalSessionView {
	return api.GlobalSessionView{
		XID:                     s.XID,
		TransactionID:           s.TransactionID,
		Status:                  s.Status.Code(),
		ApplicationID:           s.ApplicationID,
		TransactionServiceGroup: s.TransactionServiceGroup,
		TransactionName:         s.TransactionName,
		Timeout:                 int64(s.Timeout),
		BeginTime:               s.BeginTime,
		ApplicationData:         s.ApplicationData,
		BranchSessionVOs:        BranchSessionViews(s.Branches()),
	}
}

// BranchSessionViews projects branches into a set keyed by branch id. The
// first occurrence of an id wins; the result is ordered by branch id and is
// never nil. View timestamps are left nil.
func BranchSessionViews(branches []*session.BranchSession) []api.BranchSessionView {
	views := make([]api.BranchSessionView, 0, len(branches))
	seen := make(map[int64]struct{}, len(branches))
	for _, b := range branches {
		if b == nil {
			continue
		}
		if _, dup := seen[b.BranchID]; dup {
			continue
		}
		seen[b.BranchID] = struct{}{}
		views = append(views, api.BranchSessionView{
			XID:             b.XID,
			TransactionID:   b.TransactionID,
			BranchID:        b.BranchID,
			ResourceGroupID: b.ResourceGroupID,
			ResourceID:      b.ResourceID,
			BranchType:      b.BranchType.String(),
			Status:          b.Status.Code(),
			ClientID:        b.ClientID,
			ApplicationData: b.ApplicationData,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].BranchID < views[j].BranchID })
	return views
}

// GlobalLockView projects a lock record. Zero timestamps map to 0.
func GlobalLockView(rec *model.GlobalLockRecord) api.GlobalLockView {
	view := api.GlobalLockView{
		XID:           rec.XID,
		TransactionID: rec.TransactionID,
		BranchID:      rec.BranchID,
		ResourceID:    rec.ResourceID,
		TableName:     rec.TableName,
		PK:            rec.PK,
		RowKey:        rec.RowKey,
	}
	if !rec.GmtCreate.IsZero() {
		view.GmtCreate = rec.GmtCreate.UnixMilli()
	}
	if !rec.GmtModified.IsZero() {
		view.GmtModified = rec.GmtModified.UnixMilli()
	}
	return view
}
