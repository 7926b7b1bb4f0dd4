// Package session holds the coordinator's runtime view of transactions.
package session

import "pkt.systems/tcconsole/internal/model"

// Kind tags a Storable.
type Kind int

const (
	KindGlobal Kind = iota + 1
	KindBranch
)

func (k Kind) String() string {
	switch k {
	case KindGlobal:
		return "global"
	case KindBranch:
		return "branch"
	default:
		return "unknown"
	}
}

// Storable is implemented by every session that can be persisted as a
// record.
type Storable interface {
	SessionKind() Kind
}

// GlobalSession is a live global transaction together with the branches it
// owns.
type GlobalSession struct {
	XID                     string
	TransactionID           int64
	Status                  model.GlobalStatus
	ApplicationID           string
	TransactionServiceGroup string
	TransactionName         string
	Timeout                 int32
	BeginTime               int64
	ApplicationData         string

	branches []*BranchSession
}

// SessionKind implements Storable.
func (*GlobalSession) SessionKind() Kind { return KindGlobal }

// Add appends b to the owned branches. Nil is ignored.
func (g *GlobalSession) Add(b *BranchSession) {
	if b != nil {
		g.branches = append(g.branches, b)
	}
}

// Branches returns the owned branches in insertion order.
func (g *GlobalSession) Branches() []*BranchSession {
	if g == nil {
		return nil
	}
	return g.branches
}

// BranchSession is one resource participant enlisted under a global
// transaction. XID references the owner by key.
type BranchSession struct {
	XID             string
	TransactionID   int64
	BranchID        int64
	BranchType      model.BranchType
	ResourceGroupID string
	ResourceID      string
	ClientID        string
	ApplicationData string
	Status          model.BranchStatus
}

// SessionKind implements Storable.
func (*BranchSession) SessionKind() Kind { return KindBranch }
