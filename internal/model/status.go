package model

import "strconv"

// GlobalStatus is the lifecycle state of a global transaction. The numeric
// value is the persisted code.
type GlobalStatus int

const (
	GlobalUnknown GlobalStatus = iota
	GlobalBegin
	GlobalCommitting
	GlobalCommitRetrying
	GlobalRollingBack
	GlobalRollbackRetrying
	GlobalTimeoutRollingBack
	GlobalTimeoutRollbackRetrying
	GlobalAsyncCommitting
	GlobalCommitted
	GlobalCommitFailed
	GlobalRollbacked
	GlobalRollbackFailed
	GlobalTimeoutRollbacked
	GlobalTimeoutRollbackFailed
	GlobalFinished
	GlobalCommitRetryTimeout
	GlobalRollbackRetryTimeout
)

var globalStatusNames = [...]string{
	"UnKnown",
	"Begin",
	"Committing",
	"CommitRetrying",
	"RollingBack",
	"RollbackRetrying",
	"TimeoutRollingBack",
	"TimeoutRollbackRetrying",
	"AsyncCommitting",
	"Committed",
	"CommitFailed",
	"Rollbacked",
	"RollbackFailed",
	"TimeoutRollbacked",
	"TimeoutRollbackFailed",
	"Finished",
	"CommitRetryTimeout",
	"RollbackRetryTimeout",
}

// GlobalStatusOf maps a persisted code to its status.
func GlobalStatusOf(code int) (GlobalStatus, bool) {
	if code < 0 || code >= len(globalStatusNames) {
		return GlobalUnknown, false
	}
	return GlobalStatus(code), true
}

// Code returns the persisted numeric code.
func (s GlobalStatus) Code() int { return int(s) }

func (s GlobalStatus) String() string {
	if s < 0 || int(s) >= len(globalStatusNames) {
		return "GlobalStatus(" + strconv.Itoa(int(s)) + ")"
	}
	return globalStatusNames[s]
}

// BranchStatus is the lifecycle state of a branch transaction.
type BranchStatus int

const (
	BranchUnknown BranchStatus = iota
	BranchRegistered
	BranchPhaseOneDone
	BranchPhaseOneFailed
	BranchPhaseOneTimeout
	BranchPhaseTwoCommitted
	BranchPhaseTwoCommitFailedRetryable
	BranchPhaseTwoCommitFailedUnretryable
	BranchPhaseTwoRollbacked
	BranchPhaseTwoRollbackFailedRetryable
	BranchPhaseTwoRollbackFailedUnretryable
)

var branchStatusNames = [...]string{
	"Unknown",
	"Registered",
	"PhaseOne_Done",
	"PhaseOne_Failed",
	"PhaseOne_Timeout",
	"PhaseTwo_Committed",
	"PhaseTwo_CommitFailed_Retryable",
	"PhaseTwo_CommitFailed_Unretryable",
	"PhaseTwo_Rollbacked",
	"PhaseTwo_RollbackFailed_Retryable",
	"PhaseTwo_RollbackFailed_Unretryable",
}

// BranchStatusOf maps a persisted code to its status.
func BranchStatusOf(code int) (BranchStatus, bool) {
	if code < 0 || code >= len(branchStatusNames) {
		return BranchUnknown, false
	}
	return BranchStatus(code), true
}

// Code returns the persisted numeric code.
func (s BranchStatus) Code() int { return int(s) }

func (s BranchStatus) String() string {
	if s < 0 || int(s) >= len(branchStatusNames) {
		return "BranchStatus(" + strconv.Itoa(int(s)) + ")"
	}
	return branchStatusNames[s]
}

// BranchType identifies the resource protocol of a branch. Names are the
// persisted form.
type BranchType int

const (
	BranchAT BranchType = iota
	BranchTCC
	BranchSAGA
	BranchXA
)

var branchTypeNames = [...]string{"AT", "TCC", "SAGA", "XA"}

// ParseBranchType maps a persisted name to its type. Matching is exact.
func ParseBranchType(name string) (BranchType, bool) {
	for i, n := range branchTypeNames {
		if n == name {
			return BranchType(i), true
		}
	}
	return BranchAT, false
}

func (t BranchType) String() string {
	if t < 0 || int(t) >= len(branchTypeNames) {
		return "BranchType(" + strconv.Itoa(int(t)) + ")"
	}
	return branchTypeNames[t]
}
