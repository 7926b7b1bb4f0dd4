// Package xid derives global transaction identifiers of the form
// host:port:transactionId.
package xid

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Generator regenerates XIDs for one coordinator address.
type Generator struct {
	// Address is the coordinator's host:port at issuance time.
	Address string
}

// Validate checks Address is a host:port pair with a numeric port.
func (g Generator) Validate() error {
	host, port, err := net.SplitHostPort(g.Address)
	if err != nil {
		return fmt.Errorf("xid: address %q: %w", g.Address, err)
	}
	if host == "" {
		return fmt.Errorf("xid: address %q: empty host", g.Address)
	}
	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("xid: address %q: invalid port", g.Address)
	}
	return nil
}

// Generate returns the XID for transactionID. It is deterministic.
func (g Generator) Generate(transactionID int64) string {
	return g.Address + ":" + strconv.FormatInt(transactionID, 10)
}

// ParseTransactionID parses a caller-supplied decimal transaction id.
func ParseTransactionID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("xid: transaction id %q is not numeric", s)
	}
	return id, nil
}

// TransactionID extracts the trailing numeric id from xid.
func TransactionID(xid string) (int64, error) {
	idx := strings.LastIndexByte(xid, ':')
	if idx < 0 || idx == len(xid)-1 {
		return 0, fmt.Errorf("xid: %q has no transaction id", xid)
	}
	return ParseTransactionID(xid[idx+1:])
}

// Address returns the host:port part of xid.
func Address(xid string) (string, error) {
	idx := strings.LastIndexByte(xid, ':')
	if idx <= 0 {
		return "", fmt.Errorf("xid: %q has no address", xid)
	}
	return xid[:idx], nil
}
