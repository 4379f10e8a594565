package solana

import "errors"

// ErrAccountNotFound is returned when the requested account does not
// exist on chain.
var ErrAccountNotFound = errors.New("account not found")

// AccountInfo is the decoded result of getAccountInfo.
type AccountInfo struct {
	Address  string // base58 account address
	Owner    string // base58 owner program
	Lamports uint64
	Data     []byte // raw account data
	Slot     int64  // slot the response was evaluated at
}
