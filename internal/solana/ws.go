package solana

import "context"

// WSClient defines the Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeAccount subscribes to data changes of an account.
	SubscribeAccount(ctx context.Context, address string) (<-chan AccountNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// AccountNotification is an accountSubscribe update message.
type AccountNotification struct {
	Address  string // base58 account address
	Data     []byte // raw account data
	Owner    string // base58 owner program
	Lamports uint64
	Slot     int64 // slot the change was observed at
}
