package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface.
type RPCClient interface {
	// GetAccountInfo retrieves account data by base58 address.
	// Returns ErrAccountNotFound when the account does not exist.
	GetAccountInfo(ctx context.Context, address string) (*AccountInfo, error)

	// GetSlot retrieves the current confirmed slot.
	GetSlot(ctx context.Context) (int64, error)

	// GetHealth checks node health.
	GetHealth(ctx context.Context) error
}
