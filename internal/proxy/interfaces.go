package proxy

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the fungible-asset surface the engine depends on. Standard
// ERC-20 semantics apply: TransferFrom consumes the allowance granted by
// owner to spender, and Approve may require a zero reset before replacing a
// non-zero allowance.
type Token interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, spender, owner, dst common.Address, amount *big.Int) error
	Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error
}

// State is the token-state backend. Snapshot/RevertToSnapshot give every
// deposit operation its all-or-nothing guarantee: a revision is taken at
// entry, restored on any failure, and discarded on success so the backend
// can release whatever it kept to make the revert possible.
type State interface {
	Token(address common.Address) (Token, error)
	Snapshot() int
	RevertToSnapshot(revision int)
	DiscardSnapshot(revision int)
}

// Bridge is the external L2 settlement system. Both operations either
// succeed completely or fail; the bridge never calls back into the engine.
type Bridge interface {
	RegisterUser(ctx context.Context, sender common.Address, starkKey *big.Int, signature []byte) error
	Deposit(ctx context.Context, starkKey, assetType, positionID, amount *big.Int) error
}

// Exchange is an opaque value transformer. The engine never inspects the
// swap instructions or trusts anything the adapter reports; the only
// observable effect that matters is the stablecoin balance change measured
// around Swap. A non-nil value means native currency was forwarded to the
// adapter's account before the call.
type Exchange interface {
	Address() common.Address
	Swap(ctx context.Context, data []byte, value *big.Int) error
}

// EventSink receives the audit record emitted once per successful converted
// deposit. Implementations must not call back into the engine.
type EventSink interface {
	DepositConverted(event ConversionEvent)
}
