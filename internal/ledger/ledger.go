package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAssetAddress is the sentinel address used for the chain's native
// currency. It is not a real token contract; the ledger treats it as a
// balance-only asset with no allowance mechanics.
var NativeAssetAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Ledger is an in-memory fungible-token state with ERC-20 transfer and
// approval semantics. Mutations made while a snapshot is outstanding are
// journaled so that a caller can roll a multi-step operation back on
// failure; the journal is released when the last snapshot is discarded or
// reverted.
type Ledger struct {
	mu        sync.Mutex
	tokens    map[common.Address]*tokenState
	journal   []func()
	snapshots []int
}

type tokenState struct {
	ledger     *Ledger
	address    common.Address
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// New creates an empty ledger with the native asset pre-registered.
func New() *Ledger {
	l := &Ledger{
		tokens: make(map[common.Address]*tokenState),
	}
	l.register(NativeAssetAddress)
	return l
}

// RegisterToken makes a token address known to the ledger. Registering an
// existing token is a no-op.
func (l *Ledger) RegisterToken(address common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.register(address)
}

func (l *Ledger) register(address common.Address) *tokenState {
	if t, ok := l.tokens[address]; ok {
		return t
	}
	t := &tokenState{
		ledger:     l,
		address:    address,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
	l.tokens[address] = t
	return t
}

// Token returns the token registered at the given address.
func (l *Ledger) Token(address common.Address) (*Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tokens[address]
	if !ok {
		return nil, fmt.Errorf("unknown token %s", address.Hex())
	}
	return &Token{state: t}, nil
}

// Mint credits new units of a token to an account. Used for genesis funding
// and tests; there is no burn path because the engine never destroys value.
func (l *Ledger) Mint(token, account common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tokens[token]
	if !ok {
		return fmt.Errorf("unknown token %s", token.Hex())
	}
	t.credit(account, amount)
	return nil
}

// OnRevert registers an undo action with the current journal so that state
// held outside the ledger (the bridge's registration and position books)
// participates in snapshot rollback. A no-op while no snapshot is
// outstanding, since nothing could revert through it.
func (l *Ledger) OnRevert(undo func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record(undo)
}

// Snapshot returns a revision identifier for the current state. Passing it
// to RevertToSnapshot undoes every mutation made since; passing it to
// DiscardSnapshot commits them instead.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	revision := len(l.journal)
	l.snapshots = append(l.snapshots, revision)
	return revision
}

// RevertToSnapshot rolls the ledger back to a previously taken revision,
// invalidating that snapshot and any taken after it. Reverting to an
// unknown revision panics; revisions are only produced by Snapshot within
// the same operation.
func (l *Ledger) RevertToSnapshot(revision int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if revision < 0 || revision > len(l.journal) {
		panic(fmt.Sprintf("ledger: invalid snapshot revision %d", revision))
	}
	for i := len(l.journal) - 1; i >= revision; i-- {
		l.journal[i]()
	}
	l.journal = l.journal[:revision]
	for len(l.snapshots) > 0 && l.snapshots[len(l.snapshots)-1] >= revision {
		l.snapshots = l.snapshots[:len(l.snapshots)-1]
	}
}

// DiscardSnapshot commits the mutations made since the revision. The
// revision must be the most recent outstanding snapshot; once no snapshot
// remains that could revert through them, the journaled undo entries are
// released so completed operations do not accumulate.
func (l *Ledger) DiscardSnapshot(revision int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.snapshots)
	if n == 0 || l.snapshots[n-1] != revision {
		panic(fmt.Sprintf("ledger: invalid snapshot revision %d", revision))
	}
	l.snapshots = l.snapshots[:n-1]
	if len(l.snapshots) == 0 {
		l.journal = nil
	}
}

// record appends an undo action to the journal. Mutations made with no
// snapshot outstanding can never be reverted, so they are not recorded.
// Callers must hold l.mu.
func (l *Ledger) record(undo func()) {
	if len(l.snapshots) == 0 {
		return
	}
	l.journal = append(l.journal, undo)
}

func (t *tokenState) balanceOf(account common.Address) *big.Int {
	if b, ok := t.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *tokenState) allowanceOf(owner, spender common.Address) *big.Int {
	if m, ok := t.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return new(big.Int).Set(a)
		}
	}
	return new(big.Int)
}

func (t *tokenState) setBalance(account common.Address, amount *big.Int) {
	prev, had := t.balances[account]
	t.balances[account] = new(big.Int).Set(amount)
	t.ledger.record(func() {
		if had {
			t.balances[account] = prev
		} else {
			delete(t.balances, account)
		}
	})
}

func (t *tokenState) setAllowance(owner, spender common.Address, amount *big.Int) {
	m, hadMap := t.allowances[owner]
	if !hadMap {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	prev, had := m[spender]
	m[spender] = new(big.Int).Set(amount)
	t.ledger.record(func() {
		if had {
			m[spender] = prev
		} else {
			delete(m, spender)
		}
		if !hadMap && len(m) == 0 {
			delete(t.allowances, owner)
		}
	})
}

func (t *tokenState) credit(account common.Address, amount *big.Int) {
	t.setBalance(account, new(big.Int).Add(t.balanceOf(account), amount))
}

func (t *tokenState) move(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative transfer amount %s", amount)
	}
	balance := t.balanceOf(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance: %s has %s of token %s, need %s",
			from.Hex(), balance, t.address.Hex(), amount)
	}
	t.setBalance(from, balance.Sub(balance, amount))
	t.credit(to, amount)
	return nil
}

// Token is a handle to a single fungible asset inside the ledger.
type Token struct {
	state *tokenState
}

// Address returns the token's address (or the native asset sentinel).
func (t *Token) Address() common.Address {
	return t.state.address
}

// BalanceOf returns the balance of an account.
func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	l := t.state.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	return t.state.balanceOf(account), nil
}

// Allowance returns the remaining allowance granted by owner to spender.
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	l := t.state.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	return t.state.allowanceOf(owner, spender), nil
}

// Transfer moves tokens out of the from account. The caller asserts the
// authority of from; inside the engine this models msg.sender spending its
// own funds.
func (t *Token) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	l := t.state.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := t.state.move(from, to, amount); err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}
	return nil
}

// TransferFrom moves tokens from owner to dst on the authority of spender's
// allowance. The native asset has no allowance mechanics and rejects this.
func (t *Token) TransferFrom(ctx context.Context, spender, owner, dst common.Address, amount *big.Int) error {
	l := t.state.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	if t.state.address == NativeAssetAddress {
		return fmt.Errorf("native asset does not support transferFrom")
	}

	allowance := t.state.allowanceOf(owner, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient allowance: %s allowed %s to spend %s of token %s, need %s",
			owner.Hex(), spender.Hex(), allowance, t.state.address.Hex(), amount)
	}
	if err := t.state.move(owner, dst, amount); err != nil {
		return fmt.Errorf("transferFrom failed: %w", err)
	}
	t.state.setAllowance(owner, spender, allowance.Sub(allowance, amount))
	return nil
}

// Approve sets the allowance granted by owner to spender. Like some
// mainnet tokens, a non-zero allowance can only be replaced after being
// reset to zero first.
func (t *Token) Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error {
	l := t.state.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	if t.state.address == NativeAssetAddress {
		return fmt.Errorf("native asset does not support approve")
	}

	current := t.state.allowanceOf(owner, spender)
	if current.Sign() != 0 && amount.Sign() != 0 {
		return fmt.Errorf("approve from non-zero to non-zero allowance")
	}
	t.state.setAllowance(owner, spender, amount)
	return nil
}
