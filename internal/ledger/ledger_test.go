package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	usdc  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
)

func mustBalance(t *testing.T, tok *Token, account common.Address) *big.Int {
	t.Helper()
	b, err := tok.BalanceOf(context.Background(), account)
	if err != nil {
		t.Fatalf("BalanceOf failed: %v", err)
	}
	return b
}

func TestTransferAndBalances(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.RegisterToken(usdc)
	if err := l.Mint(usdc, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	tok, err := l.Token(usdc)
	if err != nil {
		t.Fatalf("token lookup failed: %v", err)
	}

	if err := tok.Transfer(ctx, alice, bob, big.NewInt(400)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if got := mustBalance(t, tok, alice); got.Cmp(big.NewInt(600)) != 0 {
		t.Errorf("alice balance = %s, want 600", got)
	}
	if got := mustBalance(t, tok, bob); got.Cmp(big.NewInt(400)) != 0 {
		t.Errorf("bob balance = %s, want 400", got)
	}

	// Overdraft must fail and leave balances untouched.
	if err := tok.Transfer(ctx, alice, bob, big.NewInt(601)); err == nil {
		t.Fatal("expected overdraft to fail")
	}
	if got := mustBalance(t, tok, alice); got.Cmp(big.NewInt(600)) != 0 {
		t.Errorf("alice balance after failed transfer = %s, want 600", got)
	}
}

func TestTransferFromRequiresAllowance(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.RegisterToken(usdc)
	l.Mint(usdc, alice, big.NewInt(1000))

	tok, _ := l.Token(usdc)

	if err := tok.TransferFrom(ctx, bob, alice, carol, big.NewInt(100)); err == nil {
		t.Fatal("expected transferFrom without allowance to fail")
	}

	if err := tok.Approve(ctx, alice, bob, big.NewInt(250)); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if err := tok.TransferFrom(ctx, bob, alice, carol, big.NewInt(100)); err != nil {
		t.Fatalf("transferFrom failed: %v", err)
	}

	remaining, _ := tok.Allowance(ctx, alice, bob)
	if remaining.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("remaining allowance = %s, want 150", remaining)
	}
	if got := mustBalance(t, tok, carol); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("carol balance = %s, want 100", got)
	}
}

func TestApproveRequiresZeroReset(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.RegisterToken(usdc)

	tok, _ := l.Token(usdc)

	if err := tok.Approve(ctx, alice, bob, big.NewInt(100)); err != nil {
		t.Fatalf("initial approve failed: %v", err)
	}
	if err := tok.Approve(ctx, alice, bob, big.NewInt(200)); err == nil {
		t.Fatal("expected non-zero to non-zero approve to fail")
	}
	if err := tok.Approve(ctx, alice, bob, big.NewInt(0)); err != nil {
		t.Fatalf("reset to zero failed: %v", err)
	}
	if err := tok.Approve(ctx, alice, bob, big.NewInt(200)); err != nil {
		t.Fatalf("approve after reset failed: %v", err)
	}

	allowance, _ := tok.Allowance(ctx, alice, bob)
	if allowance.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("allowance = %s, want 200", allowance)
	}
}

func TestNativeAssetHasNoAllowances(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Mint(NativeAssetAddress, alice, big.NewInt(1000))

	native, err := l.Token(NativeAssetAddress)
	if err != nil {
		t.Fatalf("native token lookup failed: %v", err)
	}

	if err := native.Approve(ctx, alice, bob, big.NewInt(1)); err == nil {
		t.Error("expected approve on native asset to fail")
	}
	if err := native.TransferFrom(ctx, bob, alice, carol, big.NewInt(1)); err == nil {
		t.Error("expected transferFrom on native asset to fail")
	}
	if err := native.Transfer(ctx, alice, bob, big.NewInt(300)); err != nil {
		t.Fatalf("native transfer failed: %v", err)
	}
}

func TestSnapshotRevert(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.RegisterToken(usdc)
	l.Mint(usdc, alice, big.NewInt(1000))

	tok, _ := l.Token(usdc)

	rev := l.Snapshot()

	tok.Transfer(ctx, alice, bob, big.NewInt(700))
	tok.Approve(ctx, alice, carol, big.NewInt(50))
	l.Mint(usdc, carol, big.NewInt(10))

	l.RevertToSnapshot(rev)

	if got := mustBalance(t, tok, alice); got.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("alice balance after revert = %s, want 1000", got)
	}
	if got := mustBalance(t, tok, bob); got.Sign() != 0 {
		t.Errorf("bob balance after revert = %s, want 0", got)
	}
	allowance, _ := tok.Allowance(ctx, alice, carol)
	if allowance.Sign() != 0 {
		t.Errorf("allowance after revert = %s, want 0", allowance)
	}
	if got := mustBalance(t, tok, carol); got.Sign() != 0 {
		t.Errorf("carol balance after revert = %s, want 0", got)
	}
}

func TestNestedSnapshots(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.RegisterToken(usdc)
	l.Mint(usdc, alice, big.NewInt(100))

	tok, _ := l.Token(usdc)

	outer := l.Snapshot()
	tok.Transfer(ctx, alice, bob, big.NewInt(10))

	inner := l.Snapshot()
	tok.Transfer(ctx, alice, bob, big.NewInt(20))
	l.RevertToSnapshot(inner)

	if got := mustBalance(t, tok, bob); got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("bob balance after inner revert = %s, want 10", got)
	}

	l.RevertToSnapshot(outer)
	if got := mustBalance(t, tok, alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("alice balance after outer revert = %s, want 100", got)
	}
}

func TestDiscardSnapshotReleasesJournal(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.RegisterToken(usdc)
	l.Mint(usdc, alice, big.NewInt(10_000))

	tok, _ := l.Token(usdc)

	// Completed operations must not accumulate undo entries; a long-running
	// process commits thousands of them.
	for i := 0; i < 1_000; i++ {
		rev := l.Snapshot()
		if err := tok.Transfer(ctx, alice, bob, big.NewInt(1)); err != nil {
			t.Fatalf("transfer failed: %v", err)
		}
		l.DiscardSnapshot(rev)
	}

	if got := len(l.journal); got != 0 {
		t.Fatalf("journal holds %d entries after discards, want 0", got)
	}
	if got := mustBalance(t, tok, bob); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Errorf("bob balance = %s, want 1000", got)
	}
}

func TestDiscardKeepsOuterSnapshotRevertible(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.RegisterToken(usdc)
	l.Mint(usdc, alice, big.NewInt(100))

	tok, _ := l.Token(usdc)

	outer := l.Snapshot()
	tok.Transfer(ctx, alice, bob, big.NewInt(10))

	inner := l.Snapshot()
	tok.Transfer(ctx, alice, bob, big.NewInt(20))
	l.DiscardSnapshot(inner)

	// The inner commit is still undone by the outer revert.
	l.RevertToSnapshot(outer)
	if got := mustBalance(t, tok, alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("alice balance after outer revert = %s, want 100", got)
	}
	if got := mustBalance(t, tok, bob); got.Sign() != 0 {
		t.Errorf("bob balance after outer revert = %s, want 0", got)
	}
	if got := len(l.journal); got != 0 {
		t.Errorf("journal holds %d entries with no snapshot outstanding, want 0", got)
	}
}

func TestMutationsWithoutSnapshotAreNotJournaled(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.RegisterToken(usdc)
	l.Mint(usdc, alice, big.NewInt(1_000))

	tok, _ := l.Token(usdc)
	tok.Transfer(ctx, alice, bob, big.NewInt(100))
	tok.Approve(ctx, alice, carol, big.NewInt(5))
	l.OnRevert(func() { t.Error("undo ran without a snapshot") })

	if got := len(l.journal); got != 0 {
		t.Errorf("journal holds %d entries with no snapshot outstanding, want 0", got)
	}
}
