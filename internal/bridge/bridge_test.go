package bridge

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Miky-131/dXdY-starkex-peripheral/internal/ledger"
)

var (
	usdc       = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	bridgeAcct = common.HexToAddress("0x0000000000000000000000000000000000000102")
	sourceAcct = common.HexToAddress("0x0000000000000000000000000000000000000101")
	userAddr   = common.HexToAddress("0x0000000000000000000000000000000000000bbb")

	assetType = big.NewInt(0x02c6)
	starkKey  = big.NewInt(0x59a)
	position  = big.NewInt(7)
)

func newTestBridge(t *testing.T) (*StarkBridge, *ledger.Ledger, []byte) {
	t.Helper()

	key, err := crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	if err != nil {
		t.Fatalf("failed to parse registrar key: %v", err)
	}
	registrar := crypto.PubkeyToAddress(key.PublicKey)

	l := ledger.New()
	l.RegisterToken(usdc)
	if err := l.Mint(usdc, sourceAcct, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	b, err := New(Config{
		Account:       bridgeAcct,
		DepositSource: sourceAcct,
		Stablecoin:    usdc,
		AssetType:     assetType,
		Registrar:     registrar,
	}, l)
	if err != nil {
		t.Fatalf("failed to create bridge: %v", err)
	}

	// Standing allowance the engine grants at construction.
	tok, _ := l.Token(usdc)
	maxAllowance := new(big.Int).Lsh(big.NewInt(1), 128)
	if err := tok.Approve(context.Background(), sourceAcct, bridgeAcct, maxAllowance); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	signature, err := crypto.Sign(RegistrationDigest(userAddr, starkKey), key)
	if err != nil {
		t.Fatalf("failed to sign registration: %v", err)
	}

	return b, l, signature
}

func TestRegisterUser(t *testing.T) {
	b, _, signature := newTestBridge(t)
	ctx := context.Background()

	if err := b.RegisterUser(ctx, userAddr, starkKey, signature); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	got := b.RegisteredKey(userAddr)
	if got == nil || got.Cmp(starkKey) != 0 {
		t.Errorf("registered key = %v, want %s", got, starkKey)
	}

	// Double registration fails.
	if err := b.RegisterUser(ctx, userAddr, starkKey, signature); err == nil {
		t.Error("expected double registration to fail")
	}
}

func TestRegisterUserRejectsBadSignature(t *testing.T) {
	b, _, signature := newTestBridge(t)
	ctx := context.Background()

	// Signature over a different binding.
	other := common.HexToAddress("0x0000000000000000000000000000000000000ca1")
	if err := b.RegisterUser(ctx, other, starkKey, signature); err == nil {
		t.Error("expected signature for another sender to be rejected")
	}

	tampered := make([]byte, len(signature))
	copy(tampered, signature)
	tampered[10] ^= 0xff
	if err := b.RegisterUser(ctx, userAddr, starkKey, tampered); err == nil {
		t.Error("expected tampered signature to be rejected")
	}

	if err := b.RegisterUser(ctx, userAddr, starkKey, []byte{0x01}); err == nil {
		t.Error("expected short signature to be rejected")
	}
}

func TestDeposit(t *testing.T) {
	b, l, signature := newTestBridge(t)
	ctx := context.Background()

	// Deposits require a registered stark key.
	if err := b.Deposit(ctx, starkKey, assetType, position, big.NewInt(100)); err == nil {
		t.Fatal("expected deposit for unregistered key to fail")
	}

	if err := b.RegisterUser(ctx, userAddr, starkKey, signature); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	if err := b.Deposit(ctx, starkKey, assetType, position, big.NewInt(100)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := b.Deposit(ctx, starkKey, assetType, position, big.NewInt(50)); err != nil {
		t.Fatalf("second deposit failed: %v", err)
	}

	if got := b.PositionBalance(starkKey, position); got.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("position balance = %s, want 150", got)
	}

	tok, _ := l.Token(usdc)
	balance, _ := tok.BalanceOf(ctx, bridgeAcct)
	if balance.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("bridge balance = %s, want 150", balance)
	}
}

func TestDepositRejectsWrongAssetType(t *testing.T) {
	b, _, signature := newTestBridge(t)
	ctx := context.Background()

	if err := b.RegisterUser(ctx, userAddr, starkKey, signature); err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	if err := b.Deposit(ctx, starkKey, big.NewInt(0xbad), position, big.NewInt(100)); err == nil {
		t.Error("expected wrong asset type to be rejected")
	}
}

func TestBridgeStateRevertsWithLedger(t *testing.T) {
	b, l, signature := newTestBridge(t)
	ctx := context.Background()

	rev := l.Snapshot()
	if err := b.RegisterUser(ctx, userAddr, starkKey, signature); err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	if err := b.Deposit(ctx, starkKey, assetType, position, big.NewInt(100)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	l.RevertToSnapshot(rev)

	if b.RegisteredKey(userAddr) != nil {
		t.Error("registration survived rollback")
	}
	if got := b.PositionBalance(starkKey, position); got.Sign() != 0 {
		t.Errorf("position balance after rollback = %s, want 0", got)
	}
	tok, _ := l.Token(usdc)
	balance, _ := tok.BalanceOf(ctx, sourceAcct)
	if balance.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("source balance after rollback = %s, want 1000000", balance)
	}
}
