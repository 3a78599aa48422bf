package exchange

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Miky-131/dXdY-starkex-peripheral/internal/ledger"
)

var (
	usdc     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	deskAcct = common.HexToAddress("0x0000000000000000000000000000000000000103")
	taker    = common.HexToAddress("0x0000000000000000000000000000000000000101")
)

func newTestDesk(t *testing.T, feeBps int64) (*Desk, *ledger.Ledger) {
	t.Helper()

	l := ledger.New()
	l.RegisterToken(usdc)
	l.RegisterToken(weth)
	l.Mint(usdc, deskAcct, big.NewInt(1_000_000))
	l.Mint(weth, taker, big.NewInt(1_000))

	d, err := NewDesk(l, deskAcct, usdc, feeBps, nil)
	if err != nil {
		t.Fatalf("failed to create desk: %v", err)
	}
	if err := d.SetRate(weth, big.NewInt(2), big.NewInt(1)); err != nil {
		t.Fatalf("failed to set rate: %v", err)
	}
	if err := d.SetRate(ledger.NativeAssetAddress, big.NewInt(3), big.NewInt(1)); err != nil {
		t.Fatalf("failed to set native rate: %v", err)
	}

	// Taker authorizes the desk to pull the source asset.
	tok, _ := l.Token(weth)
	if err := tok.Approve(context.Background(), taker, deskAcct, big.NewInt(1_000)); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	return d, l
}

func balanceOf(t *testing.T, l *ledger.Ledger, token, account common.Address) *big.Int {
	t.Helper()
	tok, err := l.Token(token)
	if err != nil {
		t.Fatalf("token lookup failed: %v", err)
	}
	b, _ := tok.BalanceOf(context.Background(), account)
	return b
}

func TestSellTokenForUsdc(t *testing.T) {
	d, l := newTestDesk(t, 0)
	ctx := context.Background()

	data, err := d.PackSellToken(weth, big.NewInt(100), taker)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	if err := d.Swap(ctx, data, nil); err != nil {
		t.Fatalf("swap failed: %v", err)
	}

	if got := balanceOf(t, l, usdc, taker); got.Cmp(big.NewInt(200)) != 0 {
		t.Errorf("taker usdc = %s, want 200", got)
	}
	if got := balanceOf(t, l, weth, taker); got.Cmp(big.NewInt(900)) != 0 {
		t.Errorf("taker weth = %s, want 900", got)
	}
	if got := balanceOf(t, l, weth, deskAcct); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("desk weth = %s, want 100", got)
	}
}

func TestSellTokenTakesFee(t *testing.T) {
	d, l := newTestDesk(t, 400) // 4%
	ctx := context.Background()

	data, _ := d.PackSellToken(weth, big.NewInt(250), taker)
	if err := d.Swap(ctx, data, nil); err != nil {
		t.Fatalf("swap failed: %v", err)
	}

	// 250 * 2 = 500, minus 4% = 480.
	if got := balanceOf(t, l, usdc, taker); got.Cmp(big.NewInt(480)) != 0 {
		t.Errorf("taker usdc = %s, want 480", got)
	}
}

func TestSellEthForUsdc(t *testing.T) {
	d, l := newTestDesk(t, 0)
	ctx := context.Background()

	// Native value arrives at the desk ahead of the call, the way call
	// value does on chain.
	l.Mint(ledger.NativeAssetAddress, deskAcct, big.NewInt(50))

	data, err := d.PackSellEth(taker)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	if err := d.Swap(ctx, data, big.NewInt(50)); err != nil {
		t.Fatalf("swap failed: %v", err)
	}

	if got := balanceOf(t, l, usdc, taker); got.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("taker usdc = %s, want 150", got)
	}

	// Missing value is rejected.
	if err := d.Swap(ctx, data, nil); err == nil {
		t.Error("expected swap without value to fail")
	}
}

func TestSwapRejectsMalformedData(t *testing.T) {
	d, _ := newTestDesk(t, 0)
	ctx := context.Background()

	if err := d.Swap(ctx, []byte{0x01, 0x02}, nil); err == nil {
		t.Error("expected short data to be rejected")
	}
	if err := d.Swap(ctx, []byte{0xde, 0xad, 0xbe, 0xef}, nil); err == nil {
		t.Error("expected unknown selector to be rejected")
	}

	unquoted := common.HexToAddress("0x0000000000000000000000000000000000000404")
	data, _ := d.PackSellToken(unquoted, big.NewInt(1), taker)
	if err := d.Swap(ctx, data, nil); err == nil {
		t.Error("expected unquoted token to be rejected")
	}
}
