package evm

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

var (
	contractAddr = common.HexToAddress("0x0000000000000000000000000000000000000d0d")
	exchangeAddr = common.HexToAddress("0x0000000000000000000000000000000000000103")
	wethAddr     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

func newTestProxyClient(t *testing.T) *ProxyClient {
	t.Helper()
	p, err := NewProxyClient(nil, contractAddr, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create proxy client: %v", err)
	}
	return p
}

func TestPackDeposit(t *testing.T) {
	p := newTestProxyClient(t)

	data, err := p.PackDeposit(big.NewInt(1_000_000), big.NewInt(0x59a), big.NewInt(7), nil)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}

	method := p.abi.Methods["deposit"]
	if !bytes.Equal(data[:4], method.ID) {
		t.Errorf("selector = %x, want %x", data[:4], method.ID)
	}

	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	if got := values[0].(*big.Int); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("deposit amount = %s, want 1000000", got)
	}
	if got := values[1].(*big.Int); got.Cmp(big.NewInt(0x59a)) != 0 {
		t.Errorf("stark key = %s, want %d", got, 0x59a)
	}
}

func TestPackDepositERC20(t *testing.T) {
	p := newTestProxyClient(t)

	swapData := []byte{0xde, 0xad, 0xbe, 0xef}
	data, err := p.PackDepositERC20(
		wethAddr, big.NewInt(500), big.NewInt(490), big.NewInt(0x59a), big.NewInt(7),
		exchangeAddr, swapData, nil)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}

	method := p.abi.Methods["depositERC20"]
	if !bytes.Equal(data[:4], method.ID) {
		t.Errorf("selector = %x, want %x", data[:4], method.ID)
	}

	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	if got := values[0].(common.Address); got != wethAddr {
		t.Errorf("token = %s, want %s", got.Hex(), wethAddr.Hex())
	}
	if got := values[5].(common.Address); got != exchangeAddr {
		t.Errorf("exchange = %s, want %s", got.Hex(), exchangeAddr.Hex())
	}
	if got := values[6].([]byte); !bytes.Equal(got, swapData) {
		t.Errorf("swap data = %x, want %x", got, swapData)
	}
}

func TestPackApproveSwap(t *testing.T) {
	p := newTestProxyClient(t)

	data, err := p.PackApproveSwap(exchangeAddr, wethAddr)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}

	method := p.abi.Methods["approveSwap"]
	if !bytes.Equal(data[:4], method.ID) {
		t.Errorf("selector = %x, want %x", data[:4], method.ID)
	}
}

func TestParseConvertedDeposit(t *testing.T) {
	p := newTestProxyClient(t)
	event := p.abi.Events["LogConvertedDeposit"]

	sender := common.HexToAddress("0x0000000000000000000000000000000000000bbb")
	packed, err := event.Inputs.Pack(sender, wethAddr, big.NewInt(500), big.NewInt(480))
	if err != nil {
		t.Fatalf("failed to pack event data: %v", err)
	}

	decoded, err := p.ParseConvertedDeposit(&types.Log{
		Address: contractAddr,
		Topics:  []common.Hash{event.ID},
		Data:    packed,
	})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if decoded == nil {
		t.Fatal("expected decoded event")
	}
	if decoded.Sender != sender {
		t.Errorf("sender = %s, want %s", decoded.Sender.Hex(), sender.Hex())
	}
	if decoded.TokenFromAmount.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("source amount = %s, want 500", decoded.TokenFromAmount)
	}
	if decoded.UsdcAmount.Cmp(big.NewInt(480)) != 0 {
		t.Errorf("usdc amount = %s, want 480", decoded.UsdcAmount)
	}

	// Logs from other contracts are ignored.
	other, err := p.ParseConvertedDeposit(&types.Log{
		Address: exchangeAddr,
		Topics:  []common.Hash{event.ID},
		Data:    packed,
	})
	if err != nil || other != nil {
		t.Errorf("expected foreign log to be skipped, got %v, %v", other, err)
	}
}
