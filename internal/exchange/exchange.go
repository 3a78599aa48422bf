package exchange

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Miky-131/dXdY-starkex-peripheral/internal/ledger"
)

// SwapABI describes the adapter's swap surface. Swap instructions are
// standard ABI-encoded calls against it, so callers build them the same way
// they would for an on-chain router.
const SwapABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "token", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "address", "name": "taker", "type": "address"}
		],
		"name": "sellTokenForUsdc",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "taker", "type": "address"}
		],
		"name": "sellEthForUsdc",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	}
]`

// Rate is a source-to-stablecoin conversion price expressed as a fraction:
// output = input * Numerator / Denominator, before fees.
type Rate struct {
	Numerator   *big.Int
	Denominator *big.Int
}

// Desk is a market-maker style exchange adapter: it quotes fixed rates,
// pulls the source asset from the taker (or receives native value ahead of
// the call), and pays stablecoin out of its own inventory. From the
// engine's point of view it is just an opaque adapter; only the stablecoin
// it delivers is observable.
type Desk struct {
	ledger     *ledger.Ledger
	account    common.Address
	stablecoin common.Address
	abi        abi.ABI
	logger     *zap.Logger

	mu     sync.Mutex
	rates  map[common.Address]Rate
	feeBps int64
}

// NewDesk creates an adapter trading out of the given inventory account.
func NewDesk(l *ledger.Ledger, account, stablecoin common.Address, feeBps int64, logger *zap.Logger) (*Desk, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if feeBps < 0 || feeBps >= 10000 {
		return nil, fmt.Errorf("invalid fee bps %d", feeBps)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parsedABI, err := abi.JSON(strings.NewReader(SwapABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse swap ABI: %w", err)
	}

	return &Desk{
		ledger:     l,
		account:    account,
		stablecoin: stablecoin,
		abi:        parsedABI,
		logger:     logger.Named("exchange"),
		rates:      make(map[common.Address]Rate),
		feeBps:     feeBps,
	}, nil
}

// Address returns the adapter's inventory account.
func (d *Desk) Address() common.Address {
	return d.account
}

// SetRate quotes a rate for a source token. Use ledger.NativeAssetAddress
// for the native currency.
func (d *Desk) SetRate(token common.Address, numerator, denominator *big.Int) error {
	if numerator == nil || denominator == nil || denominator.Sign() == 0 {
		return fmt.Errorf("invalid rate")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rates[token] = Rate{
		Numerator:   new(big.Int).Set(numerator),
		Denominator: new(big.Int).Set(denominator),
	}
	return nil
}

// PackSellToken builds swap instructions selling an ERC-20 held by taker.
func (d *Desk) PackSellToken(token common.Address, amount *big.Int, taker common.Address) ([]byte, error) {
	return d.abi.Pack("sellTokenForUsdc", token, amount, taker)
}

// PackSellEth builds swap instructions selling attached native value.
func (d *Desk) PackSellEth(taker common.Address) ([]byte, error) {
	return d.abi.Pack("sellEthForUsdc", taker)
}

// Swap executes opaque swap instructions. A non-nil value means that much
// native currency was forwarded to the adapter's account before the call.
func (d *Desk) Swap(ctx context.Context, data []byte, value *big.Int) error {
	if len(data) < 4 {
		return fmt.Errorf("swap data too short")
	}
	method, err := d.abi.MethodById(data[:4])
	if err != nil {
		return fmt.Errorf("unknown swap selector: %w", err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return fmt.Errorf("failed to unpack swap arguments: %w", err)
	}

	switch method.Name {
	case "sellTokenForUsdc":
		token := args[0].(common.Address)
		amount := args[1].(*big.Int)
		taker := args[2].(common.Address)
		return d.sellToken(ctx, token, amount, taker)
	case "sellEthForUsdc":
		taker := args[0].(common.Address)
		if value == nil || value.Sign() <= 0 {
			return fmt.Errorf("no native value attached")
		}
		return d.payOut(ctx, ledger.NativeAssetAddress, value, taker)
	default:
		return fmt.Errorf("unsupported swap method %s", method.Name)
	}
}

func (d *Desk) sellToken(ctx context.Context, token common.Address, amount *big.Int, taker common.Address) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("sell amount must be positive")
	}

	source, err := d.ledger.Token(token)
	if err != nil {
		return fmt.Errorf("source token lookup failed: %w", err)
	}
	// Pull the source asset on the allowance the taker granted this desk.
	if err := source.TransferFrom(ctx, d.account, taker, d.account, amount); err != nil {
		return fmt.Errorf("source pull failed: %w", err)
	}

	return d.payOut(ctx, token, amount, taker)
}

func (d *Desk) payOut(ctx context.Context, sourceToken common.Address, amount *big.Int, taker common.Address) error {
	d.mu.Lock()
	rate, ok := d.rates[sourceToken]
	feeBps := d.feeBps
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("no rate quoted for %s", sourceToken.Hex())
	}

	out := new(big.Int).Mul(amount, rate.Numerator)
	out.Div(out, rate.Denominator)
	if feeBps > 0 {
		fee := new(big.Int).Mul(out, big.NewInt(feeBps))
		fee.Div(fee, big.NewInt(10000))
		out.Sub(out, fee)
	}

	stablecoin, err := d.ledger.Token(d.stablecoin)
	if err != nil {
		return fmt.Errorf("stablecoin lookup failed: %w", err)
	}
	if err := stablecoin.Transfer(ctx, d.account, taker, out); err != nil {
		return fmt.Errorf("stablecoin payout failed: %w", err)
	}

	d.logger.Debug("Swap filled",
		zap.String("source_token", sourceToken.Hex()),
		zap.String("amount_in", amount.String()),
		zap.String("amount_out", out.String()),
		zap.String("taker", taker.Hex()))
	return nil
}
