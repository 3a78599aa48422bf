package proxy

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NativeAssetAddress is the sentinel recorded as the source token of a
// native-currency conversion. It mirrors the convention used by on-chain
// aggregators for ETH.
var NativeAssetAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Config is the engine's immutable configuration. All references are fixed
// for the engine's lifetime.
type Config struct {
	// Account is the engine's own account in the token state. Deposited
	// funds transit through it within a single operation.
	Account common.Address

	// Owner controls pausing and ownership transfer.
	Owner common.Address

	// Stablecoin is the token the bridge accepts.
	Stablecoin common.Address

	// AssetType is the bridge's identifier for the stablecoin asset.
	AssetType *big.Int

	// BridgeAccount is the account the bridge spends from when pulling a
	// deposit out of the engine account. It is granted an unlimited
	// stablecoin allowance at construction.
	BridgeAccount common.Address

	// TrustedForwarder, when non-zero, enables forwarded-sender resolution
	// for calls relayed by that account.
	TrustedForwarder common.Address

	Bridge Bridge
	State  State

	// Sink receives conversion audit events. Optional; nil disables
	// emission but not logging.
	Sink EventSink

	Logger *zap.Logger
}

// DepositRequest is a direct stablecoin deposit.
type DepositRequest struct {
	Amount                *big.Int
	StarkKey              *big.Int
	PositionID            *big.Int
	RegistrationSignature []byte
}

// ConversionRequest is an ERC-20 converted deposit. MinStablecoinAmount is
// the caller's slippage floor; nil means no floor.
type ConversionRequest struct {
	SourceToken           common.Address
	SourceAmount          *big.Int
	MinStablecoinAmount   *big.Int
	StarkKey              *big.Int
	PositionID            *big.Int
	Exchange              Exchange
	SwapData              []byte
	RegistrationSignature []byte
}

// NativeConversionRequest is a native-currency converted deposit. Value is
// forwarded to the exchange adapter with the swap call.
type NativeConversionRequest struct {
	Value                 *big.Int
	MinStablecoinAmount   *big.Int
	StarkKey              *big.Int
	PositionID            *big.Int
	Exchange              Exchange
	SwapData              []byte
	RegistrationSignature []byte
}

// Receipt describes a completed deposit.
type Receipt struct {
	ID               uuid.UUID
	Sender           common.Address
	SourceToken      common.Address
	SourceAmount     *big.Int
	StablecoinAmount *big.Int
	Registered       bool
}

// ConversionEvent is the audit record external indexers rely on, emitted
// exactly once per successful converted deposit.
type ConversionEvent struct {
	ID               uuid.UUID
	Sender           common.Address
	SourceToken      common.Address
	SourceAmount     *big.Int
	StablecoinAmount *big.Int
	OccurredAt       time.Time
}

// ConversionProxy accepts deposits in arbitrary assets, swaps them to the
// configured stablecoin through caller-supplied exchange adapters, and
// forwards the measured output to the L2 bridge. The swapped amount is
// always derived from the engine's own balance delta, never from anything
// an adapter reports.
type ConversionProxy struct {
	cfg     Config
	senders SenderResolver
	logger  *zap.Logger

	// lock is the reentrancy guard; TryLock at the top of every guarded
	// operation rejects nested invocations within the same call tree.
	lock sync.Mutex

	stateMu sync.RWMutex
	owner   common.Address
	paused  bool
}

// New validates the configuration, grants the bridge account an unlimited
// stablecoin allowance, and returns a ready engine.
func New(cfg Config) (*ConversionProxy, error) {
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("token state is required")
	}
	if (cfg.Account == common.Address{}) {
		return nil, fmt.Errorf("engine account is required")
	}
	if (cfg.Owner == common.Address{}) {
		return nil, fmt.Errorf("owner is required")
	}
	if (cfg.Stablecoin == common.Address{}) {
		return nil, fmt.Errorf("stablecoin address is required")
	}
	if cfg.AssetType == nil {
		return nil, fmt.Errorf("asset type is required")
	}
	if (cfg.BridgeAccount == common.Address{}) {
		return nil, fmt.Errorf("bridge account is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var senders SenderResolver = DirectSender()
	if (cfg.TrustedForwarder != common.Address{}) {
		senders = ForwardedSender(cfg.TrustedForwarder)
	}

	p := &ConversionProxy{
		cfg:     cfg,
		senders: senders,
		logger:  cfg.Logger.Named("proxy"),
		owner:   cfg.Owner,
	}

	// The bridge pulls every deposit out of the engine account, so it gets
	// its standing allowance up front, the same zero-then-max way exchanges
	// do.
	if err := p.resetAndApprove(context.Background(), cfg.Stablecoin, cfg.BridgeAccount); err != nil {
		return nil, fmt.Errorf("failed to approve bridge: %w", err)
	}

	p.logger.Info("Conversion proxy initialized",
		zap.String("account", cfg.Account.Hex()),
		zap.String("owner", cfg.Owner.Hex()),
		zap.String("stablecoin", cfg.Stablecoin.Hex()),
		zap.String("asset_type", cfg.AssetType.String()),
		zap.Bool("meta_tx_enabled", cfg.TrustedForwarder != common.Address{}))

	return p, nil
}

// Account returns the engine's own account in the token state.
func (p *ConversionProxy) Account() common.Address {
	return p.cfg.Account
}

// Stablecoin returns the token address the bridge accepts.
func (p *ConversionProxy) Stablecoin() common.Address {
	return p.cfg.Stablecoin
}

// Owner returns the current owner; the zero address after renouncement.
func (p *ConversionProxy) Owner() common.Address {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.owner
}

// Paused reports whether fund-moving operations are blocked.
func (p *ConversionProxy) Paused() bool {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.paused
}

// TogglePause flips the pause flag based on its current state. Owner only.
func (p *ConversionProxy) TogglePause(call Call) error {
	sender, err := p.senders.Sender(call)
	if err != nil {
		return err
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if sender != p.owner {
		return ErrNotOwner
	}
	p.paused = !p.paused

	p.logger.Info("Pause state toggled",
		zap.String("owner", sender.Hex()),
		zap.Bool("paused", p.paused))
	return nil
}

// TransferOwnership hands ownership to newOwner. Owner only; the zero
// address is rejected (use RenounceOwnership for that).
func (p *ConversionProxy) TransferOwnership(call Call, newOwner common.Address) error {
	sender, err := p.senders.Sender(call)
	if err != nil {
		return err
	}
	if (newOwner == common.Address{}) {
		return fmt.Errorf("new owner is the zero address")
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if sender != p.owner {
		return ErrNotOwner
	}
	previous := p.owner
	p.owner = newOwner

	p.logger.Info("Ownership transferred",
		zap.String("previous_owner", previous.Hex()),
		zap.String("new_owner", newOwner.Hex()))
	return nil
}

// RenounceOwnership permanently gives up ownership, disabling pause
// toggling and further ownership changes.
func (p *ConversionProxy) RenounceOwnership(call Call) error {
	sender, err := p.senders.Sender(call)
	if err != nil {
		return err
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if sender != p.owner {
		return ErrNotOwner
	}
	p.owner = common.Address{}

	p.logger.Info("Ownership renounced", zap.String("previous_owner", sender.Hex()))
	return nil
}

// ApproveSwap grants an exchange adapter an unlimited allowance on the
// engine account for the given token, resetting to zero first so tokens
// that reject non-zero to non-zero allowance changes are handled. Safe to
// call repeatedly.
func (p *ConversionProxy) ApproveSwap(ctx context.Context, call Call, exchange, token common.Address) error {
	if _, err := p.senders.Sender(call); err != nil {
		return err
	}
	if !p.lock.TryLock() {
		return ErrReentrantCall
	}
	defer p.lock.Unlock()
	if p.Paused() {
		return ErrPaused
	}

	revision := p.cfg.State.Snapshot()
	if err := p.resetAndApprove(ctx, token, exchange); err != nil {
		p.cfg.State.RevertToSnapshot(revision)
		return err
	}
	p.cfg.State.DiscardSnapshot(revision)

	p.logger.Info("Exchange approved for swaps",
		zap.String("exchange", exchange.Hex()),
		zap.String("token", token.Hex()))
	return nil
}

func (p *ConversionProxy) resetAndApprove(ctx context.Context, token, spender common.Address) error {
	t, err := p.cfg.State.Token(token)
	if err != nil {
		return fmt.Errorf("token lookup failed: %w", err)
	}
	if err := t.Approve(ctx, p.cfg.Account, spender, new(big.Int)); err != nil {
		return fmt.Errorf("allowance reset failed: %w", err)
	}
	if err := t.Approve(ctx, p.cfg.Account, spender, new(big.Int).Set(math.MaxBig256)); err != nil {
		return fmt.Errorf("allowance grant failed: %w", err)
	}
	return nil
}

// Deposit pulls the exact stablecoin amount from the sender and forwards it
// to the bridge. No conversion happens and no audit event is emitted.
func (p *ConversionProxy) Deposit(ctx context.Context, call Call, req DepositRequest) (*Receipt, error) {
	sender, err := p.senders.Sender(call)
	if err != nil {
		return nil, err
	}
	if !p.lock.TryLock() {
		return nil, ErrReentrantCall
	}
	defer p.lock.Unlock()
	if p.Paused() {
		return nil, ErrPaused
	}
	if err := validateTarget(req.StarkKey, req.PositionID); err != nil {
		return nil, err
	}
	if err := validateAmount("deposit amount", req.Amount); err != nil {
		return nil, err
	}

	revision := p.cfg.State.Snapshot()
	receipt, err := p.depositDirect(ctx, sender, req)
	if err != nil {
		p.cfg.State.RevertToSnapshot(revision)
		p.logger.Warn("Direct deposit failed",
			zap.String("sender", sender.Hex()),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))
		return nil, err
	}
	p.cfg.State.DiscardSnapshot(revision)

	p.logger.Info("Direct deposit completed",
		zap.String("deposit_id", receipt.ID.String()),
		zap.String("sender", sender.Hex()),
		zap.String("amount", req.Amount.String()),
		zap.String("position_id", req.PositionID.String()))
	return receipt, nil
}

func (p *ConversionProxy) depositDirect(ctx context.Context, sender common.Address, req DepositRequest) (*Receipt, error) {
	stablecoin, err := p.cfg.State.Token(p.cfg.Stablecoin)
	if err != nil {
		return nil, fmt.Errorf("stablecoin lookup failed: %w", err)
	}
	if err := stablecoin.TransferFrom(ctx, p.cfg.Account, sender, p.cfg.Account, req.Amount); err != nil {
		return nil, fmt.Errorf("stablecoin pull failed: %w", err)
	}

	registered, err := p.registerIfNeeded(ctx, sender, req.StarkKey, req.RegistrationSignature)
	if err != nil {
		return nil, err
	}

	if err := p.cfg.Bridge.Deposit(ctx, req.StarkKey, p.cfg.AssetType, req.PositionID, req.Amount); err != nil {
		return nil, fmt.Errorf("bridge deposit failed: %w", err)
	}

	return &Receipt{
		ID:               uuid.New(),
		Sender:           sender,
		SourceToken:      p.cfg.Stablecoin,
		SourceAmount:     new(big.Int).Set(req.Amount),
		StablecoinAmount: new(big.Int).Set(req.Amount),
		Registered:       registered,
	}, nil
}

// DepositERC20 pulls the source token from the sender, swaps it through the
// supplied exchange adapter, and forwards the measured stablecoin delta to
// the bridge.
func (p *ConversionProxy) DepositERC20(ctx context.Context, call Call, req ConversionRequest) (*Receipt, error) {
	sender, err := p.senders.Sender(call)
	if err != nil {
		return nil, err
	}
	if !p.lock.TryLock() {
		return nil, ErrReentrantCall
	}
	defer p.lock.Unlock()
	if p.Paused() {
		return nil, ErrPaused
	}
	if err := validateTarget(req.StarkKey, req.PositionID); err != nil {
		return nil, err
	}
	if err := validateAmount("source amount", req.SourceAmount); err != nil {
		return nil, err
	}
	if req.Exchange == nil {
		return nil, fmt.Errorf("exchange adapter is required")
	}
	if req.SourceToken == p.cfg.Stablecoin {
		return nil, fmt.Errorf("source token is already the stablecoin, use a direct deposit")
	}

	revision := p.cfg.State.Snapshot()
	receipt, err := p.convertERC20(ctx, sender, req)
	if err != nil {
		p.cfg.State.RevertToSnapshot(revision)
		p.logger.Warn("Converted deposit failed",
			zap.String("sender", sender.Hex()),
			zap.String("source_token", req.SourceToken.Hex()),
			zap.String("source_amount", req.SourceAmount.String()),
			zap.Error(err))
		return nil, err
	}
	p.cfg.State.DiscardSnapshot(revision)

	p.emitConversion(receipt)
	return receipt, nil
}

func (p *ConversionProxy) convertERC20(ctx context.Context, sender common.Address, req ConversionRequest) (*Receipt, error) {
	source, err := p.cfg.State.Token(req.SourceToken)
	if err != nil {
		return nil, fmt.Errorf("source token lookup failed: %w", err)
	}
	if err := source.TransferFrom(ctx, p.cfg.Account, sender, p.cfg.Account, req.SourceAmount); err != nil {
		return nil, fmt.Errorf("source token pull failed: %w", err)
	}

	delta, err := p.swapToStablecoin(ctx, req.Exchange, req.SwapData, nil, req.MinStablecoinAmount)
	if err != nil {
		return nil, err
	}

	registered, err := p.registerIfNeeded(ctx, sender, req.StarkKey, req.RegistrationSignature)
	if err != nil {
		return nil, err
	}

	if err := p.cfg.Bridge.Deposit(ctx, req.StarkKey, p.cfg.AssetType, req.PositionID, delta); err != nil {
		return nil, fmt.Errorf("bridge deposit failed: %w", err)
	}

	return &Receipt{
		ID:               uuid.New(),
		Sender:           sender,
		SourceToken:      req.SourceToken,
		SourceAmount:     new(big.Int).Set(req.SourceAmount),
		StablecoinAmount: delta,
		Registered:       registered,
	}, nil
}

// DepositNative forwards the sender's native currency to the exchange
// adapter as call value, swaps it, and forwards the measured stablecoin
// delta to the bridge.
func (p *ConversionProxy) DepositNative(ctx context.Context, call Call, req NativeConversionRequest) (*Receipt, error) {
	sender, err := p.senders.Sender(call)
	if err != nil {
		return nil, err
	}
	if !p.lock.TryLock() {
		return nil, ErrReentrantCall
	}
	defer p.lock.Unlock()
	if p.Paused() {
		return nil, ErrPaused
	}
	if err := validateTarget(req.StarkKey, req.PositionID); err != nil {
		return nil, err
	}
	if err := validateAmount("native value", req.Value); err != nil {
		return nil, err
	}
	if req.Exchange == nil {
		return nil, fmt.Errorf("exchange adapter is required")
	}

	revision := p.cfg.State.Snapshot()
	receipt, err := p.convertNative(ctx, sender, req)
	if err != nil {
		p.cfg.State.RevertToSnapshot(revision)
		p.logger.Warn("Native converted deposit failed",
			zap.String("sender", sender.Hex()),
			zap.String("value", req.Value.String()),
			zap.Error(err))
		return nil, err
	}
	p.cfg.State.DiscardSnapshot(revision)

	p.emitConversion(receipt)
	return receipt, nil
}

func (p *ConversionProxy) convertNative(ctx context.Context, sender common.Address, req NativeConversionRequest) (*Receipt, error) {
	native, err := p.cfg.State.Token(NativeAssetAddress)
	if err != nil {
		return nil, fmt.Errorf("native asset lookup failed: %w", err)
	}
	// The attached value moves sender -> engine -> adapter, the Go
	// counterpart of forwarding msg.value with the swap call.
	if err := native.Transfer(ctx, sender, p.cfg.Account, req.Value); err != nil {
		return nil, fmt.Errorf("native value pull failed: %w", err)
	}
	if err := native.Transfer(ctx, p.cfg.Account, req.Exchange.Address(), req.Value); err != nil {
		return nil, fmt.Errorf("native value forward failed: %w", err)
	}

	delta, err := p.swapToStablecoin(ctx, req.Exchange, req.SwapData, req.Value, req.MinStablecoinAmount)
	if err != nil {
		return nil, err
	}

	registered, err := p.registerIfNeeded(ctx, sender, req.StarkKey, req.RegistrationSignature)
	if err != nil {
		return nil, err
	}

	if err := p.cfg.Bridge.Deposit(ctx, req.StarkKey, p.cfg.AssetType, req.PositionID, delta); err != nil {
		return nil, fmt.Errorf("bridge deposit failed: %w", err)
	}

	return &Receipt{
		ID:               uuid.New(),
		Sender:           sender,
		SourceToken:      NativeAssetAddress,
		SourceAmount:     new(big.Int).Set(req.Value),
		StablecoinAmount: delta,
		Registered:       registered,
	}, nil
}

// swapToStablecoin runs the balance-delta accounting around an adapter
// call. The returned amount is the engine's measured stablecoin gain, the
// only swap output the rest of the system ever sees.
func (p *ConversionProxy) swapToStablecoin(ctx context.Context, exchange Exchange, data []byte, value, minOut *big.Int) (*big.Int, error) {
	stablecoin, err := p.cfg.State.Token(p.cfg.Stablecoin)
	if err != nil {
		return nil, fmt.Errorf("stablecoin lookup failed: %w", err)
	}

	before, err := stablecoin.BalanceOf(ctx, p.cfg.Account)
	if err != nil {
		return nil, fmt.Errorf("balance snapshot failed: %w", err)
	}

	if err := exchange.Swap(ctx, data, value); err != nil {
		return nil, fmt.Errorf("swap failed: %w", err)
	}

	after, err := stablecoin.BalanceOf(ctx, p.cfg.Account)
	if err != nil {
		return nil, fmt.Errorf("balance snapshot failed: %w", err)
	}

	if after.Cmp(before) < 0 {
		return nil, fmt.Errorf("%w: before %s, after %s", ErrBalanceDecreased, before, after)
	}
	delta := new(big.Int).Sub(after, before)

	if minOut != nil && delta.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("%w: received %s, minimum %s", ErrBelowMinimum, delta, minOut)
	}
	return delta, nil
}

// registerIfNeeded performs one-time L2 registration when a signature is
// supplied. An empty signature means the account is already registered.
func (p *ConversionProxy) registerIfNeeded(ctx context.Context, sender common.Address, starkKey *big.Int, signature []byte) (bool, error) {
	if len(signature) == 0 {
		return false, nil
	}
	if err := p.cfg.Bridge.RegisterUser(ctx, sender, starkKey, signature); err != nil {
		return false, fmt.Errorf("user registration failed: %w", err)
	}
	return true, nil
}

func (p *ConversionProxy) emitConversion(receipt *Receipt) {
	event := ConversionEvent{
		ID:               receipt.ID,
		Sender:           receipt.Sender,
		SourceToken:      receipt.SourceToken,
		SourceAmount:     new(big.Int).Set(receipt.SourceAmount),
		StablecoinAmount: new(big.Int).Set(receipt.StablecoinAmount),
		OccurredAt:       time.Now().UTC(),
	}
	if p.cfg.Sink != nil {
		p.cfg.Sink.DepositConverted(event)
	}

	p.logger.Info("Converted deposit completed",
		zap.String("deposit_id", receipt.ID.String()),
		zap.String("sender", receipt.Sender.Hex()),
		zap.String("source_token", receipt.SourceToken.Hex()),
		zap.String("source_amount", receipt.SourceAmount.String()),
		zap.String("stablecoin_amount", receipt.StablecoinAmount.String()))
}

func validateTarget(starkKey, positionID *big.Int) error {
	if starkKey == nil || starkKey.Sign() == 0 {
		return fmt.Errorf("stark key is required")
	}
	if positionID == nil || positionID.Sign() < 0 {
		return fmt.Errorf("position id is required")
	}
	return nil
}

func validateAmount(name string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}
