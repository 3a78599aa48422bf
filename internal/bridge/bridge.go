package bridge

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/Miky-131/dXdY-starkex-peripheral/internal/ledger"
)

// registrationPrefix domain-separates registration digests from any other
// signed payload.
const registrationPrefix = "STARKEX_USER_REGISTRATION"

// Config holds the bridge's fixed parameters.
type Config struct {
	// Account is the bridge's own account; deposits accumulate here.
	Account common.Address

	// DepositSource is the account deposits are pulled from (the engine
	// account). The source must have granted Account an allowance.
	DepositSource common.Address

	// Stablecoin is the only asset the bridge accepts.
	Stablecoin common.Address

	// AssetType is the identifier deposits must carry for the stablecoin.
	AssetType *big.Int

	// Registrar is the address whose signature authorizes user
	// registrations.
	Registrar common.Address

	Logger *zap.Logger
}

// StarkBridge is an in-process rendering of the StarkEx deposit surface:
// user registration gated by a registrar signature, and stablecoin deposits
// credited to (starkKey, positionID) accounts. Both operations succeed
// completely or fail without effect, and the bridge never calls back into
// its caller.
type StarkBridge struct {
	cfg    Config
	ledger *ledger.Ledger
	logger *zap.Logger

	mu        sync.Mutex
	users     map[common.Address]*big.Int // ethereum address -> stark key
	positions map[positionKey]*big.Int
}

type positionKey struct {
	starkKey   string
	positionID string
}

// New creates a bridge over the given ledger.
func New(cfg Config, l *ledger.Ledger) (*StarkBridge, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.AssetType == nil {
		return nil, fmt.Errorf("asset type is required")
	}
	if (cfg.Registrar == common.Address{}) {
		return nil, fmt.Errorf("registrar is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &StarkBridge{
		cfg:       cfg,
		ledger:    l,
		logger:    cfg.Logger.Named("bridge"),
		users:     make(map[common.Address]*big.Int),
		positions: make(map[positionKey]*big.Int),
	}, nil
}

// RegistrationDigest is the message a registrar signs to authorize binding
// sender to starkKey.
func RegistrationDigest(sender common.Address, starkKey *big.Int) []byte {
	return crypto.Keccak256(
		[]byte(registrationPrefix),
		sender.Bytes(),
		common.LeftPadBytes(starkKey.Bytes(), 32),
	)
}

// RegisterUser binds an Ethereum address to a stark key. The signature must
// be a 65-byte secp256k1 signature over RegistrationDigest by the
// registrar. Re-registering an address fails.
func (b *StarkBridge) RegisterUser(ctx context.Context, sender common.Address, starkKey *big.Int, signature []byte) error {
	if starkKey == nil || starkKey.Sign() == 0 {
		return fmt.Errorf("stark key is required")
	}
	if len(signature) != crypto.SignatureLength {
		return fmt.Errorf("invalid signature length %d", len(signature))
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(RegistrationDigest(sender, starkKey), sig)
	if err != nil {
		return fmt.Errorf("signature recovery failed: %w", err)
	}
	if crypto.PubkeyToAddress(*pub) != b.cfg.Registrar {
		return fmt.Errorf("signature not from registrar")
	}

	b.mu.Lock()
	if existing, ok := b.users[sender]; ok {
		b.mu.Unlock()
		return fmt.Errorf("address %s already registered to stark key %s", sender.Hex(), existing)
	}
	b.users[sender] = new(big.Int).Set(starkKey)
	b.mu.Unlock()

	b.ledger.OnRevert(func() {
		b.mu.Lock()
		delete(b.users, sender)
		b.mu.Unlock()
	})

	b.logger.Info("User registered",
		zap.String("sender", sender.Hex()),
		zap.String("stark_key", starkKey.String()))
	return nil
}

// RegisteredKey returns the stark key bound to an address, or nil.
func (b *StarkBridge) RegisteredKey(sender common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if key, ok := b.users[sender]; ok {
		return new(big.Int).Set(key)
	}
	return nil
}

// Deposit pulls amount of the stablecoin from the configured source account
// and credits the (starkKey, positionID) position. The stark key must be
// registered and the asset type must match the stablecoin's.
func (b *StarkBridge) Deposit(ctx context.Context, starkKey, assetType, positionID, amount *big.Int) error {
	if assetType == nil || assetType.Cmp(b.cfg.AssetType) != 0 {
		return fmt.Errorf("unsupported asset type %s", assetType)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("deposit amount must be positive")
	}
	if !b.isRegisteredKey(starkKey) {
		return fmt.Errorf("stark key %s is not registered", starkKey)
	}

	token, err := b.ledger.Token(b.cfg.Stablecoin)
	if err != nil {
		return fmt.Errorf("stablecoin lookup failed: %w", err)
	}
	if err := token.TransferFrom(ctx, b.cfg.Account, b.cfg.DepositSource, b.cfg.Account, amount); err != nil {
		return fmt.Errorf("deposit pull failed: %w", err)
	}

	b.mu.Lock()
	key := positionKey{starkKey: starkKey.String(), positionID: positionID.String()}
	current, hadPosition := b.positions[key]
	if !hadPosition {
		current = new(big.Int)
	}
	b.positions[key] = new(big.Int).Add(current, amount)
	b.mu.Unlock()

	b.ledger.OnRevert(func() {
		b.mu.Lock()
		if hadPosition {
			b.positions[key] = current
		} else {
			delete(b.positions, key)
		}
		b.mu.Unlock()
	})

	b.logger.Info("Deposit credited",
		zap.String("stark_key", starkKey.String()),
		zap.String("position_id", positionID.String()),
		zap.String("amount", amount.String()))
	return nil
}

// PositionBalance returns the credited balance of a position.
func (b *StarkBridge) PositionBalance(starkKey, positionID *big.Int) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := positionKey{starkKey: starkKey.String(), positionID: positionID.String()}
	if balance, ok := b.positions[key]; ok {
		return new(big.Int).Set(balance)
	}
	return new(big.Int)
}

func (b *StarkBridge) isRegisteredKey(starkKey *big.Int) bool {
	if starkKey == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range b.users {
		if key.Cmp(starkKey) == 0 {
			return true
		}
	}
	return false
}
