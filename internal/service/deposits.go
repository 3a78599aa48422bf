package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Miky-131/dXdY-starkex-peripheral/internal/database"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/exchange"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/models"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/proxy"
)

// DepositService runs deposits through the conversion engine and records
// every attempt, settled or rolled back, in the database.
type DepositService struct {
	db      *database.DB
	engine  *proxy.ConversionProxy
	desk    *exchange.Desk
	account common.Address // engine account, the taker of desk swaps
	logger  *zap.Logger
}

// NewDepositService creates a new deposit service
func NewDepositService(
	db *database.DB,
	engine *proxy.ConversionProxy,
	desk *exchange.Desk,
	account common.Address,
	logger *zap.Logger,
) *DepositService {
	return &DepositService{
		db:      db,
		engine:  engine,
		desk:    desk,
		account: account,
		logger:  logger.Named("deposits"),
	}
}

// DirectParams describes a direct stablecoin deposit request.
type DirectParams struct {
	Sender                common.Address
	Amount                *big.Int
	StarkKey              *big.Int
	PositionID            *big.Int
	RegistrationSignature []byte
}

// ConvertParams describes a converted deposit request. SourceToken is
// ignored for native conversions.
type ConvertParams struct {
	Sender                common.Address
	SourceToken           common.Address
	SourceAmount          *big.Int
	MinStablecoinAmount   *big.Int
	StarkKey              *big.Int
	PositionID            *big.Int
	RegistrationSignature []byte
}

// SubmitDirect executes a direct stablecoin deposit.
func (s *DepositService) SubmitDirect(ctx context.Context, params DirectParams) (*models.Deposit, error) {
	receipt, err := s.engine.Deposit(ctx, proxy.Call{Caller: params.Sender}, proxy.DepositRequest{
		Amount:                params.Amount,
		StarkKey:              params.StarkKey,
		PositionID:            params.PositionID,
		RegistrationSignature: params.RegistrationSignature,
	})

	deposit := s.record(ctx, models.DepositKindDirect, params.Sender, s.engine.Stablecoin(), params.Amount, params.StarkKey, params.PositionID, receipt, err)
	return deposit, err
}

// SubmitERC20 executes an ERC-20 converted deposit through the exchange desk.
func (s *DepositService) SubmitERC20(ctx context.Context, params ConvertParams) (*models.Deposit, error) {
	data, err := s.desk.PackSellToken(params.SourceToken, params.SourceAmount, s.account)
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap: %w", err)
	}

	receipt, err := s.engine.DepositERC20(ctx, proxy.Call{Caller: params.Sender}, proxy.ConversionRequest{
		SourceToken:           params.SourceToken,
		SourceAmount:          params.SourceAmount,
		MinStablecoinAmount:   params.MinStablecoinAmount,
		StarkKey:              params.StarkKey,
		PositionID:            params.PositionID,
		Exchange:              s.desk,
		SwapData:              data,
		RegistrationSignature: params.RegistrationSignature,
	})

	deposit := s.record(ctx, models.DepositKindERC20, params.Sender, params.SourceToken, params.SourceAmount, params.StarkKey, params.PositionID, receipt, err)
	return deposit, err
}

// SubmitNative executes a native-currency converted deposit through the
// exchange desk.
func (s *DepositService) SubmitNative(ctx context.Context, params ConvertParams) (*models.Deposit, error) {
	data, err := s.desk.PackSellEth(s.account)
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap: %w", err)
	}

	receipt, err := s.engine.DepositNative(ctx, proxy.Call{Caller: params.Sender}, proxy.NativeConversionRequest{
		Value:                 params.SourceAmount,
		MinStablecoinAmount:   params.MinStablecoinAmount,
		StarkKey:              params.StarkKey,
		PositionID:            params.PositionID,
		Exchange:              s.desk,
		SwapData:              data,
		RegistrationSignature: params.RegistrationSignature,
	})

	deposit := s.record(ctx, models.DepositKindNative, params.Sender, proxy.NativeAssetAddress, params.SourceAmount, params.StarkKey, params.PositionID, receipt, err)
	return deposit, err
}

// record persists the attempt. Recording failures are logged, not
// surfaced; the deposit itself already settled or rolled back.
func (s *DepositService) record(
	ctx context.Context,
	kind models.DepositKind,
	sender common.Address,
	sourceToken common.Address,
	sourceAmount *big.Int,
	starkKey *big.Int,
	positionID *big.Int,
	receipt *proxy.Receipt,
	depositErr error,
) *models.Deposit {
	deposit := &models.Deposit{
		Sender:       sender.Hex(),
		Kind:         kind,
		SourceToken:  sourceToken.Hex(),
		SourceAmount: sourceAmount.String(),
		StarkKey:     "0x" + starkKey.Text(16),
		PositionID:   positionID.String(),
	}

	if depositErr != nil {
		deposit.ID = uuid.New().String()
		deposit.Status = models.DepositStatusFailed
		msg := depositErr.Error()
		deposit.ErrorMessage = &msg
	} else {
		deposit.ID = receipt.ID.String()
		deposit.Status = models.DepositStatusSucceeded
		amount := receipt.StablecoinAmount.String()
		deposit.StablecoinAmount = &amount
	}

	if err := s.db.CreateDeposit(ctx, deposit); err != nil {
		s.logger.Error("Failed to record deposit attempt",
			zap.String("deposit_id", deposit.ID),
			zap.String("sender", deposit.Sender),
			zap.Error(err))
	}

	return deposit
}
