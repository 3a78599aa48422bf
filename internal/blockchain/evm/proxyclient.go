package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ConversionProxyABI is the ABI of the deployed conversion proxy contract
const ConversionProxyABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "depositAmount", "type": "uint256"},
			{"internalType": "uint256", "name": "starkKey", "type": "uint256"},
			{"internalType": "uint256", "name": "positionId", "type": "uint256"},
			{"internalType": "bytes", "name": "signature", "type": "bytes"}
		],
		"name": "deposit",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "tokenFrom", "type": "address"},
			{"internalType": "uint256", "name": "tokenFromAmount", "type": "uint256"},
			{"internalType": "uint256", "name": "minUsdcAmount", "type": "uint256"},
			{"internalType": "uint256", "name": "starkKey", "type": "uint256"},
			{"internalType": "uint256", "name": "positionId", "type": "uint256"},
			{"internalType": "address", "name": "exchange", "type": "address"},
			{"internalType": "bytes", "name": "data", "type": "bytes"},
			{"internalType": "bytes", "name": "signature", "type": "bytes"}
		],
		"name": "depositERC20",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "minUsdcAmount", "type": "uint256"},
			{"internalType": "uint256", "name": "starkKey", "type": "uint256"},
			{"internalType": "uint256", "name": "positionId", "type": "uint256"},
			{"internalType": "address", "name": "exchange", "type": "address"},
			{"internalType": "bytes", "name": "data", "type": "bytes"},
			{"internalType": "bytes", "name": "signature", "type": "bytes"}
		],
		"name": "depositEth",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "exchange", "type": "address"},
			{"internalType": "address", "name": "token", "type": "address"}
		],
		"name": "approveSwap",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "togglePause",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "paused",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "owner",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "internalType": "address", "name": "sender", "type": "address"},
			{"indexed": false, "internalType": "address", "name": "tokenFrom", "type": "address"},
			{"indexed": false, "internalType": "uint256", "name": "tokenFromAmount", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "usdcAmount", "type": "uint256"}
		],
		"name": "LogConvertedDeposit",
		"type": "event"
	}
]`

// ConvertedDepositLog is a decoded LogConvertedDeposit event
type ConvertedDepositLog struct {
	Sender          common.Address
	TokenFrom       common.Address
	TokenFromAmount *big.Int
	UsdcAmount      *big.Int
}

// ProxyClient handles interactions with a deployed conversion proxy contract
type ProxyClient struct {
	client   *Client
	contract common.Address
	abi      abi.ABI
	logger   *zap.Logger
}

// NewProxyClient creates a new proxy contract client
func NewProxyClient(client *Client, contract common.Address, logger *zap.Logger) (*ProxyClient, error) {
	parsedABI, err := abi.JSON(strings.NewReader(ConversionProxyABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy ABI: %w", err)
	}

	return &ProxyClient{
		client:   client,
		contract: contract,
		abi:      parsedABI,
		logger:   logger.Named("proxy_client"),
	}, nil
}

// Contract returns the proxy contract address
func (p *ProxyClient) Contract() common.Address {
	return p.contract
}

// PackDeposit encodes a direct stablecoin deposit call
func (p *ProxyClient) PackDeposit(depositAmount, starkKey, positionID *big.Int, signature []byte) ([]byte, error) {
	data, err := p.abi.Pack("deposit", depositAmount, starkKey, positionID, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to pack deposit call: %w", err)
	}
	return data, nil
}

// PackDepositERC20 encodes a converted ERC-20 deposit call
func (p *ProxyClient) PackDepositERC20(
	tokenFrom common.Address,
	tokenFromAmount, minUsdcAmount, starkKey, positionID *big.Int,
	exchange common.Address,
	swapData, signature []byte,
) ([]byte, error) {
	data, err := p.abi.Pack("depositERC20",
		tokenFrom, tokenFromAmount, minUsdcAmount, starkKey, positionID, exchange, swapData, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to pack depositERC20 call: %w", err)
	}
	return data, nil
}

// PackDepositEth encodes a converted native-currency deposit call. The
// deposited value rides on the transaction itself.
func (p *ProxyClient) PackDepositEth(
	minUsdcAmount, starkKey, positionID *big.Int,
	exchange common.Address,
	swapData, signature []byte,
) ([]byte, error) {
	data, err := p.abi.Pack("depositEth",
		minUsdcAmount, starkKey, positionID, exchange, swapData, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to pack depositEth call: %w", err)
	}
	return data, nil
}

// PackApproveSwap encodes an approveSwap call
func (p *ProxyClient) PackApproveSwap(exchange, token common.Address) ([]byte, error) {
	data, err := p.abi.Pack("approveSwap", exchange, token)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approveSwap call: %w", err)
	}
	return data, nil
}

// Paused reads the contract's pause flag
func (p *ProxyClient) Paused(ctx context.Context) (bool, error) {
	data, err := p.abi.Pack("paused")
	if err != nil {
		return false, fmt.Errorf("failed to pack paused call: %w", err)
	}

	result, err := p.client.CallContract(ctx, p.contract, data)
	if err != nil {
		return false, fmt.Errorf("failed to call paused: %w", err)
	}

	values, err := p.abi.Unpack("paused", result)
	if err != nil {
		return false, fmt.Errorf("failed to decode paused result: %w", err)
	}
	paused, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected paused result type %T", values[0])
	}
	return paused, nil
}

// Owner reads the contract's owner
func (p *ProxyClient) Owner(ctx context.Context) (common.Address, error) {
	data, err := p.abi.Pack("owner")
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack owner call: %w", err)
	}

	result, err := p.client.CallContract(ctx, p.contract, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to call owner: %w", err)
	}

	values, err := p.abi.Unpack("owner", result)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode owner result: %w", err)
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected owner result type %T", values[0])
	}
	return owner, nil
}

// DepositAndWait sends a direct deposit transaction and waits for it to be
// mined
func (p *ProxyClient) DepositAndWait(
	ctx context.Context,
	depositAmount, starkKey, positionID *big.Int,
	signature []byte,
	timeout time.Duration,
) (*types.Receipt, error) {
	data, err := p.PackDeposit(depositAmount, starkKey, positionID, signature)
	if err != nil {
		return nil, err
	}
	return p.sendAndWait(ctx, data, nil, timeout)
}

// DepositERC20AndWait sends a converted ERC-20 deposit transaction and waits
// for it to be mined
func (p *ProxyClient) DepositERC20AndWait(
	ctx context.Context,
	tokenFrom common.Address,
	tokenFromAmount, minUsdcAmount, starkKey, positionID *big.Int,
	exchange common.Address,
	swapData, signature []byte,
	timeout time.Duration,
) (*types.Receipt, error) {
	data, err := p.PackDepositERC20(tokenFrom, tokenFromAmount, minUsdcAmount, starkKey, positionID, exchange, swapData, signature)
	if err != nil {
		return nil, err
	}
	return p.sendAndWait(ctx, data, nil, timeout)
}

// DepositEthAndWait sends a converted native deposit transaction carrying
// value and waits for it to be mined
func (p *ProxyClient) DepositEthAndWait(
	ctx context.Context,
	value, minUsdcAmount, starkKey, positionID *big.Int,
	exchange common.Address,
	swapData, signature []byte,
	timeout time.Duration,
) (*types.Receipt, error) {
	data, err := p.PackDepositEth(minUsdcAmount, starkKey, positionID, exchange, swapData, signature)
	if err != nil {
		return nil, err
	}
	return p.sendAndWait(ctx, data, value, timeout)
}

// ApproveSwapAndWait sends an approveSwap transaction and waits for it to be
// mined
func (p *ProxyClient) ApproveSwapAndWait(ctx context.Context, exchange, token common.Address, timeout time.Duration) (*types.Receipt, error) {
	data, err := p.PackApproveSwap(exchange, token)
	if err != nil {
		return nil, err
	}
	return p.sendAndWait(ctx, data, nil, timeout)
}

func (p *ProxyClient) sendAndWait(ctx context.Context, data []byte, value *big.Int, timeout time.Duration) (*types.Receipt, error) {
	txHash, err := p.client.SignAndSendTransaction(ctx, p.contract, data, value)
	if err != nil {
		return nil, err
	}

	receipt, err := p.client.WaitForTransaction(ctx, txHash, timeout)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Proxy transaction confirmed",
		zap.String("tx_hash", txHash.Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
		zap.Uint64("gas_used", receipt.GasUsed))

	return receipt, nil
}

// ParseConvertedDeposit decodes a LogConvertedDeposit event from a receipt
// log. Returns nil when the log belongs to another event or contract.
func (p *ProxyClient) ParseConvertedDeposit(log *types.Log) (*ConvertedDepositLog, error) {
	if log.Address != p.contract {
		return nil, nil
	}
	event := p.abi.Events["LogConvertedDeposit"]
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return nil, nil
	}

	values, err := event.Inputs.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode conversion event: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected conversion event arity %d", len(values))
	}

	decoded := &ConvertedDepositLog{
		Sender:          values[0].(common.Address),
		TokenFrom:       values[1].(common.Address),
		TokenFromAmount: values[2].(*big.Int),
		UsdcAmount:      values[3].(*big.Int),
	}
	return decoded, nil
}
