package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/Miky-131/dXdY-starkex-peripheral/internal/blockchain/evm"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/config"
)

const txTimeout = 5 * time.Minute

func main() {
	var (
		rpcEndpoint = flag.String("rpc", os.Getenv("ETH_RPC_ENDPOINT"), "Ethereum RPC endpoint")
		contract    = flag.String("contract", os.Getenv("PROXY_CONTRACT_ADDRESS"), "deployed conversion proxy address")
		usdcAddr    = flag.String("usdc", os.Getenv("ETH_USDC_ADDRESS"), "USDC token address")
		keyHex      = flag.String("key", os.Getenv("OPERATOR_EVM_PRIVATE_KEY"), "hex private key for signing")

		action    = flag.String("action", "status", "status | deposit | deposit-erc20 | deposit-eth | approve-swap")
		amount    = flag.String("amount", "", "deposit amount in source base units")
		minUsdc   = flag.String("min-usdc", "0", "minimum acceptable USDC output")
		starkKey  = flag.String("stark-key", "", "L2 stark key, hex")
		position  = flag.String("position", "", "L2 position id")
		token     = flag.String("token", "", "source ERC-20 token address")
		exchange  = flag.String("exchange", "", "exchange adapter address")
		swapData  = flag.String("swap-data", "", "hex-encoded exchange calldata")
		signature = flag.String("signature", "", "hex-encoded registration signature, empty if registered")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if *rpcEndpoint == "" || *contract == "" || *keyHex == "" {
		logger.Fatal("rpc, contract, and key are required")
	}
	if !common.IsHexAddress(*contract) {
		logger.Fatal("invalid contract address", zap.String("contract", *contract))
	}

	client, err := evm.NewClient(&config.ChainConfig{
		RPCEndpoint: *rpcEndpoint,
		USDCAddress: *usdcAddr,
		OperatorKey: *keyHex,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create EVM client", zap.Error(err))
	}
	defer client.Close()

	proxyClient, err := evm.NewProxyClient(client, common.HexToAddress(*contract), logger)
	if err != nil {
		logger.Fatal("Failed to create proxy client", zap.Error(err))
	}

	ctx := context.Background()

	switch *action {
	case "status":
		runStatus(ctx, logger, client, proxyClient)

	case "deposit":
		depositAmount := mustAmount(logger, "amount", *amount)
		key, pos := mustTarget(logger, *starkKey, *position)
		receipt, err := proxyClient.DepositAndWait(ctx, depositAmount, key, pos, common.FromHex(*signature), txTimeout)
		if err != nil {
			logger.Fatal("Deposit failed", zap.Error(err))
		}
		logger.Info("Deposit confirmed", zap.String("tx_hash", receipt.TxHash.Hex()))

	case "deposit-erc20":
		depositAmount := mustAmount(logger, "amount", *amount)
		minOut := mustAmountOrZero(logger, "min-usdc", *minUsdc)
		key, pos := mustTarget(logger, *starkKey, *position)
		tokenAddr := mustAddress(logger, "token", *token)
		exchangeAddr := mustAddress(logger, "exchange", *exchange)

		receipt, err := proxyClient.DepositERC20AndWait(ctx,
			tokenAddr, depositAmount, minOut, key, pos,
			exchangeAddr, common.FromHex(*swapData), common.FromHex(*signature), txTimeout)
		if err != nil {
			logger.Fatal("Converted deposit failed", zap.Error(err))
		}
		logConversionLogs(logger, proxyClient, receipt.Logs)
		logger.Info("Converted deposit confirmed", zap.String("tx_hash", receipt.TxHash.Hex()))

	case "deposit-eth":
		value := mustAmount(logger, "amount", *amount)
		minOut := mustAmountOrZero(logger, "min-usdc", *minUsdc)
		key, pos := mustTarget(logger, *starkKey, *position)
		exchangeAddr := mustAddress(logger, "exchange", *exchange)

		receipt, err := proxyClient.DepositEthAndWait(ctx,
			value, minOut, key, pos,
			exchangeAddr, common.FromHex(*swapData), common.FromHex(*signature), txTimeout)
		if err != nil {
			logger.Fatal("Native deposit failed", zap.Error(err))
		}
		logConversionLogs(logger, proxyClient, receipt.Logs)
		logger.Info("Native deposit confirmed", zap.String("tx_hash", receipt.TxHash.Hex()))

	case "approve-swap":
		tokenAddr := mustAddress(logger, "token", *token)
		exchangeAddr := mustAddress(logger, "exchange", *exchange)
		receipt, err := proxyClient.ApproveSwapAndWait(ctx, exchangeAddr, tokenAddr, txTimeout)
		if err != nil {
			logger.Fatal("Approve swap failed", zap.Error(err))
		}
		logger.Info("Approve swap confirmed", zap.String("tx_hash", receipt.TxHash.Hex()))

	default:
		logger.Fatal("Unknown action", zap.String("action", *action))
	}
}

func runStatus(ctx context.Context, logger *zap.Logger, client *evm.Client, proxyClient *evm.ProxyClient) {
	deployed, err := client.IsContractDeployed(ctx, proxyClient.Contract())
	if err != nil {
		logger.Fatal("Failed to check deployment", zap.Error(err))
	}
	if !deployed {
		logger.Fatal("No contract at address", zap.String("contract", proxyClient.Contract().Hex()))
	}

	paused, err := proxyClient.Paused(ctx)
	if err != nil {
		logger.Fatal("Failed to read pause state", zap.Error(err))
	}
	owner, err := proxyClient.Owner(ctx)
	if err != nil {
		logger.Fatal("Failed to read owner", zap.Error(err))
	}
	balance, err := client.GetUSDCBalance(ctx, client.OperatorAddress())
	if err != nil {
		logger.Fatal("Failed to read USDC balance", zap.Error(err))
	}

	logger.Info("Proxy status",
		zap.String("contract", proxyClient.Contract().Hex()),
		zap.Bool("paused", paused),
		zap.String("owner", owner.Hex()),
		zap.String("operator_usdc_balance", balance.String()))
}

func logConversionLogs(logger *zap.Logger, proxyClient *evm.ProxyClient, logs []*types.Log) {
	for _, entry := range logs {
		decoded, err := proxyClient.ParseConvertedDeposit(entry)
		if err != nil {
			logger.Warn("Failed to decode log", zap.Error(err))
			continue
		}
		if decoded == nil {
			continue
		}
		logger.Info("Conversion recorded on chain",
			zap.String("sender", decoded.Sender.Hex()),
			zap.String("source_token", decoded.TokenFrom.Hex()),
			zap.String("source_amount", decoded.TokenFromAmount.String()),
			zap.String("usdc_amount", decoded.UsdcAmount.String()))
	}
}

func mustAmount(logger *zap.Logger, name, value string) *big.Int {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() <= 0 {
		logger.Fatal(fmt.Sprintf("%s must be a positive base-10 integer", name))
	}
	return amount
}

func mustAmountOrZero(logger *zap.Logger, name, value string) *big.Int {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		logger.Fatal(fmt.Sprintf("%s must be a non-negative base-10 integer", name))
	}
	return amount
}

func mustTarget(logger *zap.Logger, starkKeyHex, position string) (*big.Int, *big.Int) {
	key, ok := new(big.Int).SetString(trimHex(starkKeyHex), 16)
	if !ok || key.Sign() == 0 {
		logger.Fatal("stark-key must be a non-zero hex integer")
	}
	pos, ok := new(big.Int).SetString(position, 10)
	if !ok || pos.Sign() < 0 {
		logger.Fatal("position must be a non-negative integer")
	}
	return key, pos
}

func mustAddress(logger *zap.Logger, name, value string) common.Address {
	if !common.IsHexAddress(value) {
		logger.Fatal(fmt.Sprintf("%s must be a hex address", name))
	}
	return common.HexToAddress(value)
}

func trimHex(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
