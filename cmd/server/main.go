package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/Miky-131/dXdY-starkex-peripheral/internal/api"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/bridge"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/config"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/database"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/exchange"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/ledger"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/proxy"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/service"
	"github.com/Miky-131/dXdY-starkex-peripheral/internal/worker"
)

// ledgerState exposes the ledger through the engine's state interface.
type ledgerState struct {
	*ledger.Ledger
}

func (s ledgerState) Token(addr common.Address) (proxy.Token, error) {
	return s.Ledger.Token(addr)
}

func main() {
	// Initialize logger
	logger, err := initLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Conversion Proxy Service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("db_host", cfg.Database.Host),
		zap.String("stablecoin", cfg.Proxy.Stablecoin))

	// Connect to database
	db, err := database.Connect(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	// Run migrations
	migrationPath := "internal/database/migrations/001_schema.sql"
	if err := database.RunMigrations(db, migrationPath); err != nil {
		logger.Warn("Failed to run migrations (may already be applied)", zap.Error(err))
	} else {
		logger.Info("Database migrations applied successfully")
	}

	// Build the settlement stack: ledger, bridge, exchange desk, engine
	registrarKey, err := crypto.HexToECDSA(trimHex(cfg.Proxy.RegistrarKey))
	if err != nil {
		logger.Fatal("Failed to parse registrar key", zap.Error(err))
	}
	registrar := crypto.PubkeyToAddress(registrarKey.PublicKey)

	assetType, err := cfg.Proxy.AssetType()
	if err != nil {
		logger.Fatal("Failed to parse asset type", zap.Error(err))
	}

	stablecoin := common.HexToAddress(cfg.Proxy.Stablecoin)
	proxyAcct := common.HexToAddress(cfg.Proxy.Account)
	bridgeAcct := common.HexToAddress(cfg.Proxy.BridgeAccount)
	deskAcct := common.HexToAddress(cfg.Proxy.ExchangeAccount)

	tokenLedger := ledger.New()
	tokenLedger.RegisterToken(stablecoin)

	starkBridge, err := bridge.New(bridge.Config{
		Account:       bridgeAcct,
		DepositSource: proxyAcct,
		Stablecoin:    stablecoin,
		AssetType:     assetType,
		Registrar:     registrar,
		Logger:        logger,
	}, tokenLedger)
	if err != nil {
		logger.Fatal("Failed to create bridge", zap.Error(err))
	}

	desk, err := exchange.NewDesk(tokenLedger, deskAcct, stablecoin, int64(cfg.Proxy.ExchangeFeeBps), logger)
	if err != nil {
		logger.Fatal("Failed to create exchange desk", zap.Error(err))
	}

	// Fund the desk and quote the configured tokens
	inventory, _ := new(big.Int).SetString(cfg.Proxy.ExchangeInventory, 10)
	if err := tokenLedger.Mint(stablecoin, deskAcct, inventory); err != nil {
		logger.Fatal("Failed to fund exchange desk", zap.Error(err))
	}

	rates, err := cfg.Proxy.TokenRates()
	if err != nil {
		logger.Fatal("Failed to parse token rates", zap.Error(err))
	}
	for _, rate := range rates {
		if rate.Token != ledger.NativeAssetAddress {
			tokenLedger.RegisterToken(rate.Token)
		}
		if err := desk.SetRate(rate.Token, rate.Numerator, rate.Denominator); err != nil {
			logger.Fatal("Failed to set desk rate",
				zap.String("token", rate.Token.Hex()),
				zap.Error(err))
		}
	}

	sink := worker.NewChannelSink(worker.DefaultSinkCapacity, logger)

	engine, err := proxy.New(proxy.Config{
		Account:          proxyAcct,
		Owner:            common.HexToAddress(cfg.Proxy.Owner),
		Stablecoin:       stablecoin,
		AssetType:        assetType,
		BridgeAccount:    bridgeAcct,
		TrustedForwarder: common.HexToAddress(cfg.Proxy.TrustedForwarder),
		Bridge:           starkBridge,
		State:            ledgerState{tokenLedger},
		Sink:             sink,
		Logger:           logger,
	})
	if err != nil {
		logger.Fatal("Failed to create conversion engine", zap.Error(err))
	}

	// Pre-approve the desk for every quoted token
	ownerCall := proxy.Call{Caller: common.HexToAddress(cfg.Proxy.Owner)}
	for _, rate := range rates {
		if rate.Token == ledger.NativeAssetAddress {
			continue
		}
		if err := engine.ApproveSwap(context.Background(), ownerCall, deskAcct, rate.Token); err != nil {
			logger.Fatal("Failed to approve desk for token",
				zap.String("token", rate.Token.Hex()),
				zap.Error(err))
		}
	}

	logger.Info("Settlement stack initialized",
		zap.String("registrar", registrar.Hex()),
		zap.Int("quoted_tokens", len(rates)))

	// Initialize services
	depositService := service.NewDepositService(db, engine, desk, proxyAcct, logger)

	// Initialize API handlers
	apiHandler := api.NewHandler(db, engine, depositService, tokenLedger, logger)
	router := api.SetupRouter(apiHandler, logger)

	// Create HTTP server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", serverAddr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	// Start the event recorder
	workerManager := worker.NewWorkerManager(db, sink, logger)
	workerManager.Start()

	logger.Info("Service initialized successfully",
		zap.String("status", "ready"),
		zap.Int("port", cfg.Server.Port))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for interrupt signal or server error
	select {
	case err := <-serverErrors:
		logger.Fatal("HTTP server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown workers first so buffered events get recorded
	if err := workerManager.Shutdown(10 * time.Second); err != nil {
		logger.Error("Worker shutdown error", zap.Error(err))
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
		httpServer.Close()
	} else {
		logger.Info("HTTP server stopped gracefully")
	}

	logger.Info("Service stopped successfully")
}

func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENV")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func trimHex(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
