package server

import (
	"context"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/refgraph/refgraph-api/internal/config"
	"github.com/refgraph/refgraph-api/internal/contracts"
	"github.com/refgraph/refgraph-api/internal/handlers"
	"github.com/refgraph/refgraph-api/internal/logger"
	"github.com/refgraph/refgraph-api/internal/services"
	"github.com/refgraph/refgraph-api/internal/store"
	"github.com/refgraph/refgraph-api/internal/wallet"
)

// Handler Definitions
var (
	cfg             *config.Config
	sessionHandler  *handlers.SessionHandler
	referralHandler *handlers.ReferralHandler
	healthHandler   *handlers.HealthHandler

	sessionService *services.SessionService
)

// InitializeHandlers wires configuration, storage, the wallet provider and
// the services behind the HTTP handlers. A missing wallet provider is not
// fatal: connect requests then fail with the provider-unavailable error.
func InitializeHandlers() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		logger.Fatal("Unable to load configuration", zap.Error(err))
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		logger.Fatal("Unable to open state store", zap.Error(err))
	}

	var (
		provider wallet.Provider
		binder   contracts.Binder
	)
	rpcURL, err := cfg.RPCURL()
	if err != nil {
		logger.Warn("No RPC endpoint for configured chain, wallet provider disabled", zap.Error(err))
	} else {
		node, err := wallet.NewNodeProvider(rpcURL, cfg.KeystoreDir, cfg.KeystorePass, logger.Log)
		if err != nil {
			logger.Warn("Wallet provider unavailable", zap.String("rpc_url", rpcURL), zap.Error(err))
		} else {
			provider = node
			binder, err = contracts.NewFactory(common.HexToAddress(cfg.ContractAddr), node.Backend())
			if err != nil {
				logger.Fatal("Unable to build contract factory", zap.Error(err))
			}
			logger.Info("Connected to chain RPC",
				zap.String("rpc_url", rpcURL),
				zap.Uint64("chain_id", cfg.ChainID),
				zap.String("contract", cfg.ContractAddr))
		}
	}

	fee, err := cfg.FeeBaseUnits()
	if err != nil {
		logger.Fatal("Invalid activation fee", zap.Error(err))
	}

	sessionService = services.NewSessionService(provider, binder, st)
	snapshotService := services.NewSnapshotService(cfg.NativeCurrency())
	activationService := services.NewActivationService(sessionService, snapshotService, st, fee)

	commonSvcs := handlers.NewCommonServices(cfg, sessionService, activationService, snapshotService, st)
	sessionHandler = handlers.NewSessionHandler(commonSvcs)
	referralHandler = handlers.NewReferralHandler(commonSvcs)
	healthHandler = handlers.NewHealthHandler()

	// Reconcile provider notifications for the process lifetime, and
	// silently restore a prior session if one was marked active.
	ctx := context.Background()
	sessionService.Start(ctx)
	sessionService.Restore(ctx)
}

// InitializeRoutes registers all HTTP routes on the router
func InitializeRoutes(router *gin.Engine) {
	router.Use(configureCORS())

	router.GET("/health", healthHandler.Health)

	// Referral entry point: captures the referrer and redirects to root.
	router.GET("/ref/:address", referralHandler.Capture)

	// if we are not in production, log the request body
	if os.Getenv("GIN_MODE") != "release" {
		router.Use(handlers.LogRequest())
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/session", sessionHandler.GetSession)
		v1.POST("/connect", sessionHandler.Connect)
		v1.POST("/disconnect", sessionHandler.Disconnect)
		v1.POST("/activate", sessionHandler.Activate)

		v1.GET("/referrals", referralHandler.ListReferrals)
		v1.GET("/earnings", referralHandler.GetEarnings)
		v1.GET("/referral-link", referralHandler.ReferralLink)
	}
}

// configureCORS returns a configured CORS middleware
func configureCORS() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins()

	methodsEnv := os.Getenv("CORS_ALLOWED_METHODS")
	if methodsEnv == "" {
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	} else {
		methods := strings.Split(methodsEnv, ",")
		for i, method := range methods {
			methods[i] = strings.TrimSpace(method)
		}
		corsConfig.AllowMethods = methods
	}

	headersEnv := os.Getenv("CORS_ALLOWED_HEADERS")
	if headersEnv == "" {
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	} else {
		headers := strings.Split(headersEnv, ",")
		for i, header := range headers {
			headers[i] = strings.TrimSpace(header)
		}
		corsConfig.AllowHeaders = headers
	}

	return cors.New(corsConfig)
}
