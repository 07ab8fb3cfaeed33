package main

import (
	"context"
	"database/sql"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"giftbox-rest-api/internal/cache"
	"giftbox-rest-api/internal/catalog"
	"giftbox-rest-api/internal/chain"
	"giftbox-rest-api/internal/config"
	"giftbox-rest-api/internal/events"
	"giftbox-rest-api/internal/handler"
	"giftbox-rest-api/internal/logger"
	"giftbox-rest-api/internal/middleware"
	"giftbox-rest-api/internal/repository"
	"giftbox-rest-api/internal/rewards"
	"giftbox-rest-api/internal/router"
	"giftbox-rest-api/internal/service"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

func main() {
	cfg := config.MustLoad()

	if err := logger.Initialize(logger.Configuration{
		LogFile:   cfg.Log.File,
		ErrorFile: cfg.Log.ErrorFile,
		Level:     cfg.Log.Level,
		Console:   cfg.Log.Console,
	}); err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting giftbox api",
		zap.String("version", cfg.App.Version), zap.String("environment", cfg.App.Environment))

	playerRepo := openPlayerStore(cfg)
	defer playerRepo.Close()

	walletRepo, mysqlDB := openWalletStore(cfg)
	if mysqlDB != nil {
		defer mysqlDB.Close()
	}

	// Shared cache: tokens, wallet lookups, consumed transactions
	var sharedCache cache.Cache
	var cachePinger handler.Pinger
	cacheType := "memory"
	if cfg.Cache.Type == "redis" {
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			logger.Warn("redis unavailable, using in-process cache", zap.Error(err))
		} else {
			sharedCache, cachePinger, cacheType = redisCache, redisCache, "redis"
			logger.Info("redis cache initialized", zap.String("addr", cfg.Cache.RedisAddress()))
		}
	}
	if sharedCache == nil {
		sharedCache = cache.NewMemoryCache()
	}
	defer sharedCache.Close()

	boosterCatalog := catalog.Default()
	if cfg.Boosters.CatalogPath != "" {
		loaded, err := catalog.LoadOverrides(cfg.Boosters.CatalogPath)
		if err != nil {
			logger.Fatal("failed to load booster catalog", zap.String("path", cfg.Boosters.CatalogPath), zap.Error(err))
		}
		boosterCatalog = loaded
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Fatal("failed to initialize kafka publisher", zap.Error(err))
		}
		publisher = kafkaPublisher
		logger.Info("kafka publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer publisher.Close()

	// Services
	walletService := service.NewWalletService(walletRepo, sharedCache, cfg.Cache.WalletTTL)
	verifier, closeChain := newPaymentVerifier(cfg, walletService, boosterCatalog)
	defer closeChain()

	rewardService := service.NewRewardService(playerRepo, rewards.NewPolicy(cfg.Rewards), publisher, cfg.Rewards.MaxRetries)
	inventoryService := service.NewInventoryService(playerRepo, publisher, cfg.Boosters.MaxQuantity)
	guard := service.NewIdempotencyGuard(playerRepo, sharedCache, cfg.Cache.TxTTL)
	purchaseService := service.NewPurchaseService(guard, verifier, inventoryService, publisher)
	tokenService := service.NewTokenService(sharedCache, cfg.Auth.TokenTTL)

	reconcileCfg := service.DefaultReconcileConfig()
	reconcileCfg.Interval = cfg.Reconcile.Interval
	reconcileCfg.Threshold = cfg.Reconcile.Threshold
	reconciler := service.NewReconcileScheduler(playerRepo, reconcileCfg)
	reconciler.Start()
	defer reconciler.Stop()

	// Handlers
	checks := map[string]handler.Pinger{"store": playerRepo}
	if cachePinger != nil {
		checks["cache"] = cachePinger
	}
	healthHandler := handler.New(cfg.App.Name, cfg.App.Version, checks)
	adminHandler := handler.NewAdminHandler(playerRepo, cachePinger, reconciler, cfg.Store.Type, cacheType)

	if len(cfg.Auth.APIKeys) == 0 {
		logger.Warn("no API_KEYS configured, only session tokens are accepted")
	}
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		Tokens:  tokenService,
		APIKeys: cfg.Auth.APIKeys,
	})

	r := router.New(router.Config{
		Handler:        healthHandler,
		RewardHandler:  handler.NewRewardHandler(rewardService),
		BoosterHandler: handler.NewBoosterHandler(purchaseService, inventoryService, boosterCatalog),
		AdminHandler:   adminHandler,
		AuthHandler:    handler.NewAuthHandler(tokenService),
		AuthMiddleware: authMiddleware,
		LoginKey:       cfg.App.LoginKey,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Address()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func openPlayerStore(cfg *config.Config) repository.PlayerRepository {
	switch cfg.Store.Type {
	case "mongodb", "mongo":
		repo, err := repository.NewMongoDBPlayerRepository(
			cfg.Store.MongoURI,
			cfg.Store.MongoDatabase,
			cfg.Store.MongoPlayers,
			cfg.Store.MongoTransactions,
		)
		if err != nil {
			logger.Fatal("failed to initialize MongoDB", zap.Error(err))
		}
		logger.Info("MongoDB player store initialized", zap.String("database", cfg.Store.MongoDatabase))
		return repo
	case "postgres", "postgresql":
		repo, err := repository.NewPostgresPlayerRepository(cfg.Store.PostgresDSN())
		if err != nil {
			logger.Fatal("failed to initialize PostgreSQL", zap.Error(err))
		}
		logger.Info("PostgreSQL player store initialized", zap.String("host", cfg.Store.Host))
		return repo
	default:
		repo, err := repository.NewSQLitePlayerRepository(cfg.Store.Path)
		if err != nil {
			logger.Fatal("failed to initialize SQLite", zap.Error(err))
		}
		logger.Info("SQLite player store initialized", zap.String("path", cfg.Store.Path))
		return repo
	}
}

// openWalletStore connects to the MySQL wallet link table. Without it every
// wallet lookup fails and purchases are answered as retryable.
func openWalletStore(cfg *config.Config) (repository.WalletRepository, *sql.DB) {
	db, err := sql.Open("mysql", cfg.Database.DSN())
	if err != nil {
		logger.Warn("MySQL connection failed, purchases will be rejected as retryable", zap.Error(err))
		return repository.NewUnavailableWalletRepository(err), nil
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		logger.Warn("MySQL ping failed, purchases will be rejected as retryable", zap.Error(err))
		db.Close()
		return repository.NewUnavailableWalletRepository(err), nil
	}

	logger.Info("MySQL wallet repository initialized", zap.String("host", cfg.Database.Host))
	return repository.NewMySQLWalletRepository(db), db
}

func newPaymentVerifier(cfg *config.Config, wallets chain.WalletResolver, c *catalog.Catalog) (service.PaymentVerifier, func()) {
	if cfg.Chain.RPCURL == "" || !common.IsHexAddress(cfg.Chain.Treasury) {
		logger.Warn("chain RPC or treasury not configured, purchases cannot be verified")
		return chain.Unavailable{}, func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Chain.RPCTimeout)
	defer cancel()
	client, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		logger.Fatal("failed to connect to chain RPC", zap.Error(err))
	}

	chainCfg := chain.Config{
		ChainID:          big.NewInt(cfg.Chain.ChainID),
		Treasury:         common.HexToAddress(cfg.Chain.Treasury),
		MinConfirmations: cfg.Chain.MinConfirmations,
		Timeout:          cfg.Chain.RPCTimeout,
	}
	if !cfg.Chain.PaymentInNative() {
		if !common.IsHexAddress(cfg.Chain.PaymentToken) {
			logger.Fatal("invalid CHAIN_PAYMENT_TOKEN", zap.String("token", cfg.Chain.PaymentToken))
		}
		token := common.HexToAddress(cfg.Chain.PaymentToken)
		chainCfg.PaymentToken = &token
	}

	logger.Info("chain verifier initialized",
		zap.Int64("chain_id", cfg.Chain.ChainID), zap.String("treasury", chainCfg.Treasury.Hex()),
		zap.Bool("native", cfg.Chain.PaymentInNative()))
	return chain.NewVerifier(client, wallets, c, chainCfg), client.Close
}
