package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/primebox/primebox/primebox"
	"github.com/primebox/primebox/primebox/auth"
	"github.com/primebox/primebox/primebox/boxes"
	"github.com/primebox/primebox/primebox/chain"
	"github.com/primebox/primebox/primebox/database"
	"github.com/primebox/primebox/primebox/database/repositories"
	"github.com/primebox/primebox/primebox/logger"
	"github.com/primebox/primebox/primebox/mediastore"
	"github.com/primebox/primebox/primebox/pubsub"
	"github.com/primebox/primebox/primebox/recovery"
	"github.com/primebox/primebox/primebox/redislock"
	"github.com/primebox/primebox/primebox/services"
)

const itemLockTTL = 30 * time.Minute

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting PrimeBox",
		slog.String("version", version),
		slog.String("commit", commit))

	importManifest := flag.Bool("import-manifest", false, "Sync the item catalog from the media store on startup")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := primebox.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	db, err := database.New(ctx, database.DBConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		PoolSize: cfg.DB.PoolSize,
	})
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Database ready",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Error("Redis connection failed", slog.Any("error", err))
		os.Exit(-1)
	}
	defer redisClient.Close()

	rpcPool, err := chain.NewPool(cfg.Chain.Endpoints)
	if err != nil {
		slog.Error("Failed to build RPC pool", slog.Any("error", err))
		os.Exit(-1)
	}
	program, err := chain.NewProgram(rpcPool, cfg.Chain.ProgramID, cfg.Chain.AuthorityKey, cfg.Chain.PassCollection)
	if err != nil {
		slog.Error("Failed to load program authority", slog.Any("error", err))
		os.Exit(-1)
	}

	boxRepo := repositories.NewBoxConfigRepository(db.BunDB())
	nftRepo := repositories.NewNftRepository(db.BunDB())
	recoverRepo := repositories.NewRecoverBoxRepository(db.BunDB())
	statsRepo := repositories.NewStatsRepository(db.BunDB())
	userRepo := repositories.NewUserRepository(db.BunDB())

	verifier := auth.NewVerifier(cfg.Chain.Operators)
	broadcaster := pubsub.NewRedisBroadcaster(redisClient)
	webhook := pubsub.NewWebhookEmitter(cfg.Webhook.URL)
	locker := redislock.New(redisClient, itemLockTTL)

	spaces, err := mediastore.NewSpacesStore(
		cfg.Spaces.Key,
		cfg.Spaces.Secret,
		cfg.Spaces.Region,
		cfg.Spaces.Bucket,
		cfg.Spaces.ItemRoot,
	)
	if err != nil {
		slog.Error("Failed to initialize media store", slog.Any("error", err))
		os.Exit(-1)
	}

	nftService := services.NewNftService(nftRepo, spaces, program, verifier)
	userService, err := services.NewUserService(userRepo, verifier)
	if err != nil {
		slog.Error("Failed to initialize user service", slog.Any("error", err))
		os.Exit(-1)
	}
	statsService := services.NewStatsService(statsRepo, broadcaster, verifier)
	if err := statsService.Start(ctx); err != nil {
		slog.Error("Failed to initialize stats", slog.Any("error", err))
		os.Exit(-1)
	}

	if *importManifest {
		if err := nftService.ImportManifest(ctx); err != nil {
			slog.Error("Failed to import catalog manifest", slog.Any("error", err))
			os.Exit(-1)
		}
	}

	// Flags left by a crash are cleared before workers start; adopted
	// rounds re-reserve their items.
	if err := nftService.ReleaseStale(ctx); err != nil {
		slog.Error("Failed to release stale reservations", slog.Any("error", err))
		os.Exit(-1)
	}

	recoveryService := recovery.NewService(recoverRepo, program, nftRepo, statsService)
	if err := recoveryService.Start(); err != nil {
		slog.Error("Failed to start recovery sweep", slog.Any("error", err))
		os.Exit(-1)
	}
	defer recoveryService.Stop()

	allocator := boxes.NewAllocator(nftRepo, locker, program, cfg.Boxes.PreferUnshuffled)
	validator := boxes.NewValidator(program, userService, webhook)

	boxService := boxes.NewService(boxes.WorkerDeps{
		Boxes:           boxRepo,
		Nfts:            nftRepo,
		Allocator:       allocator,
		Validator:       validator,
		Chain:           program,
		Stats:           statsService,
		Recovery:        recoveryService,
		Broadcaster:     broadcaster,
		CooldownSeconds: cfg.Boxes.CooldownSeconds,
	}, verifier)

	if err := boxService.Start(ctx); err != nil {
		slog.Error("Failed to start box service", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.Info("PrimeBox is now running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-s

	slog.Info("Shutting down...")
	boxService.Shutdown()
	cancel()
}
