package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/handler"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/logger"
	repo "storefront/internal/repository"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func main() {
	//.envは無くてもよい（本番は環境変数）
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("../.env")
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewForEnvironment(cfg.GoEnv)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	//DB接続
	gormDB, err := db.Connect(cfg.DSN())
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	if err := gormDB.AutoMigrate(
		&model.Product{},
		&model.Cart{},
		&model.CartItem{},
		&model.InventoryAdjustment{},
	); err != nil {
		log.Fatal("auto migrate failed", zap.Error(err))
	}

	//スナップショットキャッシュ（REDIS_ADDR が無ければインメモリ）
	var snapshots repo.CartSnapshotCache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisSnapshotCache(cfg.RedisAddr, cfg.RedisPassword, 0)
		if err != nil {
			log.Fatal("redis connect failed", zap.Error(err))
		}
		defer func() { _ = rc.Close() }()
		snapshots = rc
	} else {
		log.Info("REDIS_ADDR not set, using in-memory cart cache")
		snapshots = cache.NewInMemorySnapshotCache()
	}

	//Repository（GORM実装）生成
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//Usecase生成
	productUC := usecase.NewProductUsecase(productRepo, txm, &uuidGenerator{}, &realClock{})
	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, productRepo, txm, snapshots, cfg.CartCacheTTL)

	e := server.New(log, server.Handlers{
		Product:      handler.NewProductHandler(productUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		Cart:         handler.NewCartHandler(cartUC),
	}, cfg.JWTSecret)

	addr := cfg.Port
	if _, err := strconv.Atoi(addr); err == nil {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.GoEnv))
	if err := server.Start(ctx, e, addr); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
