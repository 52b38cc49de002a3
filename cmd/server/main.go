package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"retroim/internal/config"
	"retroim/internal/httpserver"
	"retroim/internal/logging"
	"retroim/internal/security"
	"retroim/internal/service"
	"retroim/internal/store/redis"
	"retroim/internal/store/sqlite"
	"retroim/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	if err := sqlite.Migrate(db); err != nil {
		log.Fatal("migrate database", zap.Error(err))
	}

	backend := service.NewBackend(log, sqlite.NewUserStore(db), service.Config{
		SyncInterval:  cfg.Backend.SyncInterval,
		SyncBatchSize: cfg.Backend.SyncBatchSize,
		ReapInterval:  cfg.Backend.ReapInterval,
	})

	if cfg.Redis.Enabled {
		mirror, err := redis.NewPresenceMirror(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal("connect redis", zap.Error(err))
		}
		defer func() { _ = mirror.Close() }()
		backend.SetPresenceMirror(mirror)
		log.Info("presence mirror enabled", zap.String("addr", cfg.Redis.Addr))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go backend.RunSyncLoop(ctx)
	go backend.RunReaperLoop(ctx)

	adminTokens := security.NewAdminTokens(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
	wsHandler := ws.MakeHandler(log, backend, cfg.Server.CORSOrigins, cfg.Server.WSIdleTimeout)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: httpserver.NewRouter(cfg, backend, adminTokens, wsHandler),
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	// the sync loop's final flush raced the cancel; flush once more so no
	// dirty pair is lost on the way out
	backend.FlushDirty(shutdownCtx)
	log.Info("bye")
}
