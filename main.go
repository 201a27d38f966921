package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"workchat/config"
	"workchat/data/mongoutil"
	"workchat/logger"
	"workchat/service/cluster"
	"workchat/service/socket"
	"workchat/service/storage"
	"workchat/service/watcher"
	"workchat/tools/safe"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	mongoCli, err := mongoutil.NewMongoDB(bootCtx, &mongoutil.Config{
		Uri:      cfg.MongoURI,
		Database: cfg.MongoDB,
	})
	cancel()
	if err != nil {
		logger.Errorf("mongo init: %v", err)
		return
	}
	store := storage.NewStore(mongoCli.GetDB())

	var presence storage.Presence = storage.NopPresence{}
	if cfg.RedisAddr != "" {
		if err := storage.InitRedis(storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}); err != nil {
			logger.Errorf("redis init: %v", err)
			return
		}
		defer func() { _ = storage.CloseRedis() }()
		presence = storage.NewRedisPresence(cfg.NodeID, cfg.PresenceTTL)
	}

	reg := socket.NewRegistry()
	fan := socket.NewFanout(reg, cfg.FanoutWorkers, cfg.FanoutQueue)
	defer fan.Close()

	if cfg.NatsURL != "" {
		relay, err := cluster.NewRelay(cluster.Config{
			URL:    cfg.NatsURL,
			NodeID: cfg.NodeID,
		}, fan)
		if err != nil {
			logger.Errorf("relay init: %v", err)
			return
		}
		if err := relay.Start(); err != nil {
			logger.Errorf("relay start: %v", err)
			return
		}
		defer relay.Close()
	}

	srv := socket.NewServer(socket.Options{
		NodeID:         cfg.NodeID,
		SendQueueSize:  cfg.SendQueueSize,
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
	}, reg, fan, presence)

	watcher.New(mongoCli.GetDB(), store, fan).Run(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", srv.HandleWS)
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	safe.Go("http", func() {
		logger.Infof("listening on %s node=%s", cfg.ListenAddr, cfg.NodeID)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http serve: %v", err)
			stop()
		}
	})

	<-ctx.Done()
	logger.Infof("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutCtx)
}
