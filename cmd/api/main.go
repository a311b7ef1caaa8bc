package main

import (
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/modelgate/modelgate/config"
	"github.com/modelgate/modelgate/internal/backend/sqlbackend"
	"github.com/modelgate/modelgate/internal/bootstrap"
	"github.com/modelgate/modelgate/internal/cache"
	"github.com/modelgate/modelgate/internal/sweeper"
	"github.com/modelgate/modelgate/internal/txn"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	setupLogger(cfg.App.LogLevel)
	bootstrap.SetGinMode(cfg.App.Environment)

	b := sqlbackend.New(sqlbackend.Options{
		Host:       cfg.Database.Host,
		Port:       cfg.Database.Port,
		User:       cfg.Database.User,
		Password:   cfg.Database.Password,
		SSLMode:    cfg.Database.SSLMode,
		SessionTTL: cfg.Gateway.SessionTTL,
	})
	b.RegisterModels(cfg.Gateway.Models...)

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	defer rdb.Close()

	wrapper := txn.New(b, cache.New(rdb), cfg.Gateway.Retries)

	sw, err := sweeper.New(b, cfg.Gateway.SweepSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid sweep schedule")
	}
	sw.Start()
	defer sw.Stop()

	r := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName: "modelgate",
		Version:     cfg.App.Version,
		Backend:     b,
		Wrapper:     wrapper,
		Redis:       rdb,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateRPS:     cfg.Gateway.RateRPS,
		RateBurst:   cfg.Gateway.RateBurst,
	})

	log.Info().Str("port", cfg.Server.Port).Msg("listening")
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
