package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"house-marketplace/internal/config"
	"house-marketplace/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var fiberApp *fiber.App
var appCfg *config.Config
var deps *router.Deps

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("APP_ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	appCfg = cfg
	app, d, err := router.CreateApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app create")
	}
	fiberApp = app
	deps = d
}

func Handler(w http.ResponseWriter, r *http.Request) {
	adaptor.FiberApp(fiberApp)(w, r)
}

func main() {
	ctx := context.Background()

	if deps.DB != nil {
		sqlDB, err := deps.DB.DB()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres: get DB")
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres connection failed")
		}
		log.Info().Msg("postgres connected")
	}
	if deps.Mongo != nil {
		if err := deps.Mongo.Ping(ctx, nil); err != nil {
			log.Fatal().Err(err).Msg("mongo connection failed")
		}
		log.Info().Msg("mongo connected")
	}
	if err := deps.Rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	log.Info().Msg("redis connected")

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Info().Msg("shutting down")
		_ = fiberApp.ShutdownWithTimeout(10 * time.Second)
	}()

	log.Info().Str("port", appCfg.Port).Str("document_store", appCfg.DocumentStore).Str("blob_store", appCfg.BlobStore).
		Msg("server listening")
	if err := fiberApp.Listen(":" + appCfg.Port); err != nil {
		log.Fatal().Err(err).Msg("listen")
	}

	if deps.Mongo != nil {
		_ = deps.Mongo.Disconnect(context.Background())
	}
	_ = deps.Rdb.Close()
}
