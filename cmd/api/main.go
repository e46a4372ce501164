package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"talkmubio-backend/internal/book"
	"talkmubio-backend/internal/config"
	"talkmubio-backend/internal/dispatch"
	"talkmubio-backend/internal/history"
	"talkmubio-backend/internal/images"
	"talkmubio-backend/internal/narrative"
	"talkmubio-backend/internal/openai"
	"talkmubio-backend/internal/questions"
	"talkmubio-backend/internal/reconcile"
	"talkmubio-backend/internal/retell"
	fsstore "talkmubio-backend/internal/storage/firestore"
	"talkmubio-backend/internal/storage/gcs"
	"talkmubio-backend/pkg/logger"
	"talkmubio-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := fsstore.NewStore(rootCtx, cfg.Firebase.ProjectID)
	if err != nil {
		log.Error("firestore init failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	blobs, err := gcs.NewBlobStore(rootCtx, cfg.Firebase.StorageBucket)
	if err != nil {
		log.Error("blob store init failed", "err", err)
		os.Exit(1)
	}
	defer blobs.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	var retellOpts []retell.Option
	if cfg.Retell.BaseURL != "" {
		retellOpts = append(retellOpts, retell.WithBaseURL(cfg.Retell.BaseURL))
	}
	retellClient, err := retell.NewClient(cfg.Retell.APIKey, retellOpts...)
	if err != nil {
		log.Error("retell client init failed", "err", err)
		os.Exit(1)
	}

	var openaiOpts []openai.Option
	if cfg.OpenAI.BaseURL != "" {
		openaiOpts = append(openaiOpts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	llm, err := openai.NewClient(cfg.OpenAI.APIKey, openaiOpts...)
	if err != nil {
		log.Error("openai client init failed", "err", err)
		os.Exit(1)
	}

	gate, err := reconcile.NewRedisGate(rdb, cfg.Webhook.DedupTTL)
	if err != nil {
		log.Error("dedup gate init failed", "err", err)
		os.Exit(1)
	}

	narrator := narrative.NewService(llm)
	illustrator := images.NewGenerator(llm, blobs)
	callHistory := history.NewService(store.History(), log)
	suggestions := questions.NewService(store, narrator, store.Questions(), log)

	engine := reconcile.NewEngine(gate, store, narrator, illustrator, log, callHistory, suggestions)
	books := book.NewService(llm, illustrator, store, store, log)

	// Scheduled phone calls are dispatched from a single in-process loop.
	loop := dispatch.NewLoop(store, retellClient, cfg.Retell.FromNumber, log)
	go loop.Run(rootCtx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, deps{
		engine: engine,
		repo:   store,
		caller: retellClient,
		books:  books,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
