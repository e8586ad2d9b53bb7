package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wuwenbin0122/marefa.ai/internal/api"
	"github.com/wuwenbin0122/marefa.ai/internal/auth"
	"github.com/wuwenbin0122/marefa.ai/internal/chat"
	"github.com/wuwenbin0122/marefa.ai/internal/db"
	"github.com/wuwenbin0122/marefa.ai/internal/gateway"
	"github.com/wuwenbin0122/marefa.ai/internal/store"
	"github.com/wuwenbin0122/marefa.ai/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: failed to build: %v", err)
	}
	defer logger.Sync()

	if cfg.JWTSecretGenerated {
		logger.Warn("config: JWT_SECRET not set, using a random per-process secret; tokens will not survive a restart")
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conversations, err := db.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("store: failed to open", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := conversations.Close(closeCtx); err != nil {
			logger.Warn("store: close error", zap.Error(err))
		}
	}()

	completions, err := gateway.New(
		providerOrNil(cfg.Providers.OpenAI),
		providerOrNil(cfg.Providers.Perplexity),
		logger,
	)
	if err != nil {
		logger.Fatal("gateway: no provider configured", zap.Error(err))
	}

	authService, err := auth.NewService(cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		logger.Fatal("auth: failed to initialise", zap.Error(err))
	}
	if err := authService.SeedAdmin(cfg.Admin.Email, cfg.Admin.Password); err != nil {
		logger.Fatal("auth: failed to seed admin", zap.Error(err))
	}

	chatService := chat.NewService(conversations, completions, logger,
		chat.WithContextWindow(cfg.Conversation.ContextWindow),
		chat.WithTurnTimeout(cfg.Providers.OpenAI.Timeout+30*time.Second),
	)

	handler := api.NewHandler(authService, chatService, logger, api.HandlerConfig{
		Version:       cfg.Version,
		ListingPublic: cfg.Admin.ListingPublic,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		FrontendURL: cfg.FrontendURL,
		StaticDir:   cfg.StaticDir,
		RateLimit:   cfg.RateLimit,
		ConnectSrc:  connectSources(cfg.Providers),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Providers.OpenAI.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweeper := store.NewSweeper(conversations, cfg.Conversation.SweepInterval, cfg.Conversation.MaxAge, logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.Store.Backend),
			zap.Bool("openai", cfg.Providers.OpenAI.Configured()),
			zap.Bool("perplexity", cfg.Providers.Perplexity.Configured()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server crashed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return sweeper.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}

	logger.Info("server stopped cleanly")
}

// providerOrNil keeps unconfigured providers as an untyped nil interface.
func providerOrNil(cfg utils.ProviderConfig) gateway.Provider {
	if p := gateway.NewOpenAICompatible(cfg); p != nil {
		return p
	}
	return nil
}

func connectSources(providers utils.ProvidersConfig) []string {
	var sources []string
	for _, p := range []utils.ProviderConfig{providers.OpenAI, providers.Perplexity} {
		if p.Configured() {
			sources = append(sources, p.BaseURL)
		}
	}
	return sources
}
