package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stupiduntilnot/chousei/internal/bot"
	"github.com/stupiduntilnot/chousei/internal/clock"
	"github.com/stupiduntilnot/chousei/internal/config"
	"github.com/stupiduntilnot/chousei/internal/control"
	"github.com/stupiduntilnot/chousei/internal/dummy"
	"github.com/stupiduntilnot/chousei/internal/gemini"
	"github.com/stupiduntilnot/chousei/internal/history"
	"github.com/stupiduntilnot/chousei/internal/line"
	"github.com/stupiduntilnot/chousei/internal/model"
	"github.com/stupiduntilnot/chousei/internal/persist"
	"github.com/stupiduntilnot/chousei/internal/window"
)

func main() {
	cfg, err := config.LoadBotConfig()
	if err != nil {
		log.Fatalf("[bot] %v", err)
	}

	backend, closeBackend, err := openBackend(cfg)
	if err != nil {
		log.Fatalf("[bot] %v", err)
	}
	defer closeBackend()

	store := history.NewStore()
	state, err := backend.Load()
	if err != nil {
		// Corruption never blocks startup; we continue from empty history.
		log.Printf("[bot] state load recovered with empty history: %v", err)
	}
	store.Restore(state)

	gen, err := newGenerator(cfg)
	if err != nil {
		log.Fatalf("[bot] failed to init generator: %v", err)
	}

	gateway := line.NewClient(
		cfg.LINEAPIBase,
		cfg.LINEChannelAccessToken,
		time.Duration(cfg.HTTPTimeoutSeconds)*time.Second,
	)

	handler := bot.NewHandler(
		store,
		backend,
		window.NewBuilder(cfg.Location),
		gateway,
		gen,
		clock.System{},
		control.NewCircuitBreaker(5, 30*time.Second),
		bot.Options{
			MentionToken:  cfg.MentionToken,
			BotName:       cfg.BotName,
			SystemPrompt:  cfg.SystemPrompt,
			Retention:     cfg.Retention(),
			MaxRecords:    cfg.MaxRecords,
			PromptWindow:  cfg.PromptWindow,
			MaxReplyChars: cfg.MaxReplyChars,
			Policy: control.Policy{
				GenerateTimeout: cfg.GenerateTimeout,
				MaxRetries:      cfg.GenerateMaxRetries,
			},
		},
	)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: bot.NewRouter(handler, cfg.LINEChannelSecret),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[bot] server error: %v", err)
		}
	}()
	log.Printf(
		"bot listening port=%d backend=%s provider=%s conversations=%d",
		cfg.Port,
		cfg.StoreBackend,
		cfg.ModelProvider,
		len(store.Conversations()),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("[bot] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[bot] shutdown: %v", err)
	}
}

func openBackend(cfg config.BotConfig) (persist.Backend, func(), error) {
	if cfg.StoreBackend == config.BackendSQLite {
		sb, err := persist.OpenSQLite(cfg.StorePath)
		if err != nil {
			return nil, nil, err
		}
		return sb, func() { sb.Close() }, nil
	}
	return persist.NewFileBackend(cfg.StorePath), func() {}, nil
}

func newGenerator(cfg config.BotConfig) (model.Generator, error) {
	if cfg.ModelProvider == config.ProviderDummy {
		return dummy.NewGenerator(cfg.DummyGeneratorScript)
	}
	return gemini.NewClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
}
