package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lojasmm/papo/internal/ai"
	aitools "github.com/lojasmm/papo/internal/ai/tools"
	"github.com/lojasmm/papo/internal/api"
	"github.com/lojasmm/papo/internal/bot"
	"github.com/lojasmm/papo/internal/chat"
	"github.com/lojasmm/papo/internal/command"
	"github.com/lojasmm/papo/internal/config"
	"github.com/lojasmm/papo/internal/session"
	"github.com/lojasmm/papo/internal/store"
	"github.com/lojasmm/papo/internal/whatsapp"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", "", "dotenv file to load (default .env if present)")
	dataDir := pflag.String("data-dir", "", "directory for the user database (overrides DATA_DIR)")
	pflag.Parse()

	cfg, err := config.Load(config.Options{EnvFile: *envFile, DataDir: *dataDir})
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := store.NewBoltStore(filepath.Join(cfg.DataDir, "papo.db"))
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer db.Close()

	agent := ai.NewAgent(ai.NewClient(cfg.ChatAPIURL, cfg.ChatAPIKey), aitools.BuildRegistry("/"), ai.AgentConfig{
		Model:         cfg.ChatModel,
		SystemPrompt:  cfg.SystemPrompt,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
		MaxIterations: cfg.MaxToolIterations,
		Window: chat.Window{
			MaxMessages: cfg.HistoryMaxMessages,
			MaxTokens:   cfg.HistoryMaxTokens,
			Tokenizer:   chat.DefaultTokenizer(),
		},
	})

	commands := command.NewRegistry()
	commands.Register(command.NewStatus("/"))
	commands.Register(command.NewImage(cfg.ImageDir))
	if cfg.SeedreamAPIKey != "" {
		commands.Register(command.NewSeedream(cfg.SeedreamAPIKey))
	}

	sessionMgr := session.NewManager()

	// Periodic cleanup of stale per-user locks to prevent memory leaks
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if n := sessionMgr.Cleanup(1 * time.Hour); n > 0 {
				log.Printf("papo: removed %d idle session locks", n)
			}
		}
	}()

	botHandler := bot.NewHandler(db, commands, agent, sessionMgr)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Mount("/v1", api.NewHandler(botHandler).Routes())

	// turns started from the webhook outlive its request
	var inflight sync.WaitGroup
	if cfg.WhatsAppEnabled() {
		waClient := whatsapp.NewClient(cfg.WAPhoneNumberID, cfg.WAAccessToken)
		// one goroutine per sender; a sender's messages in a batch run in order
		webhookHandler := whatsapp.NewWebhookHandler(cfg.WAVerifyToken, func(_ string, msgs []whatsapp.Inbound) {
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				for _, in := range msgs {
					handleWhatsApp(botHandler, waClient, in)
				}
			}()
		})
		r.Get("/webhook", webhookHandler.HandleVerify)
		r.Post("/webhook", webhookHandler.HandleIncoming)
		log.Printf("papo: webhook verify token = %s", cfg.WAVerifyToken)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("papo: listening on :%s (model %s)", cfg.Port, cfg.ChatModel)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("papo: shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	inflight.Wait()
	log.Println("papo: stopped")
}

func handleWhatsApp(h *bot.Handler, wa *whatsapp.Client, in whatsapp.Inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := h.HandleEvent(ctx, wa.Event(ctx, in), wa.ReplierFor(in.From)); err != nil {
		log.Printf("papo: turn for %s failed: %v", in.From, err)
	}
}
