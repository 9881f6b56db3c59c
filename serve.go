package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/chatrelay/adapters/hasher"
	httpadapter "github.com/satriahrh/cocoa-fruit/chatrelay/adapters/http"
	"github.com/satriahrh/cocoa-fruit/chatrelay/adapters/llm"
	"github.com/satriahrh/cocoa-fruit/chatrelay/adapters/queue"
	"github.com/satriahrh/cocoa-fruit/chatrelay/adapters/speech"
	"github.com/satriahrh/cocoa-fruit/chatrelay/adapters/telegram"
	"github.com/satriahrh/cocoa-fruit/chatrelay/adapters/tts"
	"github.com/satriahrh/cocoa-fruit/chatrelay/adapters/websocket"
	"github.com/satriahrh/cocoa-fruit/chatrelay/config"
	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
	"github.com/satriahrh/cocoa-fruit/chatrelay/usecase"
	"github.com/satriahrh/cocoa-fruit/chatrelay/utils/log"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay",
	Long: `Run the relay with configuration from the environment (and .env when present).

TELEGRAM_MODE selects polling, webhook or off; WEBSOCKET_ENABLED mounts /ws.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	_ = gotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Debug {
		if l, err := zap.NewDevelopment(); err == nil {
			log.SetLogger(l)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := log.WithCtx(ctx)

	backend, transcriber, closers, err := buildBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn("failed to close client", zap.Error(err))
			}
		}
	}()

	svc := usecase.NewChatService(usecase.NewMemoryHistory(), backend, usecase.Options{
		PhraseThreshold: cfg.PhraseThreshold,
		HistoryWindow:   cfg.HistoryWindow,
		MaxParseErrors:  cfg.MaxParseErrors,
	})
	jobs := queue.NewConversationQueue(ctx, queue.DefaultCapacity, queue.DefaultIdleTimeout)
	router := usecase.NewRouter(svc, jobs, usecase.KeywordClassifier)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))
	e.Use(middleware.BodyLimit("2MB"))

	var (
		updates httpadapter.UpdateHandler
		secret  string
	)
	if cfg.TelegramMode != config.ModeOff {
		client := telegram.NewClient(cfg.TelegramBotURL(), cfg.TelegramFileURL(), cfg.RequestTimeout)
		username := cfg.TelegramBotUsername
		if username == "" {
			me, err := client.GetMe(ctx)
			if err != nil {
				return fmt.Errorf("resolve bot username: %w", err)
			}
			username = me.Username
		}
		router.Mount(telegram.Source, telegram.NewTransport(client))
		bot := telegram.NewBot(client, username, router, transcriber)

		switch cfg.TelegramMode {
		case config.ModeWebhook:
			secret = hasher.New(username).Hash([]byte(cfg.TelegramToken))
			hookURL := strings.TrimRight(cfg.WebhookURL, "/") + httpadapter.WebhookPath(secret)
			if err := client.SetWebhook(ctx, hookURL); err != nil {
				return fmt.Errorf("register webhook: %w", err)
			}
			updates = bot
		case config.ModePolling:
			if err := client.DeleteWebhook(ctx); err != nil {
				logger.Warn("failed to delete webhook before polling", zap.Error(err))
			}
			poller := telegram.NewPoller(client, bot, cfg.TelegramPollTimeout)
			go func() {
				if err := poller.Run(ctx); err != nil {
					logger.Error("telegram polling failed", zap.Error(err))
				}
			}()
		}
		logger.Info("telegram enabled", zap.String("mode", cfg.TelegramMode), zap.String("bot", username))
	}

	httpadapter.NewHandler(ctx, updates, secret, jobs).Register(e)

	var hub *websocket.Hub
	if cfg.WebsocketEnabled {
		hub = websocket.NewHub()
		router.Mount(websocket.Source, hub)
		e.GET("/ws", websocket.NewServer(ctx, hub, router).Handler)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.ListenAddr), zap.String("provider", cfg.Provider))
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-serverErr:
		logger.Error("server stopped", zap.Error(err))
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	if hub != nil {
		hub.CloseAll()
	}
	stop()
	_ = jobs.Close()
	return err
}

// buildBackend wires the generators for the configured provider. Gemini has
// no image endpoint here, so images fall back to OpenAI when a key is set.
func buildBackend(ctx context.Context, cfg config.Config) (usecase.Backend, domain.Transcriber, []io.Closer, error) {
	var (
		backend     usecase.Backend
		transcriber domain.Transcriber
		closers     []io.Closer
	)

	var openai *llm.OpenAIClient
	if cfg.OpenAIAPIKey != "" {
		openai = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:          cfg.OpenAIAPIKey,
			BaseURL:         cfg.OpenAIBaseURL,
			ChatModel:       cfg.OpenAIChatModel,
			CompletionModel: cfg.OpenAICompletionModel,
			MaxTokens:       cfg.MaxTokens,
			Temperature:     cfg.Temperature,
			ImageCount:      cfg.OpenAIImageCount,
			SystemPrompt:    cfg.SystemPrompt,
			Timeout:         cfg.RequestTimeout,
		})
		backend.Images = openai
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiModel, cfg.SystemPrompt, cfg.Temperature)
		if err != nil {
			return backend, nil, nil, err
		}
		backend.Chat = gemini
		backend.Stream = gemini
	default:
		if openai != nil {
			backend.Chat = openai
			backend.Stream = openai
		}
	}

	if cfg.TTSEnabled {
		voice, err := tts.NewGoogleTTS(ctx, cfg.SpeechLanguage)
		if err != nil {
			return backend, nil, closers, err
		}
		backend.Voice = voice
		closers = append(closers, voice)
	}
	if cfg.SpeechEnabled {
		stt, err := speech.NewGoogleSpeech(ctx, cfg.SpeechLanguage)
		if err != nil {
			return backend, nil, closers, err
		}
		transcriber = stt
		closers = append(closers, stt)
	}
	return backend, transcriber, closers, nil
}
