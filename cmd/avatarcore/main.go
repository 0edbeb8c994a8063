// Command avatarcore is the main entry point for the real-time
// conversational avatar server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/auravox/core/internal/bargein"
	"github.com/auravox/core/internal/config"
	"github.com/auravox/core/internal/health"
	"github.com/auravox/core/internal/observe"
	"github.com/auravox/core/internal/orchestrator"
	"github.com/auravox/core/internal/persona"
	"github.com/auravox/core/internal/purchaseflow"
	"github.com/auravox/core/internal/resilience"
	"github.com/auravox/core/internal/session"
	"github.com/auravox/core/internal/styleimage"
	"github.com/auravox/core/internal/toolregistry"
	"github.com/auravox/core/internal/transcriber"
	"github.com/auravox/core/internal/transcript"
	transcriptpostgres "github.com/auravox/core/internal/transcript/postgres"
	"github.com/auravox/core/internal/ttsstream"
	"github.com/auravox/core/internal/wsconn"
	"github.com/auravox/core/pkg/provider/imagegen"
	"github.com/auravox/core/pkg/provider/imagegen/fal"
	"github.com/auravox/core/pkg/provider/llm"
	"github.com/auravox/core/pkg/provider/llm/openai"
	"github.com/auravox/core/pkg/provider/objectstore/s3"
	"github.com/auravox/core/pkg/provider/stt"
	"github.com/auravox/core/pkg/provider/stt/deepgram"
	sttopenai "github.com/auravox/core/pkg/provider/stt/openai"
	"github.com/auravox/core/pkg/provider/tts"
	"github.com/auravox/core/pkg/provider/tts/elevenlabs"
	"github.com/auravox/core/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "avatarcore: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "avatarcore: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{ServiceName: "avatarcore"})
	if err != nil {
		logger.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()
	metrics := observe.DefaultMetrics()

	logger.Info("avatarcore starting", "config", *configPath, "listen_addr", cfg.Server.ListenAddr)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		logger.Error("failed to build providers", "err", err)
		return 1
	}

	personaStore := persona.NewMemoryStore(convertPersonas(cfg.Personas)...)

	historyStore, err := buildTranscriptStore(cfg)
	if err != nil {
		logger.Error("failed to build transcript store", "err", err)
		return 1
	}

	purchaseTracker, err := buildPurchaseTracker(cfg)
	if err != nil {
		logger.Error("failed to build purchase-flow tracker", "err", err)
		return 1
	}

	visionServer, err := session.NewHTTPVisionServer(cfg.Server.VisionImageAddr, logger)
	if err != nil {
		logger.Error("failed to start vision image server", "err", err)
		return 1
	}
	defer visionServer.Close()

	dispatcher, styleLog, err := buildToolDispatcher(cfg, reg, providers, purchaseTracker, logger)
	if err != nil {
		logger.Error("failed to build tool dispatcher", "err", err)
		return 1
	}
	if styleLog != nil {
		defer styleLog.Close()
	}

	var ttsStreamer *ttsstream.Streamer
	if providers.TTS != nil {
		ttsStreamer = ttsstream.New(providers.TTS, logger)
	}

	orch := orchestrator.New(orchestrator.Dependencies{
		Personas:               personaStore,
		History:                historyStore,
		LLM:                    providers.LLM,
		TTS:                    ttsStreamer,
		Tools:                  dispatcher,
		Purchase:               purchaseTracker,
		Log:                    logger,
		ProductPurchaseEnabled: cfg.Purchase.ProductsEnabled,
	})

	healthHandler := health.New(health.Checker{
		Name: "providers",
		Check: func(ctx context.Context) error {
			if providers.LLM == nil {
				return fmt.Errorf("no llm provider configured")
			}
			return nil
		},
	})

	mux := http.NewServeMux()
	healthHandler.Register(mux)
	mux.HandleFunc("GET /ws", newWebSocketHandler(providers, orch, purchaseTracker, historyStore, visionServer, logger, metrics))

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(metrics)(mux),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen error", "err", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("shutdown signal received, stopping…")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
		return 1
	}
	logger.Info("goodbye")
	return 0
}

// newWebSocketHandler returns the /ws upgrade handler: one [session.Manager]
// per connection, torn down when the client disconnects or the process
// shuts down (§4.8).
func newWebSocketHandler(
	providers *builtProviders,
	orch *orchestrator.Orchestrator,
	purchase purchaseflow.StateTracker,
	history transcript.Store,
	vision *session.HTTPVisionServer,
	logger *slog.Logger,
	metrics *observe.Metrics,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		userID := q.Get("user_id")
		personaID := q.Get("persona_id")
		avatarID := q.Get("avatar_id")
		if userID == "" || personaID == "" {
			http.Error(w, "user_id and persona_id query parameters are required", http.StatusBadRequest)
			return
		}
		sessionID := uuid.NewString()

		conn, err := wsconn.Accept(w, r, logger)
		if err != nil {
			logger.Warn("websocket accept failed", "err", err)
			return
		}

		coord := bargein.New(conn, avatarID)

		sessionCfg := session.Config{
			SessionID:    sessionID,
			UserID:       userID,
			PersonaID:    personaID,
			AvatarID:     avatarID,
			Channel:      conn,
			BargeIn:      coord,
			Orchestrator: orch,
			Purchase:     purchase,
			History:      history,
			VisionImages: vision,
			Log:          logger,
		}
		if providers.STT != nil {
			sessionCfg.Transcriber = transcriber.New(providers.STT, conn, coord, logger)
		}

		mgr := session.New(sessionCfg)

		metrics.ActiveSessions.Add(r.Context(), 1)
		metrics.ActiveParticipants.Add(r.Context(), 1)
		defer func() {
			metrics.ActiveSessions.Add(context.Background(), -1)
			metrics.ActiveParticipants.Add(context.Background(), -1)
		}()

		go conn.Run(r.Context())
		if err := mgr.Start(r.Context()); err != nil {
			logger.Warn("session ended with error", "session_id", sessionID, "err", err)
		}
	}
}

// builtProviders holds the instantiated per-stage providers for the process.
type builtProviders struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// registerBuiltinProviders wires the concrete provider constructors this
// deployment ships with into the registry.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		return openai.New(e.APIKey, e.Model, openai.WithBaseURL(e.BaseURL))
	})
	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Provider, error) {
		return deepgram.New(e.APIKey, deepgram.WithModel(e.Model))
	})
	reg.RegisterSTT("openai", func(e config.ProviderEntry) (stt.Provider, error) {
		return sttopenai.New(e.APIKey, sttopenai.WithModel(e.Model))
	})
	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		return elevenlabs.New(e.APIKey, elevenlabs.WithModel(e.Model))
	})
	reg.RegisterImageGen("fal", func(e config.ProviderEntry) (imagegen.Provider, error) {
		return fal.New(e.APIKey)
	})
}

func buildProviders(cfg *config.Config, reg *config.Registry) (*builtProviders, error) {
	ps := &builtProviders{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = resilience.NewLLMFallback(p, name, resilience.FallbackConfig{})
	}
	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = resilience.NewSTTFallback(p, name, resilience.FallbackConfig{})
	}
	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		ps.TTS = resilience.NewTTSFallback(p, name, resilience.FallbackConfig{})
	}
	return ps, nil
}

func buildTranscriptStore(cfg *config.Config) (transcript.Store, error) {
	if cfg.Transcript.PostgresDSN == "" {
		return transcript.NewMemoryStore(), nil
	}
	store, err := transcriptpostgres.NewStore(context.Background(), cfg.Transcript.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect transcript store: %w", err)
	}
	return transcript.NewGuard(store), nil
}

func buildPurchaseTracker(cfg *config.Config) (purchaseflow.StateTracker, error) {
	if cfg.Purchase.RedisAddr == "" {
		return purchaseflow.New(), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Purchase.RedisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return purchaseflow.NewRedisTracker(rdb), nil
}

// buildToolDispatcher wires the Tool Dispatcher's collaborators. styleLog is
// nil (and style generation unavailable) when no object storage/image-gen
// provider pair is configured.
func buildToolDispatcher(cfg *config.Config, reg *config.Registry, providers *builtProviders, tracker purchaseflow.StateTracker, logger *slog.Logger) (*toolregistry.Dispatcher, *styleimage.Log, error) {
	deps := toolregistry.Dependencies{
		Tracker: tracker,
		Clock:   time.Now,
	}
	if providers.LLM != nil {
		deps.Celebration = toolregistry.NewLLMCelebrationGenerator(providers.LLM)
	}
	if cfg.Purchase.ProductsEnabled && cfg.Purchase.ProductsFeedURL != "" {
		deps.Products = toolregistry.NewHTTPProductsFetcher(cfg.Purchase.ProductsFeedURL)
	}

	var styleLog *styleimage.Log
	if cfg.Providers.ImageGen.Name != "" {
		imageProvider, err := reg.CreateImageGen(cfg.Providers.ImageGen)
		if err != nil {
			return nil, nil, fmt.Errorf("create imagegen provider: %w", err)
		}
		storage, err := s3.New(context.Background(),
			bucketFromOptions(cfg.Providers.ImageGen.Options),
			regionFromOptions(cfg.Providers.ImageGen.Options),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("create object storage provider: %w", err)
		}
		client := styleimage.New(imageProvider, storage, func() string {
			return strconv.FormatInt(time.Now().UnixNano(), 10)
		})
		deps.Style = client

		if cfg.Transcript.PostgresDSN != "" {
			l, err := styleimage.NewLog(context.Background(), cfg.Transcript.PostgresDSN)
			if err != nil {
				logger.Warn("style generation log unavailable, continuing without durable record", "err", err)
			} else {
				styleLog = l
				deps.StyleLog = l
			}
		}
	}

	return toolregistry.New(deps), styleLog, nil
}

func bucketFromOptions(opts map[string]any) string {
	if v, ok := opts["bucket"].(string); ok {
		return v
	}
	return ""
}

func regionFromOptions(opts map[string]any) string {
	if v, ok := opts["region"].(string); ok {
		return v
	}
	return ""
}

func convertPersonas(cfgs []config.PersonaConfig) []types.Persona {
	out := make([]types.Persona, len(cfgs))
	for i, c := range cfgs {
		out[i] = c.ToPersona()
	}
	return out
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
