package handler

import (
	"context"
	"fmt"

	"github.com/gorilla/mux"
	"github.com/realjules/SpeakWise/internal/adapters/pindo"
	"github.com/realjules/SpeakWise/internal/adapters/telephony"
	"github.com/realjules/SpeakWise/internal/adapters/twilio"
	"github.com/realjules/SpeakWise/internal/config"
	"github.com/realjules/SpeakWise/internal/repository"
	"github.com/realjules/SpeakWise/internal/services/audio"
	"github.com/realjules/SpeakWise/internal/services/call"
	"github.com/realjules/SpeakWise/internal/session"
	"github.com/realjules/SpeakWise/pkg/analytics"
	"github.com/realjules/SpeakWise/pkg/logger"
	"github.com/realjules/SpeakWise/pkg/redis"
	"github.com/realjules/SpeakWise/pkg/speech"
	"go.uber.org/zap"
)

// HandlerManager manages all handlers and their initialization
type HandlerManager struct {
	config      *config.TelephonyConfig
	provider    telephony.Provider
	registry    *call.Registry
	router      *audio.Router
	repoManager repository.RepositoryManager

	analyticsSink analytics.Sink
	sessionMgr    *session.Manager
}

// NewHandlerManager creates and initializes all handlers and services
func NewHandlerManager(cfg *config.TelephonyConfig) (*HandlerManager, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	logger.Base().Info("telephony provider configured",
		zap.String("provider", provider.Name()))

	processor := speech.NewHTTPProcessor(cfg.SpeechServiceURL, 0)
	audioRouter := audio.NewRouter(processor)

	// Database is optional: the gateway keeps serving calls without it.
	var repoManager repository.RepositoryManager
	if repository.IsDatabaseConfigured() {
		repoManager, err = repository.NewRepositoryManager()
		if err != nil {
			logger.Base().Warn("failed to connect to database, running without persistence", zap.Error(err))
			repoManager = nil
		}
	} else {
		logger.Base().Info("no database configured, running without persistence")
	}

	// Redis is optional: without it the gateway runs single-instance.
	var sessionMgr *session.Manager
	if cfg.RedisHost != "" {
		redisSvc, err := redis.NewRedisService(&redis.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err != nil {
			logger.Base().Warn("failed to initialize redis service, running without session manager", zap.Error(err))
		} else {
			sessionMgr = session.NewManager(redisSvc, cfg.InstanceID)
			logger.Base().Info("session manager initialized",
				zap.String("instance_id", cfg.InstanceID))
		}
	}

	// Analytics sink is optional and best-effort.
	var sink analytics.Sink
	if cfg.AnalyticsProjectID != "" && cfg.AnalyticsTopic != "" {
		pubsubSink, err := analytics.NewPubSubSink(context.Background(), &analytics.Config{
			ProjectID:   cfg.AnalyticsProjectID,
			TopicName:   cfg.AnalyticsTopic,
			EventPrefix: cfg.AnalyticsEventPrefix,
		})
		if err != nil {
			logger.Base().Warn("failed to initialize analytics sink, running without analytics", zap.Error(err))
		} else {
			sink = pubsubSink
			logger.Base().Info("analytics sink initialized",
				zap.String("topic", cfg.AnalyticsTopic))
		}
	}

	registryOpts := []call.Option{
		call.WithGreeting(cfg.Greeting),
		call.WithCallerID(cfg.CallerID),
	}
	if sink != nil {
		registryOpts = append(registryOpts, call.WithAnalytics(sink))
	}
	if sessionMgr != nil {
		registryOpts = append(registryOpts, call.WithSessionManager(sessionMgr))
	}
	if repoManager != nil {
		registryOpts = append(registryOpts, call.WithRepository(repoManager))
	}

	registry := call.NewRegistry(provider, audioRouter, processor, registryOpts...)

	// Hangups broadcast by other instances finalize the local session.
	if sessionMgr != nil {
		err := sessionMgr.SubscribeToHangup(context.Background(), func(callID string) {
			registry.HandleCallEvent(context.Background(), &telephony.WebhookEvent{
				CallID: callID,
				Event:  telephony.EventCompleted,
			})
		})
		if err != nil {
			logger.Base().Warn("failed to subscribe to hangup broadcasts", zap.Error(err))
		}
	}

	return &HandlerManager{
		config:        cfg,
		provider:      provider,
		registry:      registry,
		router:        audioRouter,
		repoManager:   repoManager,
		analyticsSink: sink,
		sessionMgr:    sessionMgr,
	}, nil
}

func buildProvider(cfg *config.TelephonyConfig) (telephony.Provider, error) {
	switch cfg.Provider {
	case "", "pindo":
		return pindo.NewClient(pindo.Config{
			BaseURL:       cfg.PindoBaseURL,
			APIKey:        cfg.PindoAPIKey,
			DefaultSender: cfg.PindoSenderID,
			WebhookURL:    cfg.WebhookBaseURL + "/telephony/webhook",
		}), nil
	case "twilio":
		return twilio.NewAdapter(twilio.Config{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			CallerID:   cfg.CallerID,
			WebhookURL: cfg.WebhookBaseURL + "/telephony/webhook",
		})
	default:
		return nil, fmt.Errorf("unknown telephony provider %q", cfg.Provider)
	}
}

// SetupAllRoutes sets up all routes with middleware
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	// Apply global middleware
	router.Use(CORSMiddleware)
	router.Use(GlobalLoggingMiddleware)

	hm.SetupTelephonyRoutes(router)

	logger.Base().Info("all application routes registered")
}

// SetupTelephonyRoutes sets up webhook, call-control, audio and SMS routes
func (hm *HandlerManager) SetupTelephonyRoutes(router *mux.Router) {
	// Pindo's voice API also carries SMS; other providers may not.
	smsSender, _ := hm.provider.(telephony.SMSSender)

	telephonyHandler := NewTelephonyHandler(hm.registry, hm.router, hm.provider, smsSender, hm.analyticsSink, hm.repoManager, hm.sessionMgr)
	streamHandler := NewStreamHandler(hm.registry, hm.router)
	historyHandler := NewHistoryHandler(hm.repoManager)

	tele := router.PathPrefix("/telephony").Subrouter()
	tele.Use(ValidationMiddleware)

	// Carrier-facing endpoints are authenticated by the carrier.
	tele.HandleFunc("/webhook", telephonyHandler.HandleWebhook).Methods("POST")
	tele.HandleFunc("/audio/{call_id}", telephonyHandler.IngestAudio).Methods("POST")
	tele.HandleFunc("/stream/{call_id}", streamHandler.StreamAudio).Methods("GET")
	tele.HandleFunc("/health", telephonyHandler.Health).Methods("GET")

	// Call-control endpoints require the API key when one is configured.
	api := tele.NewRoute().Subrouter()
	api.Use(LoggingMiddleware)
	api.Use(APIKeyMiddleware(hm.config.APISecretKey))
	api.HandleFunc("/call", telephonyHandler.InitiateCall).Methods("POST")
	api.HandleFunc("/call/{call_id}", telephonyHandler.GetCall).Methods("GET")
	api.HandleFunc("/call/{call_id}", telephonyHandler.EndCall).Methods("DELETE")
	api.HandleFunc("/call/{call_id}/dtmf", telephonyHandler.SendDTMF).Methods("POST")
	api.HandleFunc("/call/{call_id}/play", telephonyHandler.PlayAudio).Methods("POST")
	api.HandleFunc("/calls", telephonyHandler.ListCalls).Methods("GET")
	api.HandleFunc("/sms", telephonyHandler.SendSMS).Methods("POST")
	api.HandleFunc("/status", telephonyHandler.Status).Methods("GET")
	api.HandleFunc("/history/calls", historyHandler.ListCallRecords).Methods("GET")
	api.HandleFunc("/history/calls/{call_id}", historyHandler.GetCallRecord).Methods("GET")
	api.HandleFunc("/history/sms", historyHandler.ListSMSRecords).Methods("GET")
}

// Registry exposes the call registry for shutdown coordination.
func (hm *HandlerManager) Registry() *call.Registry {
	return hm.registry
}

// Shutdown releases the handler manager's resources.
func (hm *HandlerManager) Shutdown() {
	hm.registry.Shutdown()
	if hm.analyticsSink != nil {
		if err := hm.analyticsSink.Close(); err != nil {
			logger.Base().Warn("failed to close analytics sink", zap.Error(err))
		}
	}
	if hm.repoManager != nil {
		if err := hm.repoManager.Close(); err != nil {
			logger.Base().Warn("failed to close database connection", zap.Error(err))
		}
	}
}
