package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/realjules/SpeakWise/internal/config"
	"github.com/realjules/SpeakWise/internal/handler"
	"github.com/realjules/SpeakWise/internal/services/call"
	"github.com/realjules/SpeakWise/pkg/logger"
	"go.uber.org/zap"
)

// Server represents the SpeakWise telephony gateway server
type Server struct {
	config         *config.TelephonyConfig
	router         *mux.Router
	handlerManager *handler.HandlerManager
}

// NewServer creates a new telephony gateway server
func NewServer(cfg *config.TelephonyConfig) *Server {
	// Initialize zap logger and redirect stdlib log to it
	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		logger.Base().Error("Failed to initialize zap logger, falling back to std log")
	}

	router := mux.NewRouter()

	// Initialize handler manager - it will create all services internally
	handlerManager, err := handler.NewHandlerManager(cfg)
	if err != nil {
		logger.Base().Error("Failed to initialize handler manager", zap.Error(err))
		return nil
	}

	handlerManager.SetupAllRoutes(router)

	return &Server{
		config:         cfg,
		router:         router,
		handlerManager: handlerManager,
	}
}

// Start starts the telephony gateway server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.config.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Base().Info("Starting server", zap.String("addr", addr))
	return server.ListenAndServe()
}

// LoadConfigFromEnv loads telephony gateway configuration from environment
func LoadConfigFromEnv() *config.TelephonyConfig {
	return &config.TelephonyConfig{
		Port: getEnvOrDefault("TELEPHONY_PORT", "8080"),

		Provider: getEnvOrDefault("TELEPHONY_PROVIDER", "pindo"),

		// Pindo configuration
		PindoBaseURL:  getEnvOrDefault("PINDO_BASE_URL", ""),
		PindoAPIKey:   getEnvOrDefault("PINDO_API_KEY", ""),
		PindoSenderID: getEnvOrDefault("PINDO_SENDER_ID", ""),

		// Twilio configuration
		TwilioAccountSID: getEnvOrDefault("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnvOrDefault("TWILIO_AUTH_TOKEN", ""),

		CallerID:       getEnvOrDefault("TELEPHONY_CALLER_ID", ""),
		WebhookBaseURL: getEnvOrDefault("TELEPHONY_WEBHOOK_BASE_URL", ""),
		Greeting:       getEnvOrDefault("TELEPHONY_GREETING", call.DefaultGreeting),

		// Speech processor service
		SpeechServiceURL: getEnvOrDefault("SPEECH_SERVICE_URL", "http://localhost:8081"),

		APISecretKey: getEnvOrDefault("API_SECRET_KEY", ""),

		// Redis configuration for cross-instance session management
		RedisHost:     getEnvOrDefault("REDIS_HOST", ""),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		// Analytics sink configuration
		AnalyticsProjectID:   getEnvOrDefault("ANALYTICS_PROJECT_ID", ""),
		AnalyticsTopic:       getEnvOrDefault("ANALYTICS_TOPIC", ""),
		AnalyticsEventPrefix: getEnvOrDefault("ANALYTICS_EVENT_PREFIX", ""),

		// Instance identifier for multi-pod monitoring and routing
		InstanceID: getDynamicInstanceID(),
	}
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDynamicInstanceID generates a unique identifier for this service instance.
// It first tries the system hostname (pod name in K8s), then falls back to
// a timestamp-based ID.
func getDynamicInstanceID() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return fmt.Sprintf("telephony-gateway-%d", time.Now().UnixNano())
}

func main() {
	// Load .env file for local development if it exists.
	// This will not override environment variables set by Helm/Docker.
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped (expected in production): %v", err)
	}

	cfg := LoadConfigFromEnv()

	server := NewServer(cfg)
	if server == nil {
		log.Fatal("Failed to create server")
	}
	defer logger.Sync()
	logger.Base().Info("Server initialized successfully",
		zap.String("port", cfg.Port),
		zap.String("provider", cfg.Provider),
		zap.String("instance_id", cfg.InstanceID))

	if err := server.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
