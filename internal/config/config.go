package config

// TelephonyConfig holds the telephony gateway configuration loaded from
// the environment by cmd/server.
type TelephonyConfig struct {
	Port string

	// Provider selects the telephony carrier: "pindo" or "twilio".
	Provider string

	// Pindo configuration
	PindoBaseURL  string
	PindoAPIKey   string
	PindoSenderID string

	// Twilio configuration
	TwilioAccountSID string
	TwilioAuthToken  string

	// CallerID is the outbound caller identity.
	CallerID string

	// WebhookBaseURL is the externally reachable base URL the carrier
	// posts call events to.
	WebhookBaseURL string

	// Greeting is the welcome message synthesized when a call is answered.
	Greeting string

	// Speech processor service
	SpeechServiceURL string

	// API key middleware secret. Empty disables authentication.
	APISecretKey string

	// Redis configuration for the cross-instance session manager
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// Analytics sink (Google Cloud Pub/Sub)
	AnalyticsProjectID   string
	AnalyticsTopic       string
	AnalyticsEventPrefix string

	// InstanceID identifies this pod for multi-instance monitoring.
	InstanceID string
}
