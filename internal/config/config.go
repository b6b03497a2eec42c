package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	Env       string
	Port      string
	LogLevel  string
	LogFormat string

	DatabaseURL string
	RedisURL    string

	// Bearer tokens are HS256 JWTs signed with this secret (Supabase style)
	JWTSecret string

	// AI capabilities
	AIStubMode            bool
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIModel           string
	FeedbackModel         string
	ImageProvider         string // "gemini", "openai" or "stub"
	GeminiAPIKey          string
	GeminiImageModel      string
	OpenAIImageModel      string
	ImagePromptRefinement bool

	// Object storage
	ObjectStore          string // "s3" or "cloudflare"
	S3Bucket             string
	S3Region             string
	S3Endpoint           string // set for Cloudflare R2 or MinIO
	S3AccessKeyID        string
	S3SecretAccessKey    string
	S3PublicBaseURL      string
	CloudflareAccountID  string
	CloudflareAPIToken   string
	CloudflareVariant    string
	CloudflareAPIBaseURL string

	// Message content is encrypted at rest when set (base64, 32 bytes)
	MessageEncryptionKey string

	// Food group catalog manifest; empty uses the embedded default
	CatalogPath string

	// Per-call timeouts for external capabilities
	AITimeout      time.Duration
	ImageTimeout   time.Duration
	StorageTimeout time.Duration
	// ItemTimeout bounds the pipeline of one food item
	ItemTimeout time.Duration

	JobPendingTTL        time.Duration
	ReprocessSchedule    string
	ReprocessAfter       time.Duration
	ReprocessMaxAttempts int
	ReprocessTimezone    string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARNING: failed to load .env file: %v", err)
	}

	cfg := &Config{
		Env:       getEnvWithDefault("ENV", "development"),
		Port:      getEnvWithDefault("PORT", "8080"),
		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnvWithDefault("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		AIStubMode:            getBoolWithDefault("AI_STUB_MODE", false),
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:         os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:           getEnvWithDefault("OPENAI_MODEL", "gpt-5.1-chat-latest"),
		FeedbackModel:         getEnvWithDefault("FEEDBACK_MODEL", "gpt-4o"),
		ImageProvider:         getEnvWithDefault("IMAGE_PROVIDER", "gemini"),
		GeminiAPIKey:          os.Getenv("GOOGLE_GENAI_API_KEY"),
		GeminiImageModel:      getEnvWithDefault("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		OpenAIImageModel:      getEnvWithDefault("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		ImagePromptRefinement: getBoolWithDefault("IMAGE_PROMPT_REFINEMENT", false),

		ObjectStore:          getEnvWithDefault("OBJECT_STORE", "s3"),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		S3Region:             getEnvWithDefault("S3_REGION", getEnvWithDefault("AWS_REGION", "auto")),
		S3Endpoint:           os.Getenv("S3_ENDPOINT"),
		S3AccessKeyID:        os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey:    os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3PublicBaseURL:      os.Getenv("S3_PUBLIC_BASE_URL"),
		CloudflareAccountID:  os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		CloudflareAPIToken:   os.Getenv("CLOUDFLARE_API_TOKEN"),
		CloudflareVariant:    os.Getenv("CLOUDFLARE_IMAGES_DELIVERY_VARIANT"),
		CloudflareAPIBaseURL: getEnvWithDefault("CLOUDFLARE_API_BASE_URL", "https://api.cloudflare.com/client/v4"),

		MessageEncryptionKey: os.Getenv("MESSAGE_ENCRYPTION_KEY"),
		CatalogPath:          os.Getenv("CATALOG_PATH"),

		AITimeout:      getDurationWithDefault("AI_TIMEOUT", 60*time.Second),
		ImageTimeout:   getDurationWithDefault("IMAGE_TIMEOUT", 90*time.Second),
		StorageTimeout: getDurationWithDefault("STORAGE_TIMEOUT", 30*time.Second),
		ItemTimeout:    getDurationWithDefault("ITEM_TIMEOUT", 3*time.Minute),

		JobPendingTTL:        getDurationWithDefault("JOB_PENDING_TTL", 2*time.Minute),
		ReprocessSchedule:    getEnvWithDefault("REPROCESS_SCHEDULE", "*/10 * * * *"),
		ReprocessAfter:       getDurationWithDefault("REPROCESS_AFTER", 10*time.Minute),
		ReprocessMaxAttempts: getIntWithDefault("REPROCESS_MAX_ATTEMPTS", 3),
		ReprocessTimezone:    getEnvWithDefault("REPROCESS_TIMEZONE", "UTC"),
	}

	if cfg.JWTSecret == "" {
		log.Println("WARNING: JWT_SECRET not set. Every authenticated request will be rejected.")
	}

	if cfg.AIStubMode {
		log.Println("WARNING: AI_STUB_MODE enabled. Extraction and image generation return canned data.")
	}

	return cfg
}

// EnforceReprocessWindow raises ReprocessAfter above longestRun, to the
// next whole minute. A shorter window lets the sweep reprocess a
// message whose first run is still in flight.
func (c *Config) EnforceReprocessWindow(longestRun time.Duration) {
	if c.ReprocessAfter > longestRun {
		return
	}
	floor := longestRun.Truncate(time.Minute) + time.Minute
	log.Printf("WARNING: REPROCESS_AFTER=%s does not exceed the longest run (%s), using %s", c.ReprocessAfter, longestRun, floor)
	c.ReprocessAfter = floor
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("WARNING: invalid boolean for %s=%q, using %t", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getIntWithDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("WARNING: invalid integer for %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("WARNING: invalid duration for %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
