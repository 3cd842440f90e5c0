package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Secret is a credential that may be absent. Present reports whether it was configured.
type Secret struct {
	value string
}

// NewSecret wraps a raw value; blank input yields an absent secret.
func NewSecret(value string) Secret {
	return Secret{value: strings.TrimSpace(value)}
}

// Present reports whether the secret was configured.
func (s Secret) Present() bool {
	return s.value != ""
}

// Reveal returns the raw value.
func (s Secret) Reveal() string {
	return s.value
}

// String never prints the value.
func (s Secret) String() string {
	if s.Present() {
		return "[redacted]"
	}
	return "[absent]"
}

// Storage backends.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"

	HistoryRedis  = "redis"
	HistoryBolt   = "bolt"
	HistoryMemory = "memory"

	AttachmentInline     = "inline"
	AttachmentCloudinary = "cloudinary"
	AttachmentB2         = "b2"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName  string
	AppEnv   string
	AppPort     string
	LogLevel    string
	CORSOrigins string

	StoreBackend  string
	DatabaseURL   string
	SQLitePath    string
	MongoURI      string
	MongoDatabase string
	RedisURL      string

	HistoryBackend string
	BoltPath       string

	AttachmentBackend      string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    Secret
	CloudinaryUploadFolder string
	B2AccountID            string
	B2ApplicationKey       Secret
	B2Bucket               string

	AIProvider   string
	AIModel      string
	GeminiAPIKey Secret
	OpenAIAPIKey Secret
	AIPersona    string
	TutorIdleTTL time.Duration

	AdminPassphrase Secret
	JWTSecret       string
	JWTTTL          time.Duration

	EventsChannel string
	NATSURL       string
	Location      *time.Location
}

// DefaultPersona is the tutor's standing style preamble.
const DefaultPersona = "You are the course tutor for this class board. Be professional and concise, address the student " +
	"directly in the singular, and ground answers in the board activities and course context below. " +
	"If you do not know something or it is not in the context, say that you don't know instead of guessing."

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// ProviderKey returns the API key of the configured AI provider.
func (c Config) ProviderKey() Secret {
	if c.AIProvider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("MURAL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Mural API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("store.backend", StoreSQLite)
	v.SetDefault("sqlite.path", "mural.db")
	v.SetDefault("mongo.database", "mural")
	v.SetDefault("history.backend", HistoryBolt)
	v.SetDefault("bolt.path", "mural-history.db")
	v.SetDefault("attachment.backend", AttachmentInline)
	v.SetDefault("cloudinary.folder", "mural/attachments")
	v.SetDefault("ai.provider", ProviderGemini)
	v.SetDefault("ai.persona", DefaultPersona)
	v.SetDefault("jwt.ttl", "8h")
	v.SetDefault("tutor.idle_ttl", "30m")
	v.SetDefault("events.channel", "mural")
	v.SetDefault("timezone", "America/Sao_Paulo")

	ttl, err := time.ParseDuration(v.GetString("jwt.ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid jwt ttl: %w", err)
	}
	idleTTL, err := time.ParseDuration(v.GetString("tutor.idle_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid tutor idle ttl: %w", err)
	}

	location, err := time.LoadLocation(v.GetString("timezone"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid timezone: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		LogLevel:               strings.ToLower(v.GetString("log.level")),
		CORSOrigins:            v.GetString("cors.origins"),
		StoreBackend:           strings.ToLower(v.GetString("store.backend")),
		DatabaseURL:            v.GetString("database.url"),
		SQLitePath:             v.GetString("sqlite.path"),
		MongoURI:               v.GetString("mongo.uri"),
		MongoDatabase:          v.GetString("mongo.database"),
		RedisURL:               v.GetString("redis.url"),
		HistoryBackend:         strings.ToLower(v.GetString("history.backend")),
		BoltPath:               v.GetString("bolt.path"),
		AttachmentBackend:      strings.ToLower(v.GetString("attachment.backend")),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    NewSecret(v.GetString("cloudinary.api_secret")),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		B2AccountID:            v.GetString("b2.account_id"),
		B2ApplicationKey:       NewSecret(v.GetString("b2.application_key")),
		B2Bucket:               v.GetString("b2.bucket"),
		AIProvider:             strings.ToLower(v.GetString("ai.provider")),
		AIModel:                v.GetString("ai.model"),
		GeminiAPIKey:           NewSecret(v.GetString("gemini_api_key")),
		OpenAIAPIKey:           NewSecret(v.GetString("openai_api_key")),
		AIPersona:              v.GetString("ai.persona"),
		TutorIdleTTL:           idleTTL,
		AdminPassphrase:        NewSecret(v.GetString("admin.passphrase")),
		JWTSecret:              v.GetString("jwt.secret"),
		JWTTTL:                 ttl,
		EventsChannel:          v.GetString("events.channel"),
		NATSURL:                v.GetString("nats.url"),
		Location:               location,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must be provided")
	}

	switch c.StoreBackend {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database url is required for the postgres store")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("mongo uri is required for the mongo store")
		}
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	switch c.HistoryBackend {
	case HistoryRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis url is required for the redis history backend")
		}
	case HistoryBolt, HistoryMemory:
	default:
		return fmt.Errorf("unknown history backend %q", c.HistoryBackend)
	}

	switch c.AttachmentBackend {
	case AttachmentInline, AttachmentCloudinary, AttachmentB2:
	default:
		return fmt.Errorf("unknown attachment backend %q", c.AttachmentBackend)
	}

	switch c.AIProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown ai provider %q", c.AIProvider)
	}

	return nil
}
