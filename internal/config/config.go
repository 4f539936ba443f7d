package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	AI            AIConfig
	Sandbox       SandboxConfig
	Dataset       DatasetConfig
	ObjectStore   ObjectStoreConfig
	Postgres      PostgresConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type AIConfig struct {
	Provider           string
	BaseURL            string
	APIKey             string
	Model              string
	Temperature        float64
	Timeout            time.Duration
	PromptTemplateFile string
}

type SandboxConfig struct {
	Timeout        time.Duration
	MaxSteps       uint64
	MaxOutputBytes int
	StrictFence    bool
	FigureWidth    float64
	FigureHeight   float64
}

type DatasetConfig struct {
	MaxUploadBytes int64
	PreviewRows    int
}

type ObjectStoreConfig struct {
	Enabled         bool
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	MaxRows         int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

// ConfigurationError reports a missing or invalid setting that prevents start-up.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ASKFRAME_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, &ConfigurationError{Key: "ASKFRAME_PROFILE", Reason: fmt.Sprintf("invalid profile %q", profile)}
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "ASKFRAME_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "ASKFRAME_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "ASKFRAME_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "ASKFRAME_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "ASKFRAME_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "ASKFRAME_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "ASKFRAME_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "GEMINI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "ASKFRAME_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "ASKFRAME_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "ASKFRAME_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "ASKFRAME_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyString(lookup, "ASKFRAME_AI_PROMPT_TEMPLATE_FILE", &cfg.AI.PromptTemplateFile) },
		func() error { return applyDuration(lookup, "ASKFRAME_SANDBOX_TIMEOUT", &cfg.Sandbox.Timeout) },
		func() error { return applyUint(lookup, "ASKFRAME_SANDBOX_MAX_STEPS", &cfg.Sandbox.MaxSteps) },
		func() error { return applyInt(lookup, "ASKFRAME_SANDBOX_MAX_OUTPUT_BYTES", &cfg.Sandbox.MaxOutputBytes) },
		func() error { return applyBool(lookup, "ASKFRAME_SANDBOX_STRICT_FENCE", &cfg.Sandbox.StrictFence) },
		func() error { return applyFloat(lookup, "ASKFRAME_SANDBOX_FIGURE_WIDTH", &cfg.Sandbox.FigureWidth) },
		func() error { return applyFloat(lookup, "ASKFRAME_SANDBOX_FIGURE_HEIGHT", &cfg.Sandbox.FigureHeight) },
		func() error { return applyInt64(lookup, "ASKFRAME_DATASET_MAX_UPLOAD_BYTES", &cfg.Dataset.MaxUploadBytes) },
		func() error { return applyInt(lookup, "ASKFRAME_DATASET_PREVIEW_ROWS", &cfg.Dataset.PreviewRows) },
		func() error { return applyBool(lookup, "ASKFRAME_OBJECTSTORE_ENABLED", &cfg.ObjectStore.Enabled) },
		func() error { return applyString(lookup, "ASKFRAME_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "ASKFRAME_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "ASKFRAME_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "ASKFRAME_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "ASKFRAME_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "ASKFRAME_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "ASKFRAME_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error { return applyString(lookup, "ASKFRAME_POSTGRES_DSN", &cfg.Postgres.DSN) },
		func() error { return applyInt(lookup, "ASKFRAME_POSTGRES_MAX_OPEN_CONNS", &cfg.Postgres.MaxOpenConns) },
		func() error { return applyInt(lookup, "ASKFRAME_POSTGRES_MAX_IDLE_CONNS", &cfg.Postgres.MaxIdleConns) },
		func() error { return applyDuration(lookup, "ASKFRAME_POSTGRES_CONN_MAX_IDLE_TIME", &cfg.Postgres.ConnMaxIdleTime) },
		func() error { return applyDuration(lookup, "ASKFRAME_POSTGRES_CONN_MAX_LIFETIME", &cfg.Postgres.ConnMaxLifetime) },
		func() error { return applyInt(lookup, "ASKFRAME_POSTGRES_MAX_ROWS", &cfg.Postgres.MaxRows) },
		func() error { return applyBool(lookup, "ASKFRAME_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "ASKFRAME_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "ASKFRAME_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "ASKFRAME_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	if cfg.Service.Name == "" {
		return Config{}, &ConfigurationError{Key: "ASKFRAME_SERVICE_NAME", Reason: "service name is required"}
	}
	if cfg.HTTP.Address == "" {
		return Config{}, &ConfigurationError{Key: "ASKFRAME_HTTP_ADDR", Reason: "http address is required"}
	}
	if cfg.AI.Provider != ProviderGemini && cfg.AI.Provider != ProviderOpenAI {
		return Config{}, &ConfigurationError{Key: "ASKFRAME_AI_PROVIDER", Reason: fmt.Sprintf("unsupported provider %q", cfg.AI.Provider)}
	}
	if cfg.Sandbox.MaxOutputBytes <= 0 {
		return Config{}, &ConfigurationError{Key: "ASKFRAME_SANDBOX_MAX_OUTPUT_BYTES", Reason: "must be positive"}
	}
	if cfg.Dataset.PreviewRows <= 0 {
		return Config{}, &ConfigurationError{Key: "ASKFRAME_DATASET_PREVIEW_ROWS", Reason: "must be positive"}
	}
	if cfg.Sandbox.Timeout < 0 {
		return Config{}, &ConfigurationError{Key: "ASKFRAME_SANDBOX_TIMEOUT", Reason: "must not be negative"}
	}
	return cfg, nil
}

// ValidateAI reports whether the generation credentials needed to answer questions are present.
func (c Config) ValidateAI() error {
	if strings.TrimSpace(c.AI.APIKey) == "" {
		return &ConfigurationError{Key: "ASKFRAME_AI_API_KEY", Reason: "api key is required (GEMINI_API_KEY is also accepted)"}
	}
	if strings.TrimSpace(c.AI.Model) == "" {
		return &ConfigurationError{Key: "ASKFRAME_AI_MODEL", Reason: "model is required"}
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "askframe-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		AI: AIConfig{
			Provider:    ProviderGemini,
			BaseURL:     "https://api.openai.com",
			Model:       "gemini-2.5-flash",
			Temperature: 0.1,
			Timeout:     60 * time.Second,
		},
		Sandbox: SandboxConfig{
			Timeout:        30 * time.Second,
			MaxSteps:       50_000_000,
			MaxOutputBytes: 1 << 20,
			StrictFence:    false,
			FigureWidth:    8,
			FigureHeight:   5,
		},
		Dataset: DatasetConfig{
			MaxUploadBytes: 200 << 20,
			PreviewRows:    50,
		},
		ObjectStore: ObjectStoreConfig{
			Enabled:         false,
			Endpoint:        "localhost:9000",
			Region:          "us-east-1",
			Bucket:          "askframe",
			AccessKeyID:     "minio",
			SecretAccessKey: "miniostorage",
			UseSSL:          false,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    4,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			MaxRows:         1_000_000,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyUint(lookup LookupFunc, key string, dst *uint64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
