package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "LEDGERLINE_"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	Log        LogConfig        `koanf:"log"`
	Auth       AuthConfig       `koanf:"auth"`
	Audit      AuditConfig      `koanf:"audit"`
	Onboarding OnboardingConfig `koanf:"onboarding"`
	Client     ClientConfig     `koanf:"client"`
}

type AuthConfig struct {
	DevMode bool      `koanf:"devmode"`
	JWT     JWTConfig `koanf:"jwt"`
}

type JWTConfig struct {
	SigningKey         string `koanf:"signingkey"`
	Issuer             string `koanf:"issuer"`
	ExpiryHours        int    `koanf:"expiryhours"`
	RefreshExpiryHours int    `koanf:"refreshexpiryhours"`
}

type ServerConfig struct {
	Host               string   `koanf:"host"`
	Port               int      `koanf:"port"`
	BaseDomain         string   `koanf:"base_domain"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// DatabaseConfig holds connection settings. URL should name a role subject
// to row-level security; AdminURL, when set, names an owner role used for
// migrations and cross-tenant reads (role catalog reload, audit writes).
type DatabaseConfig struct {
	URL            string `koanf:"url"`
	AdminURL       string `koanf:"adminurl"`
	MigrationsPath string `koanf:"migrations_path"`
	MaxConns       int    `koanf:"max_conns"`
	// StatementTimeoutMillis bounds each statement on the tenant pool; zero
	// keeps the server default.
	StatementTimeoutMillis int `koanf:"statement_timeout_ms"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type AuditConfig struct {
	BufferSize    int `koanf:"buffer_size"`
	BatchSize     int `koanf:"batch_size"`
	FlushInterval int `koanf:"flush_interval_ms"`
}

// OnboardingConfig holds server-side workflow settings.
type OnboardingConfig struct {
	ProgressTTLSecs        int `koanf:"progress_ttl_secs"`
	StreamIntervalMillis   int `koanf:"stream_interval_ms"`
	RoleReloadIntervalSecs int `koanf:"role_reload_interval_secs"`
}

// ClientConfig holds settings for the onboarding CLI.
type ClientConfig struct {
	BaseURL             string `koanf:"base_url"`
	CredentialsPath     string `koanf:"credentials_path"`
	StepTimeoutSecs     int    `koanf:"step_timeout_secs"`
	PresetsTimeoutSecs  int    `koanf:"presets_timeout_secs"`
	ReauthenticationURL string `koanf:"reauthentication_url"`
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":                          8080,
		"server.host":                          "0.0.0.0",
		"server.base_domain":                   "localhost",
		"database.max_conns":                   25,
		"database.migrations_path":             "migrations",
		"database.statement_timeout_ms":        30000,
		"redis.db":                             0,
		"log.level":                            "info",
		"log.format":                           "json",
		"auth.devmode":                         false,
		"auth.jwt.issuer":                      "ledgerline",
		"auth.jwt.expiryhours":                 24,
		"auth.jwt.refreshexpiryhours":          168,
		"audit.buffer_size":                    4096,
		"audit.batch_size":                     100,
		"audit.flush_interval_ms":              500,
		"onboarding.progress_ttl_secs":         3600,
		"onboarding.stream_interval_ms":        500,
		"onboarding.role_reload_interval_secs": 60,
		"client.base_url":                      "http://localhost:8080",
		"client.step_timeout_secs":             15,
		"client.presets_timeout_secs":          300,
		"client.reauthentication_url":          "http://localhost:8080/auth/login",
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			continue
		}
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	// LEDGERLINE_SERVER_PORT -> server.port
	_ = k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"_", ".",
		)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
