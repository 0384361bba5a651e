package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`

	Server struct {
		Port         int           `mapstructure:"port"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		BodyLimit    string        `mapstructure:"body_limit"`
	} `mapstructure:"server"`
	DB struct {
		Enabled  bool   `mapstructure:"enabled"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Model Model `mapstructure:"model"`
	Flows struct {
		// MaxConcurrency bounds the model calls a farm analysis runs at once.
		// A farm of n crops makes up to n+1 calls in ceil((n+1)/MaxConcurrency)
		// rounds of at most model.timeout each, and the whole analysis must fit
		// in server.write_timeout. See MaxTimelyFarmCrops.
		MaxConcurrency int `mapstructure:"max_concurrency"`
	} `mapstructure:"flows"`
	Auth struct {
		Issuer          string `mapstructure:"issuer"`
		ClientID        string `mapstructure:"client_id"`
		ClientSecret    string `mapstructure:"client_secret"`
		RedirectURL     string `mapstructure:"redirect_url"`
		SwaggerClientID string `mapstructure:"swagger_client_id"`
	} `mapstructure:"auth"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	// ConfigFile is the config file that was read, empty when only defaults
	// and the environment were used.
	ConfigFile string `mapstructure:"-"`
}

// Model configures the generative model backend.
type Model struct {
	Provider          string        `mapstructure:"provider"`
	Name              string        `mapstructure:"name"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

const envPrefix = "CROPGUIDE"

var defaults = map[string]any{
	"environment":               "PROD",
	"dev_mode_bypass":           false,
	"server.port":               8080,
	"server.read_timeout":       15 * time.Second,
	"server.write_timeout":      90 * time.Second,
	"server.body_limit":         "12M",
	"db.enabled":                false,
	"db.host":                   "localhost",
	"db.port":                   5432,
	"db.user":                   "cropguide",
	"db.password":               "",
	"db.name":                   "cropguide",
	"db.sslmode":                "disable",
	"model.provider":            "gemini",
	"model.name":                "gemini-2.0-flash",
	"model.api_key":             "",
	"model.base_url":            "",
	"model.timeout":             60 * time.Second,
	"model.requests_per_second": 0.0,
	"model.burst":               1,
	"flows.max_concurrency":     8,
	"auth.issuer":               "",
	"auth.client_id":            "",
	"auth.client_secret":        "",
	"auth.redirect_url":         "",
	"auth.swagger_client_id":    "",
	"tls.enable":                false,
	"tls.cert_file":             "",
	"tls.key_file":              "",
	"tls.hostnames":             []string{},
	"log.level":                 "info",
	"log.format":                "json",
}

// LoadConfig loads the configuration from a file and the environment. When
// envFile is set it is loaded into the process environment first. A missing
// config.yaml is not an error; defaults and environment variables apply.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	config.ConfigFile = v.ConfigFileUsed()

	// normalize issuer url (strip trailing slash if any)
	config.Auth.Issuer = normalizeIssuer(config.Auth.Issuer)
	config.Model.Provider = strings.ToLower(strings.TrimSpace(config.Model.Provider))

	return &config, nil
}

// MaxTimelyFarmCrops returns the largest number of crops a farm analysis can
// cover, land suggestion included, before it risks server.write_timeout. ok is
// false when either timeout is disabled.
func (c *Config) MaxTimelyFarmCrops() (crops int, ok bool) {
	if c.Server.WriteTimeout <= 0 || c.Model.Timeout <= 0 {
		return 0, false
	}
	concurrency := max(c.Flows.MaxConcurrency, 1)
	rounds := int(c.Server.WriteTimeout / c.Model.Timeout)
	return max(rounds*concurrency-1, 0), true
}

// IsDev reports whether the service runs in the DEV environment.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.Environment, "DEV")
}

// DSN builds the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}

// normalizeIssuer removes any trailing slash so users can paste the issuer
// URL straight from the identity provider console.
func normalizeIssuer(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
