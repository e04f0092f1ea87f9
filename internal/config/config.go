// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"gopkg.in/yaml.v3"
)

const (
	// Canonical environment variable keys.
	KeyMongoURI      = "MONGO_URI"
	KeyMongoDB       = "MONGO_DB"
	KeyMongoTimeout  = "MONGO_TIMEOUT"
	KeyAppEnv        = "APP_ENV"
	KeyLogLevel      = "LOG_LEVEL"
	KeyHTTPPort      = "HTTP_PORT"
	KeyTelegramToken = "TELEGRAM_TOKEN"
	KeyConfigFile    = "CONFIG_FILE"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv       = EnvProduction
	DefaultLogLevel     = "info"
	DefaultHTTPPort     = 8080
	DefaultMongoTimeout = 10 * time.Second

	// Recommended database names by environment.
	DefaultMongoDBProd = "chain"
	DefaultMongoDBDev  = "chain_dev"
)

const redactedURIPlaceholder = "(unparseable, redacted)"

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the service must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the service.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime or an explicit CONFIG_FILE.
var Contract = []VarSpec{
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string.",
		Notes:       "Must use the mongodb:// or mongodb+srv:// scheme.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database holding the addresses and transactions collections.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyMongoTimeout,
		Example:     "5s",
		Default:     DefaultMongoTimeout.String(),
		Description: "Client-side timeout applied to every MongoDB operation.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP API and health port.",
	},
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Description: "Telegram Bot Token issued by BotFather.",
		Notes:       "The stats bot is disabled when empty.",
	},
	{
		Key:         KeyConfigFile,
		Example:     "config.yaml",
		Description: "Optional YAML file with base values; environment variables take precedence.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	MongoURI      string
	MongoDB       string
	MongoTimeout  time.Duration
	AppEnv        string
	LogLevel      string
	HTTPPort      int
	TelegramToken string
}

// fileConfig is the YAML shape accepted through CONFIG_FILE.
type fileConfig struct {
	Mongo struct {
		URI     string `yaml:"uri"`
		DB      string `yaml:"db"`
		Timeout string `yaml:"timeout"`
	} `yaml:"mongo"`
	AppEnv   string `yaml:"app_env"`
	LogLevel string `yaml:"log_level"`
	HTTP     struct {
		Port int `yaml:"port"`
	} `yaml:"http"`
	Telegram struct {
		Token string `yaml:"token"`
	} `yaml:"telegram"`
}

// Load resolves configuration from the environment (with optional dotenv in
// development and an optional YAML base file). CONFIG_FILE is read from the
// process environment only, so its app_env can switch dotenv loading on.
func Load() (Config, error) {
	file, err := readConfigFile(strings.TrimSpace(os.Getenv(KeyConfigFile)))
	if err != nil {
		return Config{}, err
	}

	appEnv, err := resolveAppEnv(file.AppEnv)
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:        firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), normalizeEnv(file.AppEnv), appEnv),
		MongoURI:      firstNonEmpty(os.Getenv(KeyMongoURI), file.Mongo.URI),
		MongoDB:       firstNonEmpty(os.Getenv(KeyMongoDB), file.Mongo.DB),
		LogLevel:      firstNonEmpty(os.Getenv(KeyLogLevel), file.LogLevel, DefaultLogLevel),
		TelegramToken: firstNonEmpty(os.Getenv(KeyTelegramToken), file.Telegram.Token),
		HTTPPort:      DefaultHTTPPort,
		MongoTimeout:  DefaultMongoTimeout,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	}

	if cfg.MongoDB == "" {
		missing = append(missing, KeyMongoDB)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if err := validateMongoURI(cfg.MongoURI); err != nil {
		return Config{}, err
	}

	if file.HTTP.Port != 0 {
		cfg.HTTPPort = file.HTTP.Port
	}
	if httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort)); httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		cfg.HTTPPort = port
	}
	if cfg.HTTPPort <= 0 {
		return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
	}

	if timeoutRaw := firstNonEmpty(os.Getenv(KeyMongoTimeout), file.Mongo.Timeout); timeoutRaw != "" {
		timeout, parseErr := time.ParseDuration(timeoutRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyMongoTimeout, parseErr)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyMongoTimeout)
		}
		cfg.MongoTimeout = timeout
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// TelegramEnabled reports whether a bot token was supplied.
func (c Config) TelegramEnabled() bool {
	return strings.TrimSpace(c.TelegramToken) != ""
}

// FormatRedacted renders the configuration for operators with secrets masked.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"mongo_uri: " + redactURI(cfg.MongoURI),
		"mongo_db: " + cfg.MongoDB,
		"mongo_timeout: " + cfg.MongoTimeout.String(),
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
		"telegram_token: " + redactToken(cfg.TelegramToken),
	}

	return strings.Join(lines, "\n")
}

// redactURI rebuilds the connection string from its scheme, hosts and database.
// Credentials and query options never survive, and unparseable input is masked whole.
func redactURI(raw string) string {
	cs, err := connstring.ParseAndValidate(raw)
	if err != nil || len(cs.RawHosts) == 0 {
		return redactedURIPlaceholder
	}

	uri := cs.Scheme + "://" + strings.Join(cs.RawHosts, ",") + "/" + cs.Database
	if cs.UsernameSet || cs.PasswordSet {
		uri += " (credentials redacted)"
	}
	return uri
}

func redactToken(token string) string {
	token = strings.TrimSpace(token)
	switch {
	case token == "":
		return "(disabled)"
	case len(token) <= 4:
		return "...redacted"
	default:
		return token[:4] + "...redacted"
	}
}

// resolveAppEnv picks APP_ENV from the process environment, then the config
// file, then .env, then the default.
func resolveAppEnv(fromFile string) (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}
	if fileEnv := normalizeEnv(fromFile); fileEnv != "" {
		return fileEnv, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func readConfigFile(path string) (fileConfig, error) {
	var file fileConfig
	if path == "" {
		return file, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("read %s %q: %w", KeyConfigFile, path, err)
	}

	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("parse %s %q: %w", KeyConfigFile, path, err)
	}

	return file, nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func validateMongoURI(uri string) error {
	if strings.HasPrefix(uri, "mongodb://") || strings.HasPrefix(uri, "mongodb+srv://") {
		return nil
	}

	return fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
