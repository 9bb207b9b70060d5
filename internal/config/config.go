package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Provider        string            `yaml:"provider" toml:"provider"`
	APIKey          string            `yaml:"providerApiKey" toml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	EmbedModel      string            `yaml:"providerEmbedModel" toml:"providerEmbedModel" envconfig:"PROVIDER_EMBEDDING_MODEL"`
	CompletionModel string            `yaml:"providerCompletionModel" toml:"providerCompletionModel" envconfig:"PROVIDER_COMPLETION_MODEL"`
	ProjectID       string            `yaml:"providerProjectID" toml:"providerProjectID" envconfig:"PROVIDER_PROJECT_ID"`
	Location        string            `yaml:"providerLocation" toml:"providerLocation" envconfig:"PROVIDER_LOCATION"`
	BaseURL         string            `yaml:"providerBaseURL" toml:"providerBaseURL" envconfig:"PROVIDER_BASE_URL"`
	RateLimit       float64           `yaml:"providerRateLimit" toml:"providerRateLimit" envconfig:"PROVIDER_RATE_LIMIT"`
	Dim             int               `yaml:"providerDim" toml:"providerDim" envconfig:"EMBED_DIM"`
	Store           string            `yaml:"store" toml:"store"`
	Database        string            `yaml:"database" toml:"database" envconfig:"DB_URL"`
	DataDir         string            `yaml:"dataDir" toml:"dataDir" split_words:"true"`
	Collection      string            `yaml:"collection" toml:"collection"`
	CorpusDir       string            `yaml:"corpusDir" toml:"corpusDir" split_words:"true"`
	TopK            int               `yaml:"topK" toml:"topK" envconfig:"TOP_K"`
	LogLevel        string            `yaml:"logLevel" toml:"logLevel" split_words:"true"`
	Port            int               `yaml:"port" toml:"port" split_words:"true"`
	Auth            AuthSpecification `yaml:"auth" toml:"auth"`

	flags *pflag.FlagSet `ignored:"true"`
}

type AuthSpecification struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	JwtSecret string `yaml:"jwtSecret" toml:"jwtSecret" split_words:"true"`
}

const envPrefix = "FAQRAG"

// DefaultLogLevel is used when no layer sets logLevel.
const DefaultLogLevel = "info"

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
// Variables from a .env file in the working directory count as env but never
// replace variables that are already set.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Specification{}, fmt.Errorf("load .env: %w", err)
	}

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/faqrag.yaml",
				"config/config.yaml",
				"./faqrag.yaml",
				"./config.yaml",
				"./faqrag.toml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadFile(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	if err := cfg.validate(); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

func (s *Specification) validate() error {
	switch s.Store {
	case StoreSQLite:
		if strings.TrimSpace(s.DataDir) == "" {
			return fmt.Errorf("%s_DATA_DIR is required for the sqlite store", envPrefix)
		}
	case StorePostgres:
		if strings.TrimSpace(s.Database) == "" {
			return fmt.Errorf("%s_DB_URL is required for the postgres store", envPrefix)
		}
	default:
		return fmt.Errorf("unsupported store: %q", s.Store)
	}
	if strings.TrimSpace(s.Collection) == "" {
		return errors.New("collection name is required")
	}
	if s.RateLimit < 0 {
		return fmt.Errorf("providerRateLimit must not be negative, got %g", s.RateLimit)
	}
	if s.TopK <= 0 {
		return fmt.Errorf("topK must be positive, got %d", s.TopK)
	}
	if s.Auth.Enabled && strings.TrimSpace(s.Auth.JwtSecret) == "" {
		return fmt.Errorf("%s_AUTH_JWT_SECRET is required when auth is enabled", envPrefix)
	}
	return nil
}

// ---------- helpers ----------

// loadFile decodes TOML for .toml files and YAML for everything else.
func loadFile(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(b, into)
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("provider", c.Provider, "Provider (stub, openai, vertexai, ollama)")
	fs.String("provider-api-key", c.APIKey, "Provider API key")
	fs.String("provider-embedding-model", c.EmbedModel, "Provider embedding model")
	fs.String("provider-completion-model", c.CompletionModel, "Provider completion model")
	fs.String("provider-project-id", c.ProjectID, "Provider project ID")
	fs.String("provider-location", c.Location, "Provider location/region")
	fs.String("provider-base-url", c.BaseURL, "Provider API base URL")
	fs.Float64("provider-rate-limit", c.RateLimit, "Maximum provider requests per second (0 = unlimited)")

	fs.Int("embed-dim", c.Dim, "Embedding dimensionality")

	fs.String("store", c.Store, "Vector store backend (sqlite|postgres)")
	fs.String("db-url", c.Database, "Database URL (DSN) for the postgres store")
	fs.String("data-dir", c.DataDir, "Data directory for the sqlite store")
	fs.String("collection", c.Collection, "Collection name")
	fs.String("corpus-dir", c.CorpusDir, "Directory of .md/.txt documents to ingest")
	fs.Int("top-k", c.TopK, "Number of context chunks per answer")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "API server port")

	fs.Bool("auth-enabled", c.Auth.Enabled, "Require a bearer token on the chat API")
	fs.String("auth-jwt-secret", c.Auth.JwtSecret, "JWT secret for signing tokens")

	// Used later for usage/help
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("provider-embedding-model", &c.EmbedModel)
	setStr("provider-completion-model", &c.CompletionModel)
	setStr("provider-project-id", &c.ProjectID)
	setStr("provider-location", &c.Location)
	setStr("provider-base-url", &c.BaseURL)
	if fs.Changed("provider-rate-limit") {
		v, _ := fs.GetFloat64("provider-rate-limit")
		c.RateLimit = v
	}

	setInt("embed-dim", &c.Dim)

	setStr("store", &c.Store)
	setStr("db-url", &c.Database)
	setStr("data-dir", &c.DataDir)
	setStr("collection", &c.Collection)
	setStr("corpus-dir", &c.CorpusDir)
	setInt("top-k", &c.TopK)

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)

	setBool("auth-enabled", &c.Auth.Enabled)
	setStr("auth-jwt-secret", &c.Auth.JwtSecret)
}

func setDefaults(c *Specification) {
	c.LogLevel = DefaultLogLevel
	c.Provider = "stub"
	c.Store = StoreSQLite
	c.DataDir = "chroma_db"
	c.Collection = "faq_collection"
	c.CorpusDir = "faq_data"
	c.TopK = 4
	c.Dim = 0
	c.Location = "us-central1"
	c.Port = 8080
	c.Auth.Enabled = false
}
