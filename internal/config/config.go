// Package config loads settings for both binaries from, in rising priority,
// flag defaults, an optional YAML file, VOCABSYNC_* environment variables and
// explicitly set flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable. VOCABSYNC_DB_DSN sets db.dsn.
const EnvPrefix = "VOCABSYNC_"

// Log configures the slog handler.
type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// Server is the sync server's configuration.
type Server struct {
	Server struct {
		Port           int      `koanf:"port" validate:"min=1,max=65535"`
		AllowedOrigins []string `koanf:"allowed_origins"`
	} `koanf:"server"`
	DB struct {
		Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
		DSN    string `koanf:"dsn" validate:"required"`
	} `koanf:"db"`
	Auth struct {
		JWTSecret string        `koanf:"jwt_secret" validate:"required"`
		TokenTTL  time.Duration `koanf:"token_ttl" validate:"gt=0"`
	} `koanf:"auth"`
	Log Log `koanf:"log"`
}

// Client is the command-line client's configuration.
type Client struct {
	API struct {
		URL     string        `koanf:"url" validate:"required,url"`
		Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
	} `koanf:"api"`
	Store struct {
		Path string `koanf:"path" validate:"required"`
	} `koanf:"store"`
	Sync struct {
		Interval time.Duration `koanf:"interval" validate:"gt=0"`
	} `koanf:"sync"`
	Lookup struct {
		BaseURL string `koanf:"base_url" validate:"omitempty,url"`
		APIKey  string `koanf:"api_key"`
		Model   string `koanf:"model"`
	} `koanf:"lookup"`
	Log Log `koanf:"log"`
}

func logFlags(fs *pflag.FlagSet) {
	fs.String("log.level", "info", "Log level: debug, info, warn or error")
	fs.String("log.format", "text", "Log format: text or json")
}

// ServerFlags declares the server's flags with their defaults.
func ServerFlags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML config file")
	fs.Int("server.port", 3001, "Port to listen on")
	fs.StringSlice("server.allowed_origins", []string{"*"}, "Origins allowed by CORS")
	fs.String("db.driver", "sqlite", "Database driver: sqlite or postgres")
	fs.String("db.dsn", "vocabsync.db", "Database file path or connection string")
	fs.String("auth.jwt_secret", "", "Secret used to sign tokens")
	fs.Duration("auth.token_ttl", 30*24*time.Hour, "Lifetime of issued tokens")
	logFlags(fs)
	return fs
}

// ClientFlags declares the client's global flags with their defaults.
// Parsing stops at the first non-flag argument, the subcommand.
func ClientFlags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.String("config", "", "Path to a YAML config file")
	fs.String("api.url", "http://localhost:3001", "Sync server address")
	fs.Duration("api.timeout", 30*time.Second, "Timeout of a single request")
	fs.String("store.path", "vocabsync-local.db", "Path of the local data file")
	fs.Duration("sync.interval", 5*time.Minute, "Auto sync period")
	fs.String("lookup.base_url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	fs.String("lookup.api_key", "", "API key for word lookup")
	fs.String("lookup.model", "gpt-3.5-turbo", "Model used for word lookup")
	logFlags(fs)
	return fs
}

// LoadServer parses args and returns the validated server configuration.
func LoadServer(args []string) (*Server, error) {
	var cfg Server
	if _, err := load(ServerFlags("vocabsync-server"), args, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClient parses the global flags in args and returns the validated client
// configuration plus the remaining arguments.
func LoadClient(args []string) (*Client, []string, error) {
	var cfg Client
	rest, err := load(ClientFlags("vocabsync"), args, &cfg)
	if err != nil {
		return nil, nil, err
	}
	return &cfg, rest, nil
}

func load(fs *pflag.FlagSet, args []string, out any) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Unset keys take the flag defaults; flags given on the command line win.
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	if err := k.Unmarshal("", out); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validator.New().Struct(out); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return fs.Args(), nil
}

// envKey maps VOCABSYNC_AUTH_JWT_SECRET to auth.jwt_secret: the first underscore
// separates the section.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}
