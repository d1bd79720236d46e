package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/bhoriuchi/graphql-ws-bridge/errs"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds the process configuration. It is loaded once at startup and
// treated as read-only afterwards.
type Config struct {
	// ListenAddr is the listen address for the HTTP server.
	ListenAddr  string `env:"LISTEN_ADDR,default=:4000"`
	GraphQLPath string `env:"GRAPHQL_PATH,default=/v1/graphql"`
	MetricsPath string `env:"METRICS_PATH,default=/metrics"`

	// UpstreamURL is the HTTP endpoint of the GraphQL engine.
	UpstreamURL string `env:"HASURA_GRAPHQL_ENDPOINT,required"`
	// UpstreamWSURL is derived from UpstreamURL when unset.
	UpstreamWSURL string `env:"HASURA_GRAPHQL_WS_ENDPOINT"`

	AdminSecret   string `env:"HASURA_GRAPHQL_ADMIN_SECRET,required"`
	JWTSecret     string `env:"HASURA_GRAPHQL_JWT_SECRET,required"`
	SessionSecret string `env:"NEXTAUTH_SECRET,required"`

	UserRole       string   `env:"HASURA_USER_ROLE,default=user"`
	TokenTTL       string   `env:"SCOPED_TOKEN_TTL,default=1h"`
	SessionCookies []string `env:"SESSION_COOKIE_NAMES,default=__Secure-next-auth.session-token;next-auth.session-token"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=*"`

	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT,default=10s"`
	DialTimeout     time.Duration `env:"UPSTREAM_DIAL_TIMEOUT,default=10s"`
	UpgradeRate     float64       `env:"WS_UPGRADE_RATE,default=5"`
	UpgradeBurst    int           `env:"WS_UPGRADE_BURST,default=10"`

	// UpstreamInsecure skips TLS verification of the upstream engine
	UpstreamInsecure bool `env:"UPSTREAM_INSECURE_SKIP_VERIFY,default=false"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// Load loads optional dotenv files followed by the process environment.
// Files that do not exist are skipped.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errs.New(errs.ErrConfig, "load "+file, err)
		}
	}

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, errs.New(errs.ErrConfig, "decode environment", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// finalize validates the decoded values and fills derived ones
func (c *Config) finalize() error {
	required := map[string]string{
		"HASURA_GRAPHQL_ENDPOINT":     c.UpstreamURL,
		"HASURA_GRAPHQL_ADMIN_SECRET": c.AdminSecret,
		"HASURA_GRAPHQL_JWT_SECRET":   c.JWTSecret,
		"NEXTAUTH_SECRET":             c.SessionSecret,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			return errs.Newf(errs.ErrConfig, "validate", "%s is required", name)
		}
	}

	if _, err := time.ParseDuration(c.TokenTTL); err != nil {
		return errs.Newf(errs.ErrConfig, "validate", "SCOPED_TOKEN_TTL: %s", err)
	}

	if c.UpstreamWSURL == "" {
		wsURL, err := WebSocketURL(c.UpstreamURL)
		if err != nil {
			return errs.New(errs.ErrConfig, "derive websocket endpoint", err)
		}
		c.UpstreamWSURL = wsURL
	}

	return nil
}

// WebSocketURL converts an http(s) endpoint to its ws(s) equivalent
func WebSocketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}

	return u.String(), nil
}
