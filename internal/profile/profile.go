package profile

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Backend kinds.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Profile is configuration to start the solver server.
type Profile struct {
	Mode     string
	Addr     string
	Version  string
	Port     int
	GRPCPort int

	// Algebra backend
	Backend       string // local or remote
	BackendURL    string
	BackendAPIKey string
	SolveTimeout  time.Duration // bounds one backend invocation (default: 60s)
	UseAlgorithms bool          // closed-form quadratic path

	// Renderer
	RendererURL       string
	RenderTimeout     time.Duration
	RenderConcurrency int
	RenderCacheSize   int
	RenderCacheTTL    time.Duration

	// HTTP rate limiting, requests per second per client. Zero disables it.
	RateLimit float64
	RateBurst int
}

// Default returns a profile with every default applied.
func Default() *Profile {
	return &Profile{
		Mode:              "dev",
		Port:              8081,
		GRPCPort:          9081,
		Backend:           BackendLocal,
		SolveTimeout:      60 * time.Second,
		UseAlgorithms:     true,
		RenderTimeout:     30 * time.Second,
		RenderConcurrency: 4,
		RenderCacheSize:   1024,
		RenderCacheTTL:    time.Hour,
		RateBurst:         20,
	}
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// RenderEnabled reports whether a renderer URL is configured.
func (p *Profile) RenderEnabled() bool {
	return p.RendererURL != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		slog.Warn("Invalid integer in environment, using default", "key", key, "default", defaultValue)
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		slog.Warn("Invalid number in environment, using default", "key", key, "default", defaultValue)
	}
	return defaultValue
}

// getEnvOrDefaultDuration accepts Go durations ("90s") and bare seconds ("90").
func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	slog.Warn("Invalid duration in environment, using default", "key", key, "default", defaultValue)
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// FromEnv loads configuration from EYEMATH_* environment variables on top of
// the current values.
func (p *Profile) FromEnv() {
	p.Mode = getEnvOrDefault("EYEMATH_MODE", p.Mode)
	p.Addr = getEnvOrDefault("EYEMATH_ADDR", p.Addr)
	p.Port = getEnvOrDefaultInt("EYEMATH_PORT", p.Port)
	p.GRPCPort = getEnvOrDefaultInt("EYEMATH_GRPC_PORT", p.GRPCPort)

	p.Backend = getEnvOrDefault("EYEMATH_BACKEND", p.Backend)
	p.BackendURL = getEnvOrDefault("EYEMATH_BACKEND_URL", p.BackendURL)
	p.BackendAPIKey = getEnvOrDefault("EYEMATH_BACKEND_API_KEY", p.BackendAPIKey)
	p.SolveTimeout = getEnvOrDefaultDuration("EYEMATH_SOLVE_TIMEOUT", p.SolveTimeout)
	p.UseAlgorithms = getEnvOrDefaultBool("EYEMATH_USE_ALGORITHMS", p.UseAlgorithms)

	p.RendererURL = getEnvOrDefault("EYEMATH_RENDERER_URL", p.RendererURL)
	p.RenderTimeout = getEnvOrDefaultDuration("EYEMATH_RENDER_TIMEOUT", p.RenderTimeout)
	p.RenderConcurrency = getEnvOrDefaultInt("EYEMATH_RENDER_CONCURRENCY", p.RenderConcurrency)
	p.RenderCacheSize = getEnvOrDefaultInt("EYEMATH_RENDER_CACHE_SIZE", p.RenderCacheSize)
	p.RenderCacheTTL = getEnvOrDefaultDuration("EYEMATH_RENDER_CACHE_TTL", p.RenderCacheTTL)

	p.RateLimit = getEnvOrDefaultFloat("EYEMATH_RATE_LIMIT", p.RateLimit)
	p.RateBurst = getEnvOrDefaultInt("EYEMATH_RATE_BURST", p.RateBurst)
}

func checkURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid %s", name)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("invalid %s %q: scheme must be http or https", name, raw)
	}
	return nil
}

// Validate normalizes the profile and rejects unusable settings.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	p.Backend = strings.ToLower(strings.TrimSpace(p.Backend))
	switch p.Backend {
	case "":
		p.Backend = BackendLocal
	case BackendLocal:
	case BackendRemote:
		if p.BackendURL == "" {
			return errors.New("backend url is required for the remote backend")
		}
		if err := checkURL("backend url", p.BackendURL); err != nil {
			return err
		}
	default:
		return errors.Errorf("unknown backend %q", p.Backend)
	}

	if p.RendererURL != "" {
		if err := checkURL("renderer url", p.RendererURL); err != nil {
			return err
		}
	}

	if p.Port < 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}
	if p.GRPCPort < 0 || p.GRPCPort > 65535 {
		return errors.Errorf("invalid grpc port %d", p.GRPCPort)
	}
	if p.SolveTimeout <= 0 {
		return errors.Errorf("solve timeout must be positive, got %s", p.SolveTimeout)
	}
	if p.RenderTimeout <= 0 {
		p.RenderTimeout = 30 * time.Second
	}
	if p.RenderConcurrency <= 0 {
		p.RenderConcurrency = 4
	}
	if p.RateLimit < 0 {
		return errors.Errorf("rate limit must not be negative, got %v", p.RateLimit)
	}
	if p.RateLimit > 0 && p.RateBurst <= 0 {
		p.RateBurst = int(p.RateLimit) + 1
	}
	return nil
}
