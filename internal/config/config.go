package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ENV_PREFIX = "ROSTERLINK"

	PORT                        = "PORT"
	DATABASE_PATH               = "DATABASE_PATH"
	ENCRYPTION_KEY              = "ENCRYPTION_KEY"
	UPSTREAM_BASE_URL           = "UPSTREAM_BASE_URL"
	UPSTREAM_USER_AGENT         = "UPSTREAM_USER_AGENT"
	UPSTREAM_TIMEOUT            = "UPSTREAM_TIMEOUT"
	RATE_LIMIT_CAPACITY         = "RATE_LIMIT_CAPACITY"
	RATE_LIMIT_INTERVAL         = "RATE_LIMIT_INTERVAL"
	RATE_LIMIT_FIRE_IMMEDIATELY = "RATE_LIMIT_FIRE_IMMEDIATELY"
	COMMAND_TIMEOUT             = "COMMAND_TIMEOUT"
	QUERY_CACHE_SIZE            = "QUERY_CACHE_SIZE"
	QUERY_CACHE_TTL             = "QUERY_CACHE_TTL"
	SYNC_WORKERS                = "SYNC_WORKERS"
	SYNC_JOB_TIMEOUT            = "SYNC_JOB_TIMEOUT"
	SHUTDOWN_TIMEOUT            = "SHUTDOWN_TIMEOUT"
	LOG_LEVEL                   = "LOG_LEVEL"
	LOG_FORMAT                  = "LOG_FORMAT"
	MCP_TENANT_ID               = "MCP_TENANT_ID"
	MCP_USER_ID                 = "MCP_USER_ID"
	MCP_USER_ROLE               = "MCP_USER_ROLE"

	// OpenTelemetry settings are read from their conventional, unprefixed names.
	OTEL_SERVICE_NAME    = "OTEL_SERVICE_NAME"
	OTEL_SERVICE_VERSION = "OTEL_SERVICE_VERSION"
	OTEL_ENVIRONMENT     = "OTEL_ENVIRONMENT"
	OTEL_EXPORTER        = "OTEL_EXPORTER"

	DEFAULT_UPSTREAM_BASE_URL = "https://api.planningcenteronline.com"
	DEFAULT_USER_AGENT        = "rosterlink/0.1"
)

type Config struct {
	Port              int
	DatabasePath      string
	EncryptionKey     string
	UpstreamBaseURL   string
	UpstreamUserAgent string
	UpstreamTimeout   time.Duration

	RateLimitCapacity        int
	RateLimitInterval        time.Duration
	RateLimitFireImmediately bool

	CommandTimeout  time.Duration
	QueryCacheSize  int
	QueryCacheTTL   time.Duration
	SyncWorkers     int
	SyncJobTimeout  time.Duration
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string

	MCPTenantID string
	MCPUserID   string
	MCPUserRole string

	OtelServiceName    string
	OtelServiceVersion string
	OtelEnvironment    string
	OtelExporter       string
}

// String renders the configuration with the encryption key masked.
func (c Config) String() string {
	key := "<unset>"
	if c.EncryptionKey != "" {
		key = "<redacted>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d\n", PORT, c.Port)
	fmt.Fprintf(&b, "%s: %s\n", DATABASE_PATH, c.DatabasePath)
	fmt.Fprintf(&b, "%s: %s\n", ENCRYPTION_KEY, key)
	fmt.Fprintf(&b, "%s: %s\n", UPSTREAM_BASE_URL, c.UpstreamBaseURL)
	fmt.Fprintf(&b, "%s: %s\n", UPSTREAM_USER_AGENT, c.UpstreamUserAgent)
	fmt.Fprintf(&b, "%s: %s\n", UPSTREAM_TIMEOUT, c.UpstreamTimeout)
	fmt.Fprintf(&b, "%s: %d\n", RATE_LIMIT_CAPACITY, c.RateLimitCapacity)
	fmt.Fprintf(&b, "%s: %s\n", RATE_LIMIT_INTERVAL, c.RateLimitInterval)
	fmt.Fprintf(&b, "%s: %t\n", RATE_LIMIT_FIRE_IMMEDIATELY, c.RateLimitFireImmediately)
	fmt.Fprintf(&b, "%s: %s\n", COMMAND_TIMEOUT, c.CommandTimeout)
	fmt.Fprintf(&b, "%s: %d\n", QUERY_CACHE_SIZE, c.QueryCacheSize)
	fmt.Fprintf(&b, "%s: %s\n", QUERY_CACHE_TTL, c.QueryCacheTTL)
	fmt.Fprintf(&b, "%s: %d\n", SYNC_WORKERS, c.SyncWorkers)
	fmt.Fprintf(&b, "%s: %s\n", SYNC_JOB_TIMEOUT, c.SyncJobTimeout)
	fmt.Fprintf(&b, "%s: %s\n", SHUTDOWN_TIMEOUT, c.ShutdownTimeout)
	fmt.Fprintf(&b, "%s: %s\n", LOG_LEVEL, c.LogLevel)
	fmt.Fprintf(&b, "%s: %s\n", LOG_FORMAT, c.LogFormat)
	fmt.Fprintf(&b, "%s: %s\n", MCP_TENANT_ID, c.MCPTenantID)
	fmt.Fprintf(&b, "%s: %s\n", MCP_USER_ID, c.MCPUserID)
	fmt.Fprintf(&b, "%s: %s\n", MCP_USER_ROLE, c.MCPUserRole)
	fmt.Fprintf(&b, "%s: %s\n", OTEL_SERVICE_NAME, c.OtelServiceName)
	fmt.Fprintf(&b, "%s: %s\n", OTEL_SERVICE_VERSION, c.OtelServiceVersion)
	fmt.Fprintf(&b, "%s: %s\n", OTEL_ENVIRONMENT, c.OtelEnvironment)
	fmt.Fprintf(&b, "%s: %s\n", OTEL_EXPORTER, c.OtelExporter)

	return b.String()
}

func GetConfig() *Config {
	options := viper.New()

	options.SetDefault(PORT, 8080)
	options.SetDefault(DATABASE_PATH, "rosterlink.db")
	options.SetDefault(ENCRYPTION_KEY, "")
	options.SetDefault(UPSTREAM_BASE_URL, DEFAULT_UPSTREAM_BASE_URL)
	options.SetDefault(UPSTREAM_USER_AGENT, DEFAULT_USER_AGENT)
	options.SetDefault(UPSTREAM_TIMEOUT, 30*time.Second)
	options.SetDefault(RATE_LIMIT_CAPACITY, 100)
	options.SetDefault(RATE_LIMIT_INTERVAL, time.Minute)
	options.SetDefault(RATE_LIMIT_FIRE_IMMEDIATELY, true)
	options.SetDefault(COMMAND_TIMEOUT, 30*time.Second)
	options.SetDefault(QUERY_CACHE_SIZE, 512)
	options.SetDefault(QUERY_CACHE_TTL, 5*time.Minute)
	options.SetDefault(SYNC_WORKERS, 2)
	options.SetDefault(SYNC_JOB_TIMEOUT, 10*time.Minute)
	options.SetDefault(SHUTDOWN_TIMEOUT, 5*time.Second)
	options.SetDefault(LOG_LEVEL, "info")
	options.SetDefault(LOG_FORMAT, "text")
	options.SetDefault(MCP_TENANT_ID, "")
	options.SetDefault(MCP_USER_ID, "mcp")
	options.SetDefault(MCP_USER_ROLE, "MEMBER")

	options.SetDefault(OTEL_SERVICE_NAME, "rosterlink")
	options.SetDefault(OTEL_SERVICE_VERSION, "0.1.0")
	options.SetDefault(OTEL_ENVIRONMENT, "development")
	options.SetDefault(OTEL_EXPORTER, "stdout")
	for _, key := range []string{OTEL_SERVICE_NAME, OTEL_SERVICE_VERSION, OTEL_ENVIRONMENT, OTEL_EXPORTER} {
		_ = options.BindEnv(key, key)
	}

	options.SetEnvPrefix(ENV_PREFIX)
	options.AutomaticEnv()

	return &Config{
		Port:              options.GetInt(PORT),
		DatabasePath:      options.GetString(DATABASE_PATH),
		EncryptionKey:     options.GetString(ENCRYPTION_KEY),
		UpstreamBaseURL:   strings.TrimRight(options.GetString(UPSTREAM_BASE_URL), "/"),
		UpstreamUserAgent: options.GetString(UPSTREAM_USER_AGENT),
		UpstreamTimeout:   options.GetDuration(UPSTREAM_TIMEOUT),

		RateLimitCapacity:        options.GetInt(RATE_LIMIT_CAPACITY),
		RateLimitInterval:        options.GetDuration(RATE_LIMIT_INTERVAL),
		RateLimitFireImmediately: options.GetBool(RATE_LIMIT_FIRE_IMMEDIATELY),

		CommandTimeout:  options.GetDuration(COMMAND_TIMEOUT),
		QueryCacheSize:  options.GetInt(QUERY_CACHE_SIZE),
		QueryCacheTTL:   options.GetDuration(QUERY_CACHE_TTL),
		SyncWorkers:     options.GetInt(SYNC_WORKERS),
		SyncJobTimeout:  options.GetDuration(SYNC_JOB_TIMEOUT),
		ShutdownTimeout: options.GetDuration(SHUTDOWN_TIMEOUT),

		LogLevel:  strings.ToLower(options.GetString(LOG_LEVEL)),
		LogFormat: strings.ToLower(options.GetString(LOG_FORMAT)),

		MCPTenantID: options.GetString(MCP_TENANT_ID),
		MCPUserID:   options.GetString(MCP_USER_ID),
		MCPUserRole: strings.ToUpper(options.GetString(MCP_USER_ROLE)),

		OtelServiceName:    options.GetString(OTEL_SERVICE_NAME),
		OtelServiceVersion: options.GetString(OTEL_SERVICE_VERSION),
		OtelEnvironment:    options.GetString(OTEL_ENVIRONMENT),
		OtelExporter:       options.GetString(OTEL_EXPORTER),
	}
}

// Validate reports every setting that would make startup fail.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s must be between 1 and 65535, got %d", PORT, c.Port))
	}
	if c.DatabasePath == "" {
		errs = append(errs, fmt.Errorf("%s is required", DATABASE_PATH))
	}
	if len(c.EncryptionKey) != 32 {
		errs = append(errs, fmt.Errorf("%s must be exactly 32 characters", ENCRYPTION_KEY))
	}
	if !strings.HasPrefix(c.UpstreamBaseURL, "http://") && !strings.HasPrefix(c.UpstreamBaseURL, "https://") {
		errs = append(errs, fmt.Errorf("%s must be an http(s) URL, got %q", UPSTREAM_BASE_URL, c.UpstreamBaseURL))
	}
	if c.RateLimitCapacity <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", RATE_LIMIT_CAPACITY))
	}
	if c.RateLimitInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", RATE_LIMIT_INTERVAL))
	}
	if c.CommandTimeout < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", COMMAND_TIMEOUT))
	}
	if c.QueryCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", QUERY_CACHE_SIZE))
	}
	if c.SyncWorkers <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", SYNC_WORKERS))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%s must be debug, info, warn or error, got %q", LOG_LEVEL, c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%s must be text or json, got %q", LOG_FORMAT, c.LogFormat))
	}
	switch c.OtelExporter {
	case "stdout", "otlp", "none":
	default:
		errs = append(errs, fmt.Errorf("%s must be stdout, otlp or none, got %q", OTEL_EXPORTER, c.OtelExporter))
	}
	return errors.Join(errs...)
}

// ValidateMCP checks the fixed identity used by stdio sessions.
func (c Config) ValidateMCP() error {
	var errs []error
	if c.MCPTenantID == "" {
		errs = append(errs, fmt.Errorf("%s is required for the mcp command", MCP_TENANT_ID))
	}
	if c.MCPUserID == "" {
		errs = append(errs, fmt.Errorf("%s is required for the mcp command", MCP_USER_ID))
	}
	switch c.MCPUserRole {
	case "ADMIN", "LEADER", "MEMBER":
	default:
		errs = append(errs, fmt.Errorf("%s must be ADMIN, LEADER or MEMBER, got %q", MCP_USER_ROLE, c.MCPUserRole))
	}
	return errors.Join(errs...)
}
