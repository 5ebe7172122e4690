// Package settings loads the installation configuration described in
// spec.md section 6 from the environment, the way
// wisbric-nightowl/internal/config/config.go binds its own settings with
// caarlos0/env instead of hand-rolled os.Getenv calls.
package settings

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings is the installation-wide configuration for a diracx-go instance.
type Settings struct {
	// ConfigSourceURL points at the versioned Config View source (a Git
	// remote, or file:// for local/dev).
	ConfigSourceURL string `env:"CONFIG_SOURCE_URL,required"`
	// ConfigCacheTTL is the soft TTL for the cached config snapshot.
	ConfigCacheTTL time.Duration `env:"CONFIG_CACHE_TTL" envDefault:"30s"`
	// ConfigRedisURL optionally names a shared Redis instance to which the
	// config view publishes each new revision; the view never reads it
	// back. Empty disables it.
	ConfigRedisURL string `env:"CONFIG_REDIS_URL"`

	// TokenSigningKey is a PEM blob or a file:// URL pointing at one.
	TokenSigningKey string `env:"TOKEN_SIGNING_KEY,required"`
	Issuer          string `env:"ISSUER,required"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	KeyRotationTTL  time.Duration `env:"KEY_ROTATION_TTL" envDefault:"168h"`

	// UpstreamRedirectURI is this installation's own callback URL,
	// registered with every upstream IdP (spec.md section 4.2/4.5 — the
	// same redirect_uri is reused across VOs since the VO is carried in
	// the flow state rather than the URL).
	UpstreamRedirectURI string `env:"UPSTREAM_REDIRECT_URI,required"`

	// LegacyExchangeHashedAPIKey gates the legacy bearer-exchange endpoint
	// (spec.md 4.4). Empty disables it (503 regardless of credentials).
	LegacyExchangeHashedAPIKey string `env:"LEGACY_EXCHANGE_HASHED_API_KEY"`

	// LegacyCSCoercion is loaded from the environment but consulted
	// nowhere: the search field descriptor table has no
	// comma-separated-string coercion, so the flag has no effect.
	LegacyCSCoercion bool `env:"LEGACY_CS_COERCION" envDefault:"false"`

	// PilotTokenProperties pins the spec.md section 9 open question about
	// which properties, if any, pilot tokens carry. Defaults to none: pilot
	// tokens carry pilot_stamp only, never dirac_group/dirac_properties.
	PilotTokenProperties []string `env:"PILOT_TOKEN_PROPERTIES" envSeparator:","`
	PilotInstallationKey string    `env:"PILOT_INSTALLATION_KEY,required"`

	S3Endpoint  string `env:"S3_ENDPOINT,required"`
	S3AccessKey string `env:"S3_ACCESS_KEY,required"`
	S3SecretKey string `env:"S3_SECRET_KEY,required"`
	S3Bucket    string `env:"S3_BUCKET" envDefault:"sandboxes"`
	S3UsePathStyle bool `env:"S3_USE_PATH_STYLE" envDefault:"true"`

	MaxSandboxSizeBytes  int64         `env:"MAX_SANDBOX_SIZE_BYTES" envDefault:"1073741824"`
	SandboxUploadTTL     time.Duration `env:"SANDBOX_UPLOAD_TTL" envDefault:"5m"`
	SandboxDownloadTTL   time.Duration `env:"SANDBOX_DOWNLOAD_TTL" envDefault:"1h"`
	SandboxRetention     time.Duration `env:"SANDBOX_RETENTION" envDefault:"360h"`

	DeviceFlowValidity    time.Duration `env:"DEVICE_FLOW_VALIDITY" envDefault:"15m"`
	AuthCodeFlowValidity  time.Duration `env:"AUTH_CODE_FLOW_VALIDITY" envDefault:"5m"`
	DevicePollInterval    int           `env:"DEVICE_POLL_INTERVAL_SECONDS" envDefault:"5"`

	MaxPerPage int `env:"MAX_PER_PAGE" envDefault:"10000"`

	// Extensions is the ordered plugin-resolution list (spec.md section 9).
	Extensions []string `env:"EXTENSIONS" envSeparator:","`

	// DevMode enables the access-policy assertion that crashes the process
	// if a protected endpoint is registered without a policy check.
	DevMode bool `env:"DEV_MODE" envDefault:"false"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8000"`

	// DatabaseDriver selects the database/sql driver name used to open all
	// four databases below: "postgres" or "sqlite3". The mysql driver is
	// registered, but every store's migrations reject it.
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	AuthDBDSN      string `env:"AUTH_DB_DSN,required"`
	PilotDBDSN     string `env:"PILOT_DB_DSN,required"`
	SandboxDBDSN   string `env:"SANDBOX_DB_DSN,required"`
	JobDBDSN       string `env:"JOB_DB_DSN,required"`
}

// Load reads Settings from the process environment.
func Load() (*Settings, error) {
	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return s, nil
}
