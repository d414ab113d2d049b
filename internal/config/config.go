// Package config loads the gate's settings from an optional .env file and
// the environment using Viper. Environment variables win over .env.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"

	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

type Config struct {
	HTTPAddr string `mapstructure:"PORTUNUS_HTTP_ADDR"`
	GRPCAddr string `mapstructure:"PORTUNUS_GRPC_ADDR"`
	Env      string `mapstructure:"PORTUNUS_ENV"`

	Store  string `mapstructure:"PORTUNUS_STORE"`
	DBPath string `mapstructure:"PORTUNUS_DB_PATH"`

	// Redis holds scoped OTP records when RedisAddr is set; otherwise they
	// live in the primary store.
	RedisAddr     string `mapstructure:"PORTUNUS_REDIS_ADDR"`
	RedisPassword string `mapstructure:"PORTUNUS_REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"PORTUNUS_REDIS_DB"`

	KafkaBrokers string `mapstructure:"PORTUNUS_KAFKA_BROKERS"`
	AuditTopic   string `mapstructure:"PORTUNUS_AUDIT_TOPIC"`

	AdminJWTSecret string `mapstructure:"PORTUNUS_ADMIN_JWT_SECRET"`
	AdminJWTIssuer string `mapstructure:"PORTUNUS_ADMIN_JWT_ISSUER"`
	// UserTokenTTL bounds the self-service token handed out at registration.
	UserTokenTTL time.Duration `mapstructure:"PORTUNUS_USER_TOKEN_TTL"`

	// Group codes have no prod default; dev falls back to devGroupCodes.

	FamilyCode   string `mapstructure:"PORTUNUS_FAMILY_CODE"`
	ServantsCode string `mapstructure:"PORTUNUS_SERVANTS_CODE"`
	FriendsCode  string `mapstructure:"PORTUNUS_FRIENDS_CODE"`
	BcryptCost   int    `mapstructure:"PORTUNUS_BCRYPT_COST"`

	TempOTPTTL       time.Duration `mapstructure:"PORTUNUS_TEMP_OTP_TTL"`
	GuestOTPTTL      time.Duration `mapstructure:"PORTUNUS_GUEST_OTP_TTL"`
	RegisteredOTPTTL time.Duration `mapstructure:"PORTUNUS_REGISTERED_OTP_TTL"`
	ApprovalTTL      time.Duration `mapstructure:"PORTUNUS_APPROVAL_TTL"`
	FaceWindow       time.Duration `mapstructure:"PORTUNUS_FACE_WINDOW"`
	MaxOTPAttempts   int           `mapstructure:"PORTUNUS_MAX_OTP_ATTEMPTS"`

	// A module's keypad locks for KeypadLockout after KeypadMaxFailures
	// consecutive wrong codes.
	KeypadMaxFailures int           `mapstructure:"PORTUNUS_KEYPAD_MAX_FAILURES"`
	KeypadLockout     time.Duration `mapstructure:"PORTUNUS_KEYPAD_LOCKOUT"`

	ActuatorURL      string        `mapstructure:"PORTUNUS_ACTUATOR_URL"`
	UnlockDurationMs int           `mapstructure:"PORTUNUS_UNLOCK_DURATION_MS"`
	ActuatorTimeout  time.Duration `mapstructure:"PORTUNUS_ACTUATOR_TIMEOUT"`

	KnownModulesCSV string `mapstructure:"PORTUNUS_KNOWN_MODULES"`

	// Retention; 0 keeps forever.
	RequestRetentionDays   int `mapstructure:"PORTUNUS_REQUEST_RETENTION_DAYS"`
	HeartbeatRetentionDays int `mapstructure:"PORTUNUS_HEARTBEAT_RETENTION_DAYS"`
	PruneIntervalHours     int `mapstructure:"PORTUNUS_PRUNE_INTERVAL_HOURS"`
}

var defaults = map[string]any{
	"PORTUNUS_HTTP_ADDR":                ":8080",
	"PORTUNUS_GRPC_ADDR":                ":9090",
	"PORTUNUS_ENV":                      EnvDev,
	"PORTUNUS_STORE":                    StoreSQLite,
	"PORTUNUS_DB_PATH":                  "./data/gate.db",
	"PORTUNUS_REDIS_ADDR":               "",
	"PORTUNUS_REDIS_PASSWORD":           "",
	"PORTUNUS_REDIS_DB":                 0,
	"PORTUNUS_KAFKA_BROKERS":            "",
	"PORTUNUS_AUDIT_TOPIC":              "portunus-access-events",
	"PORTUNUS_ADMIN_JWT_SECRET":         "",
	"PORTUNUS_ADMIN_JWT_ISSUER":         "portunus-gate",
	"PORTUNUS_USER_TOKEN_TTL":           "168h",
	"PORTUNUS_FAMILY_CODE":              "",
	"PORTUNUS_SERVANTS_CODE":            "",
	"PORTUNUS_FRIENDS_CODE":             "",
	"PORTUNUS_BCRYPT_COST":              10,
	"PORTUNUS_TEMP_OTP_TTL":             "5m",
	"PORTUNUS_GUEST_OTP_TTL":            "10m",
	"PORTUNUS_REGISTERED_OTP_TTL":       "5m",
	"PORTUNUS_APPROVAL_TTL":             "30m",
	"PORTUNUS_FACE_WINDOW":              "5m",
	"PORTUNUS_MAX_OTP_ATTEMPTS":         5,
	"PORTUNUS_KEYPAD_MAX_FAILURES":      5,
	"PORTUNUS_KEYPAD_LOCKOUT":           "5m",
	"PORTUNUS_ACTUATOR_URL":             "",
	"PORTUNUS_UNLOCK_DURATION_MS":       5000,
	"PORTUNUS_ACTUATOR_TIMEOUT":         "5s",
	"PORTUNUS_KNOWN_MODULES":            "",
	"PORTUNUS_REQUEST_RETENTION_DAYS":   90,
	"PORTUNUS_HEARTBEAT_RETENTION_DAYS": 30,
	"PORTUNUS_PRUNE_INTERVAL_HOURS":     6,
}

// devJWTSecret signs admin tokens in dev when no secret is configured.
const devJWTSecret = "portunus-dev-secret"

// Dev-only group codes.
const (
	devFamilyCode   = "123456"
	devServantsCode = "567890"
	devFriendsCode  = "999999"
)

// Load reads .env if present, then the environment, and validates.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // a missing file is fine
	}
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != EnvDev && c.Env != EnvProd {
		return fmt.Errorf("config: PORTUNUS_ENV must be %q or %q, got %q", EnvDev, EnvProd, c.Env)
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store != StoreSQLite && c.Store != StoreMemory {
		return fmt.Errorf("config: PORTUNUS_STORE must be %q or %q, got %q", StoreSQLite, StoreMemory, c.Store)
	}
	if c.HTTPAddr == "" {
		return errors.New("config: PORTUNUS_HTTP_ADDR must be set")
	}

	if c.AdminJWTSecret == "" {
		if c.Env == EnvProd {
			return errors.New("config: PORTUNUS_ADMIN_JWT_SECRET is required in prod")
		}
		c.AdminJWTSecret = devJWTSecret
	}
	if err := c.groupCodes(); err != nil {
		return err
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: PORTUNUS_BCRYPT_COST must be between 4 and 31")
	}
	if c.MaxOTPAttempts < 1 {
		return errors.New("config: PORTUNUS_MAX_OTP_ATTEMPTS must be at least 1")
	}
	if c.KeypadMaxFailures < 1 {
		return errors.New("config: PORTUNUS_KEYPAD_MAX_FAILURES must be at least 1")
	}
	for name, d := range map[string]time.Duration{
		"PORTUNUS_TEMP_OTP_TTL":       c.TempOTPTTL,
		"PORTUNUS_GUEST_OTP_TTL":      c.GuestOTPTTL,
		"PORTUNUS_REGISTERED_OTP_TTL": c.RegisteredOTPTTL,
		"PORTUNUS_APPROVAL_TTL":       c.ApprovalTTL,
		"PORTUNUS_FACE_WINDOW":        c.FaceWindow,
		"PORTUNUS_ACTUATOR_TIMEOUT":   c.ActuatorTimeout,
		"PORTUNUS_USER_TOKEN_TTL":     c.UserTokenTTL,
		"PORTUNUS_KEYPAD_LOCKOUT":     c.KeypadLockout,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if c.RequestRetentionDays < 0 || c.HeartbeatRetentionDays < 0 {
		return errors.New("config: retention days must not be negative")
	}
	if c.PruneIntervalHours <= 0 {
		c.PruneIntervalHours = 6
	}
	if c.UnlockDurationMs <= 0 {
		c.UnlockDurationMs = 5000
	}
	return nil
}

// groupCodes fills unset codes in dev and insists on all three in prod.
func (c *Config) groupCodes() error {
	codes := []struct {
		name string
		val  *string
		dev  string
	}{
		{"PORTUNUS_FAMILY_CODE", &c.FamilyCode, devFamilyCode},
		{"PORTUNUS_SERVANTS_CODE", &c.ServantsCode, devServantsCode},
		{"PORTUNUS_FRIENDS_CODE", &c.FriendsCode, devFriendsCode},
	}
	for _, gc := range codes {
		*gc.val = strings.TrimSpace(*gc.val)
		if *gc.val != "" {
			continue
		}
		if c.Env == EnvProd {
			return fmt.Errorf("config: %s is required in prod", gc.name)
		}
		*gc.val = gc.dev
	}
	return nil
}

func (c *Config) KnownModules() []string { return splitCSV(c.KnownModulesCSV) }

func (c *Config) KafkaBrokerList() []string { return splitCSV(c.KafkaBrokers) }

func (c *Config) IsDev() bool { return c.Env == EnvDev }

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
