package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultConfigPath is used when neither --config nor SITEGATE_CONFIG_PATH is set.
	DefaultConfigPath = "./config.yaml"
	// ConfigPathEnv overrides the config file location.
	ConfigPathEnv = "SITEGATE_CONFIG_PATH"

	// MinJWTSecretLength is the minimum accepted HS256 secret length in bytes.
	MinJWTSecretLength = 32
)

// ErrInvalidConfig is wrapped by every validation and override parsing error.
var ErrInvalidConfig = errors.New("invalid configuration")

type Server struct {
	ListenAddress   string `yaml:"listenAddress"`
	StaticDir       string `yaml:"staticDir"`
	ReadTimeout     string `yaml:"readTimeout"`
	WriteTimeout    string `yaml:"writeTimeout"`
	ShutdownTimeout string `yaml:"shutdownTimeout"`
	// Debug enables development logging and permissive CORS for local frontend work.
	Debug bool `yaml:"debug"`
}

// RateRule is the on-disk form of a fixed window rule.
type RateRule struct {
	WindowMS    int64 `yaml:"windowMs"`
	MaxRequests int   `yaml:"maxRequests"`
}

// Window returns the rule window as a duration.
func (r RateRule) Window() time.Duration {
	return time.Duration(r.WindowMS) * time.Millisecond
}

type RateLimit struct {
	API     RateRule `yaml:"api"`
	Contact RateRule `yaml:"contact"`
	Admin   RateRule `yaml:"admin"`
	Login   RateRule `yaml:"login"`
	// SweepInterval controls how often expired counters are removed (e.g. "1m").
	SweepInterval string `yaml:"sweepInterval"`
}

type Security struct {
	// EscalateProbes marks clients probing protected paths as suspicious.
	// Nil means enabled.
	EscalateProbes     *bool  `yaml:"escalateProbes"`
	SuspicionThreshold int    `yaml:"suspicionThreshold"`
	SuspicionDecay     string `yaml:"suspicionDecay"`
}

// ProbesEscalate reports whether sensitive path probes count as suspicious activity.
func (s Security) ProbesEscalate() bool {
	return s.EscalateProbes == nil || *s.EscalateProbes
}

// AdminAccount is a statically configured administrator.
type AdminAccount struct {
	Username     string `yaml:"username"`
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"passwordHash"`
}

type Auth struct {
	JWTSecret    string         `yaml:"jwtSecret"`
	TokenTTL     string         `yaml:"tokenTTL"`
	CookieSecure *bool          `yaml:"cookieSecure"`
	Admins       []AdminAccount `yaml:"admins"`
}

// SecureCookie reports whether the auth cookie is flagged Secure. Nil means true.
func (a Auth) SecureCookie() bool {
	return a.CookieSecure == nil || *a.CookieSecure
}

type Database struct {
	// Driver is one of "memory", "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

type Redis struct {
	URL string `yaml:"url"`
}

type Mail struct {
	Host               string  `yaml:"host"`
	Port               int     `yaml:"port"`
	User               string  `yaml:"user"`
	Password           string  `yaml:"password"`
	From               string  `yaml:"from"`
	SalesInbox         string  `yaml:"salesInbox"`
	SendConfirmation   bool    `yaml:"sendConfirmation"`
	InsecureSkipVerify bool    `yaml:"insecureSkipVerify"`
	QueueSize          int     `yaml:"queueSize"`
	RetryCount         int     `yaml:"retryCount"`
	RatePerSecond      float64 `yaml:"ratePerSecond"`
	BrandingName       string  `yaml:"brandingName"`
	// AdminURL is the lead admin page linked from notifications, e.g. "https://northbeam.ai/admin/leads".
	AdminURL string `yaml:"adminURL"`
}

// Enabled reports whether an SMTP host is configured.
func (m Mail) Enabled() bool {
	return m.Host != ""
}

type Webhook struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout string            `yaml:"timeout"`
	// Secret signs each body with HMAC-SHA256 when set.
	Secret string `yaml:"secret"`
}

type Kafka struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	TLS           bool     `yaml:"tls"`
	SASLMechanism string   `yaml:"saslMechanism"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
}

type Audit struct {
	QueueSize int `yaml:"queueSize"`
	Workers   int `yaml:"workers"`
	// ForwardSeverity is the lowest severity sent to the webhook and kafka
	// sinks: "info", "warning" or "critical". The log sink sees everything.
	ForwardSeverity string  `yaml:"forwardSeverity"`
	Webhook         Webhook `yaml:"webhook"`
	Kafka           Kafka   `yaml:"kafka"`
}

type Telemetry struct {
	// Exporter is "none" or "otlp".
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"serviceName"`
	SampleRate  float64 `yaml:"sampleRate"`
}

type Content struct {
	SeedFile string `yaml:"seedFile"`
}

type Config struct {
	Server    Server    `yaml:"server"`
	RateLimit RateLimit `yaml:"rateLimit"`
	Security  Security  `yaml:"security"`
	Auth      Auth      `yaml:"auth"`
	Database  Database  `yaml:"database"`
	Redis     Redis     `yaml:"redis"`
	Mail      Mail      `yaml:"mail"`
	Audit     Audit     `yaml:"audit"`
	Telemetry Telemetry `yaml:"telemetry"`
	Content   Content   `yaml:"content"`
}

// Load loads the sitegate configuration.
// The file path is taken from configPath, then SITEGATE_CONFIG_PATH, then "./config.yaml".
// A missing default file is not an error; an explicitly requested file must exist.
// Environment overrides are applied on top of the file and Defaults fills the rest.
func Load(configPath ...string) (Config, error) {
	path := DefaultConfigPath
	explicit := false
	if len(configPath) > 0 && configPath[0] != "" {
		path, explicit = configPath[0], true
	} else if env := os.Getenv(ConfigPathEnv); env != "" {
		path, explicit = env, true
	}

	var cfg Config
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("error unmarshaling YAML %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("trying to open sitegate config file %s: %w", path, err)
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	cfg.Defaults()
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none are given)
// into the process environment. Variables already set win. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading env file %s: %w", f, err)
		}
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with values from the environment.
// Non-numeric values for numeric settings are rejected.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	rules := map[string]*RateRule{
		"API":     &cfg.RateLimit.API,
		"CONTACT": &cfg.RateLimit.Contact,
		"ADMIN":   &cfg.RateLimit.Admin,
		"LOGIN":   &cfg.RateLimit.Login,
	}
	for name, rule := range rules {
		if v, ok := lookupTrimmed(lookup, "RATE_LIMIT_"+name+"_WINDOW_MS"); ok {
			ms, err := strconv.ParseInt(v, 10, 64)
			if err != nil || ms <= 0 {
				return fmt.Errorf("%w: RATE_LIMIT_%s_WINDOW_MS=%q is not a positive integer", ErrInvalidConfig, name, v)
			}
			rule.WindowMS = ms
		}
		if v, ok := lookupTrimmed(lookup, "RATE_LIMIT_"+name+"_MAX_REQUESTS"); ok {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return fmt.Errorf("%w: RATE_LIMIT_%s_MAX_REQUESTS=%q is not a positive integer", ErrInvalidConfig, name, v)
			}
			rule.MaxRequests = n
		}
	}

	stringVars := map[string]*string{
		"LISTEN_ADDR":          &cfg.Server.ListenAddress,
		"SITEGATE_JWT_SECRET":  &cfg.Auth.JWTSecret,
		"DATABASE_URL":         &cfg.Database.URL,
		"REDIS_URL":            &cfg.Redis.URL,
		"SMTP_HOST":            &cfg.Mail.Host,
		"SMTP_USER":            &cfg.Mail.User,
		"SMTP_PASSWORD":        &cfg.Mail.Password,
		"AUDIT_WEBHOOK_URL":    &cfg.Audit.Webhook.URL,
		"AUDIT_WEBHOOK_SECRET": &cfg.Audit.Webhook.Secret,
	}
	for key, dst := range stringVars {
		if v, ok := lookupTrimmed(lookup, key); ok {
			*dst = v
		}
	}

	if v, ok := lookupTrimmed(lookup, "SMTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("%w: SMTP_PORT=%q is not a valid port", ErrInvalidConfig, v)
		}
		cfg.Mail.Port = port
	}

	username, hasUser := lookupTrimmed(lookup, "ADMIN_USERNAME")
	hash, hasHash := lookupTrimmed(lookup, "ADMIN_PASSWORD_HASH")
	if hasUser && hasHash {
		email, _ := lookupTrimmed(lookup, "ADMIN_EMAIL")
		cfg.Auth.Admins = upsertAdmin(cfg.Auth.Admins, AdminAccount{Username: username, Email: email, PasswordHash: hash})
	}
	return nil
}

func upsertAdmin(admins []AdminAccount, acc AdminAccount) []AdminAccount {
	for i := range admins {
		if admins[i].Username == acc.Username {
			admins[i] = acc
			return admins
		}
	}
	return append(admins, acc)
}

func lookupTrimmed(lookup LookupFunc, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Defaults fills every unset value.
func (c *Config) Defaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8080"
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "./frontend/dist"
	}
	defaultRule(&c.RateLimit.API, 15*time.Minute, 100)
	defaultRule(&c.RateLimit.Contact, time.Hour, 5)
	defaultRule(&c.RateLimit.Admin, 15*time.Minute, 200)
	defaultRule(&c.RateLimit.Login, 15*time.Minute, 50)
	if c.Security.SuspicionThreshold <= 0 {
		c.Security.SuspicionThreshold = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
		if c.Database.URL != "" {
			c.Database.Driver = "postgres"
		}
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Mail.QueueSize <= 0 {
		c.Mail.QueueSize = 100
	}
	if c.Mail.RetryCount <= 0 {
		c.Mail.RetryCount = 3
	}
	if c.Mail.RatePerSecond <= 0 {
		c.Mail.RatePerSecond = 2
	}
	if c.Audit.QueueSize <= 0 {
		c.Audit.QueueSize = 1000
	}
	if c.Audit.Workers <= 0 {
		c.Audit.Workers = 2
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = "none"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "sitegate"
	}
	if c.Telemetry.SampleRate <= 0 {
		c.Telemetry.SampleRate = 1
	}
}

func defaultRule(r *RateRule, window time.Duration, max int) {
	if r.WindowMS <= 0 {
		r.WindowMS = window.Milliseconds()
	}
	if r.MaxRequests <= 0 {
		r.MaxRequests = max
	}
}

// Validate rejects configurations the server must not start with.
func (c Config) Validate() error {
	var errs []error
	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		errs = append(errs, fmt.Errorf("auth.jwtSecret must be at least %d bytes", MinJWTSecretLength))
	}
	for i, a := range c.Auth.Admins {
		if a.Username == "" {
			errs = append(errs, fmt.Errorf("auth.admins[%d].username is required", i))
		}
		if !strings.HasPrefix(a.PasswordHash, "$argon2id$") {
			errs = append(errs, fmt.Errorf("auth.admins[%d].passwordHash must be an argon2id hash", i))
		}
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres", "sqlite":
		if c.Database.URL == "" {
			errs = append(errs, fmt.Errorf("database.url is required for driver %q", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	switch c.Telemetry.Exporter {
	case "none", "otlp":
	default:
		errs = append(errs, fmt.Errorf("telemetry.exporter %q is not supported", c.Telemetry.Exporter))
	}
	if c.Mail.Enabled() && c.Mail.SalesInbox == "" {
		errs = append(errs, errors.New("mail.salesInbox is required when mail.host is set"))
	}
	switch c.Audit.ForwardSeverity {
	case "", "info", "warning", "critical":
	default:
		errs = append(errs, fmt.Errorf("audit.forwardSeverity %q is not one of info, warning, critical", c.Audit.ForwardSeverity))
	}
	if len(c.Audit.Kafka.Brokers) > 0 && c.Audit.Kafka.Topic == "" {
		errs = append(errs, errors.New("audit.kafka.topic is required when brokers are set"))
	}
	for _, d := range []struct{ name, value string }{
		{"server.readTimeout", c.Server.ReadTimeout},
		{"server.writeTimeout", c.Server.WriteTimeout},
		{"server.shutdownTimeout", c.Server.ShutdownTimeout},
		{"rateLimit.sweepInterval", c.RateLimit.SweepInterval},
		{"security.suspicionDecay", c.Security.SuspicionDecay},
		{"auth.tokenTTL", c.Auth.TokenTTL},
		{"audit.webhook.timeout", c.Audit.Webhook.Timeout},
	} {
		if d.value == "" {
			continue
		}
		if v, err := time.ParseDuration(d.value); err != nil || v <= 0 {
			errs = append(errs, fmt.Errorf("%s=%q is not a positive duration", d.name, d.value))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ParseDurationOrDefault parses value, returning defaultValue when it is empty,
// invalid or not positive.
func ParseDurationOrDefault(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
