package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Gate        GateConfig        `yaml:"gate"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Evidence    EvidenceConfig    `yaml:"evidence"`
	Push        PushConfig        `yaml:"push"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool"`
	Log         LogConfig         `yaml:"log"`
}

// WorkerPoolConfig holds the configuration for the alert worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys for admin web push alerts.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration. The ticket rate limit
// applies per client to ticket and backup code entry.
type ServerConfig struct {
	Port                  int     `yaml:"port"`
	Debug                 bool    `yaml:"debug"`
	RateLimitPerSec       float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst        int     `yaml:"rate_limit_burst"`
	TicketRateLimitPerMin float64 `yaml:"ticket_rate_limit_per_min"`
	TicketRateLimitBurst  int     `yaml:"ticket_rate_limit_burst"`
	CacheTTLSeconds       int     `yaml:"cache_ttl_seconds"`
	AdminToken            string  `yaml:"admin_token"`
}

// DatabaseConfig holds the database connection configuration.
// A DSN starting with "file:" or ending in ".db" selects sqlite, anything else postgres.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// GateConfig holds the tunables of the decision engine.
type GateConfig struct {
	TicketAttemptThreshold    int           `yaml:"ticket_attempt_threshold"`
	LockCooldownMinutes       int           `yaml:"lock_cooldown_minutes"`
	LockCooldown              time.Duration `yaml:"-"`
	FeeUnitRate               int64         `yaml:"fee_unit_rate"`
	FaceMatchThreshold        float64       `yaml:"face_match_threshold"`
	RecognitionTimeoutSeconds int           `yaml:"recognition_timeout_seconds"`
	RecognitionTimeout        time.Duration `yaml:"-"`
	WriteTimeoutSeconds       int           `yaml:"write_timeout_seconds"`
	WriteTimeout              time.Duration `yaml:"-"`

	// BackupAttemptLimit of 0 means backup-code mismatches are never counted.
	BackupAttemptLimit   int    `yaml:"backup_attempt_limit"`
	TrustClientFaceMatch bool   `yaml:"trust_client_face_match"`
	FaceCacheTTLSeconds  int    `yaml:"face_cache_ttl_seconds"`
	Timezone             string `yaml:"timezone"`
}

// RecognitionConfig points at the external OCR / face embedding service.
type RecognitionConfig struct {
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	HTTPProxy string            `yaml:"http_proxy"`
}

// EvidenceConfig selects where captured gate images are written.
type EvidenceConfig struct {
	Driver          string `yaml:"driver"` // none, local, s3
	Dir             string `yaml:"dir"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// LogConfig holds the structured logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	cfg.ApplyDefaults()
	return &cfg, nil
}

// applyEnv lets deployment secrets stay out of the YAML file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("GATE_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("GATE_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("GATE_VAPID_PRIVATE_KEY"); v != "" {
		cfg.Push.PrivateKey = v
	}
	if v := os.Getenv("GATE_S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.Evidence.SecretAccessKey = v
	}
}

// ApplyDefaults fills every unset field with its default value.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.TicketRateLimitPerMin <= 0 {
		cfg.Server.TicketRateLimitPerMin = 20
	}
	if cfg.Server.TicketRateLimitBurst <= 0 {
		cfg.Server.TicketRateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:gate.db"
	}

	g := &cfg.Gate
	if g.TicketAttemptThreshold <= 0 {
		g.TicketAttemptThreshold = 3
	}
	if g.LockCooldownMinutes <= 0 {
		g.LockCooldownMinutes = 10
	}
	g.LockCooldown = time.Duration(g.LockCooldownMinutes) * time.Minute
	if g.FeeUnitRate <= 0 {
		g.FeeUnitRate = 5000
	}
	if g.FaceMatchThreshold <= 0 {
		g.FaceMatchThreshold = 0.5
	}
	if g.RecognitionTimeoutSeconds <= 0 {
		g.RecognitionTimeoutSeconds = 5
	}
	g.RecognitionTimeout = time.Duration(g.RecognitionTimeoutSeconds) * time.Second
	if g.WriteTimeoutSeconds <= 0 {
		g.WriteTimeoutSeconds = 10
	}
	g.WriteTimeout = time.Duration(g.WriteTimeoutSeconds) * time.Second
	if g.BackupAttemptLimit < 0 {
		g.BackupAttemptLimit = 0
	}
	if g.FaceCacheTTLSeconds <= 0 {
		g.FaceCacheTTLSeconds = 300
	}
	if g.Timezone == "" {
		g.Timezone = "Local"
	}

	if cfg.Evidence.Driver == "" {
		cfg.Evidence.Driver = "none"
	}
	if cfg.Evidence.Dir == "" {
		cfg.Evidence.Dir = "./captures"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
