package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SNAPBOOTH_SERVER_"`
	Booth     BoothConfig     `yaml:"booth" envPrefix:"SNAPBOOTH_BOOTH_"`
	Composite CompositeConfig `yaml:"composite" envPrefix:"SNAPBOOTH_COMPOSITE_"`
	Camera    CameraConfig    `yaml:"camera" envPrefix:"SNAPBOOTH_CAMERA_"`
	Upload    UploadConfig    `yaml:"upload" envPrefix:"SNAPBOOTH_UPLOAD_"`
	Health    HealthConfig    `yaml:"health" envPrefix:"SNAPBOOTH_HEALTH_"`
	QR        QRConfig        `yaml:"qr" envPrefix:"SNAPBOOTH_QR_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"SNAPBOOTH_LOG_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"SNAPBOOTH_OTEL_"`
	Backend   BackendConfig   `yaml:"backend" envPrefix:"SNAPBOOTH_BACKEND_"`
}

type ServerConfig struct {
	Port             int           `yaml:"port" env:"PORT"`
	Host             string        `yaml:"host" env:"HOST"`
	MaxConnections   int           `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	AllowedOrigins   []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`
}

// BoothConfig holds the per-installation session shape. Photo count,
// instruction phrases and timings vary between deployments.
type BoothConfig struct {
	PhotoCount       int           `yaml:"photo_count" env:"PHOTO_COUNT"`
	CountdownSeconds int           `yaml:"countdown_seconds" env:"COUNTDOWN_SECONDS"`
	TickInterval     time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
	SettleDelay      time.Duration `yaml:"settle_delay" env:"SETTLE_DELAY"`
	ReviewTimeout    time.Duration `yaml:"review_timeout" env:"REVIEW_TIMEOUT"`
	AttractAfter     time.Duration `yaml:"attract_after" env:"ATTRACT_AFTER"`
	Instructions     []string      `yaml:"instructions" env:"INSTRUCTIONS" envSeparator:"|"`
	CountdownCue     string        `yaml:"countdown_cue" env:"COUNTDOWN_CUE"`
	CaptureCue       string        `yaml:"capture_cue" env:"CAPTURE_CUE"`
	FinalCue         string        `yaml:"final_cue" env:"FINAL_CUE"`
}

type Slot struct {
	X      int `yaml:"x" json:"x"`
	Y      int `yaml:"y" json:"y"`
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

type CompositeConfig struct {
	Template      string `yaml:"template" env:"TEMPLATE"`
	Slots         []Slot `yaml:"slots"`
	Interpolation string `yaml:"interpolation" env:"INTERPOLATION"`
}

type CameraConfig struct {
	Driver       string        `yaml:"driver" env:"DRIVER"`
	SnapshotURL  string        `yaml:"snapshot_url" env:"SNAPSHOT_URL"`
	Command      []string      `yaml:"command" env:"COMMAND" envSeparator:" "`
	StartTimeout time.Duration `yaml:"start_timeout" env:"START_TIMEOUT"`
	StartRetries int           `yaml:"start_retries" env:"START_RETRIES"`
	SnapTimeout  time.Duration `yaml:"snap_timeout" env:"SNAP_TIMEOUT"`
}

type UploadConfig struct {
	Endpoint string        `yaml:"endpoint" env:"ENDPOINT"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type HealthConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Endpoint string        `yaml:"endpoint" env:"ENDPOINT"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type QRConfig struct {
	Size            int    `yaml:"size" json:"size" env:"SIZE"`
	ErrorCorrection string `yaml:"error_correction" json:"errorCorrection" env:"ERROR_CORRECTION"`
	Foreground      string `yaml:"foreground" json:"foreground" env:"FOREGROUND"`
	Background      string `yaml:"background" json:"background" env:"BACKGROUND"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type TelemetryConfig struct {
	Endpoint    string `yaml:"otel_endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

type BackendConfig struct {
	Host          string   `yaml:"host" env:"HOST"`
	Port          int      `yaml:"port" env:"PORT"`
	BackupDir     string   `yaml:"backup_dir" env:"BACKUP_DIR"`
	PublicBaseURL string   `yaml:"public_base_url" env:"PUBLIC_BASE_URL"`
	MaxUploadSize int64    `yaml:"max_upload_size" env:"MAX_UPLOAD_SIZE"`
	S3            S3Config `yaml:"s3" envPrefix:"S3_"`
}

type S3Config struct {
	Bucket     string        `yaml:"bucket" env:"BUCKET"`
	Region     string        `yaml:"region" env:"REGION"`
	Prefix     string        `yaml:"prefix" env:"PREFIX"`
	PresignTTL time.Duration `yaml:"presign_ttl" env:"PRESIGN_TTL"`
}

// DefaultInstructions are the prompts shown while the guest gets ready.
var DefaultInstructions = []string{
	"Get Ready 😊",
	"Strike a Pose 🕺",
	"Say Cheese 🧀",
	"Looking good 😉",
	"Don't blink 😑",
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			Host:             "127.0.0.1",
			SnapshotInterval: 5 * time.Second,
		},
		Booth: BoothConfig{
			PhotoCount:       2,
			CountdownSeconds: 3,
			TickInterval:     time.Second,
			SettleDelay:      2 * time.Second,
			ReviewTimeout:    5 * time.Minute,
			AttractAfter:     time.Minute,
			Instructions:     append([]string(nil), DefaultInstructions...),
			CountdownCue:     "countdown",
			CaptureCue:       "capture",
		},
		Composite: CompositeConfig{
			Slots: []Slot{
				{X: 43, Y: 68, Width: 988, Height: 652},
				{X: 43, Y: 731, Width: 988, Height: 652},
			},
			Interpolation: "catmullrom",
		},
		Camera: CameraConfig{
			Driver:       "mock",
			StartTimeout: 10 * time.Second,
			StartRetries: 2,
			SnapTimeout:  5 * time.Second,
		},
		Upload: UploadConfig{
			Endpoint: "http://localhost:3000/api/upload",
			Timeout:  30 * time.Second,
		},
		Health: HealthConfig{
			Enabled:  true,
			Endpoint: "http://localhost:3000/api/healthcheck",
			Interval: 5 * time.Second,
			Timeout:  3 * time.Second,
		},
		QR: QRConfig{
			Size:            200,
			ErrorCorrection: "medium",
			Foreground:      "#000000",
			Background:      "#ffffff",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "snapbooth",
		},
		Backend: BackendConfig{
			Host:          "127.0.0.1",
			Port:          3000,
			BackupDir:     "photos",
			PublicBaseURL: "http://localhost:3000",
			MaxUploadSize: 32 << 20,
			S3: S3Config{
				Region:     "us-east-1",
				PresignTTL: 24 * time.Hour,
			},
		},
	}
}

// Default returns the built-in configuration with environment overrides applied.
func Default() (*Config, error) {
	cfg := defaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Load reads the YAML file at path over the defaults, then applies
// SNAPBOOTH_* environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the booth relies on at runtime.
func (c *Config) Validate() error {
	var errs []error

	b := c.Booth
	if b.PhotoCount < 1 {
		errs = append(errs, fmt.Errorf("booth.photo_count must be >= 1, got %d", b.PhotoCount))
	}
	if b.CountdownSeconds < 0 {
		errs = append(errs, fmt.Errorf("booth.countdown_seconds must be >= 0, got %d", b.CountdownSeconds))
	}
	if b.TickInterval <= 0 {
		errs = append(errs, errors.New("booth.tick_interval must be positive"))
	}
	if b.SettleDelay < 0 {
		errs = append(errs, errors.New("booth.settle_delay must not be negative"))
	}
	if b.ReviewTimeout <= 0 {
		errs = append(errs, errors.New("booth.review_timeout must be positive"))
	}
	if b.AttractAfter <= 0 {
		errs = append(errs, errors.New("booth.attract_after must be positive"))
	}
	if len(b.Instructions) == 0 {
		errs = append(errs, errors.New("booth.instructions must not be empty"))
	}

	if len(c.Composite.Slots) != b.PhotoCount {
		errs = append(errs, fmt.Errorf("composite.slots has %d entries, booth.photo_count is %d",
			len(c.Composite.Slots), b.PhotoCount))
	}
	for i, s := range c.Composite.Slots {
		if s.Width <= 0 || s.Height <= 0 {
			errs = append(errs, fmt.Errorf("composite.slots[%d] has empty size %dx%d", i, s.Width, s.Height))
		}
	}

	if c.Health.Enabled && c.Health.Interval <= 0 {
		errs = append(errs, errors.New("health.interval must be positive"))
	}

	return errors.Join(errs...)
}

// Addr returns the host:port the controller listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BackendAddr returns the host:port the reference backend listens on.
func (c *Config) BackendAddr() string {
	return fmt.Sprintf("%s:%d", c.Backend.Host, c.Backend.Port)
}
