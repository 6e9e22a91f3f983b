package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pixperk/objmutex/pkg/types"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLockSuffix         = ".s3-object-mutex-lock.json"
	DefaultLockTimeout        = 900 * time.Second
	DefaultAcquisitionTimeout = 120 * time.Second
	DefaultPollInterval       = 20 * time.Second
	DefaultSafetyMargin       = 10 * time.Second
)

// built once at startup and handed to every component
type Config struct {
	Store      StoreConfig     `yaml:"store"`
	LockSuffix string          `yaml:"lock_suffix"`
	Timeouts   Timeouts        `yaml:"timeouts"`
	Log        LogConfig       `yaml:"log"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
}

// selects and configures the object store backend
type StoreConfig struct {
	Backend   string        `yaml:"backend"`  // s3, redis, file, sql, raft, mem
	Endpoint  string        `yaml:"endpoint"` // s3 host, redis addr or raft node grpc addr
	Region    string        `yaml:"region"`
	AccessKey string        `yaml:"access_key"`
	SecretKey string        `yaml:"secret_key"`
	UseSSL    bool          `yaml:"use_ssl"`
	Password  string        `yaml:"password"`  // redis
	DB        int           `yaml:"db"`        // redis
	Path      string        `yaml:"path"`      // bolt file
	Driver    string        `yaml:"driver"`    // sql: mysql or postgres
	DSN       string        `yaml:"dsn"`       // sql
	PageSize  int           `yaml:"page_size"` // max keys per list page
	Timeout   time.Duration `yaml:"timeout"`   // per-call deadline for remote backends
}

// protocol timing
type Timeouts struct {
	Lock         time.Duration `yaml:"lock"`
	Acquisition  time.Duration `yaml:"acquisition"`
	Poll         time.Duration `yaml:"poll"`
	SafetyMargin time.Duration `yaml:"safety_margin"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console or json
	Output     string `yaml:"output"` // console, file or both
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxAge     int    `yaml:"max_age"`  // days
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	TraceExporter  string `yaml:"trace_exporter"` // stdout or empty
	PushgatewayURL string `yaml:"pushgateway_url"`
}

func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:  "s3",
			Endpoint: "s3.amazonaws.com",
			UseSSL:   true,
			Path:     "objmutex.db",
			Driver:   "mysql",
			PageSize: 1000,
			Timeout:  10 * time.Second,
		},
		LockSuffix: DefaultLockSuffix,
		Timeouts: Timeouts{
			Lock:         DefaultLockTimeout,
			Acquisition:  DefaultAcquisitionTimeout,
			Poll:         DefaultPollInterval,
			SafetyMargin: DefaultSafetyMargin,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			Output:     "console",
			FilePath:   "logs/objmutex.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "objmutex",
		},
	}
}

// builds the config from defaults, then the optional yaml file, then OBJMUTEX_* variables
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Timeouts.Validate(); err != nil {
		return nil, err
	}
	if cfg.LockSuffix == "" {
		return nil, errors.New("lock suffix must not be empty")
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error

	s := &c.Store
	s.Backend = GetDefaultEnv("OBJMUTEX_STORE_BACKEND", s.Backend)
	s.Endpoint = GetDefaultEnv("OBJMUTEX_STORE_ENDPOINT", s.Endpoint)
	s.Region = GetDefaultEnv("OBJMUTEX_STORE_REGION", s.Region)
	s.AccessKey = GetDefaultEnv("OBJMUTEX_STORE_ACCESS_KEY", s.AccessKey)
	s.SecretKey = GetDefaultEnv("OBJMUTEX_STORE_SECRET_KEY", s.SecretKey)
	s.Password = GetDefaultEnv("OBJMUTEX_STORE_PASSWORD", s.Password)
	s.Path = GetDefaultEnv("OBJMUTEX_STORE_PATH", s.Path)
	s.Driver = GetDefaultEnv("OBJMUTEX_STORE_DRIVER", s.Driver)
	s.DSN = GetDefaultEnv("OBJMUTEX_STORE_DSN", s.DSN)
	if s.UseSSL, err = envBool("OBJMUTEX_STORE_USE_SSL", s.UseSSL); err != nil {
		return err
	}
	if s.DB, err = envInt("OBJMUTEX_STORE_DB", s.DB); err != nil {
		return err
	}
	if s.PageSize, err = envInt("OBJMUTEX_STORE_PAGE_SIZE", s.PageSize); err != nil {
		return err
	}
	if s.Timeout, err = envDuration("OBJMUTEX_STORE_TIMEOUT", s.Timeout); err != nil {
		return err
	}

	c.LockSuffix = GetDefaultEnv("OBJMUTEX_LOCK_SUFFIX", c.LockSuffix)

	t := &c.Timeouts
	if t.Lock, err = envDuration("OBJMUTEX_LOCK_TIMEOUT", t.Lock); err != nil {
		return err
	}
	if t.Acquisition, err = envDuration("OBJMUTEX_ACQUISITION_TIMEOUT", t.Acquisition); err != nil {
		return err
	}
	if t.Poll, err = envDuration("OBJMUTEX_POLL_INTERVAL", t.Poll); err != nil {
		return err
	}
	if t.SafetyMargin, err = envDuration("OBJMUTEX_SAFETY_MARGIN", t.SafetyMargin); err != nil {
		return err
	}

	l := &c.Log
	l.Level = GetDefaultEnv("OBJMUTEX_LOG_LEVEL", l.Level)
	l.Format = GetDefaultEnv("OBJMUTEX_LOG_FORMAT", l.Format)
	l.Output = GetDefaultEnv("OBJMUTEX_LOG_OUTPUT", l.Output)
	l.FilePath = GetDefaultEnv("OBJMUTEX_LOG_FILE", l.FilePath)

	tel := &c.Telemetry
	tel.ServiceName = GetDefaultEnv("OBJMUTEX_SERVICE_NAME", tel.ServiceName)
	tel.TraceExporter = GetDefaultEnv("OBJMUTEX_TRACE_EXPORTER", tel.TraceExporter)
	tel.PushgatewayURL = GetDefaultEnv("OBJMUTEX_PUSHGATEWAY_URL", tel.PushgatewayURL)

	return nil
}

// all durations positive, the exit margin inside the lock window and the
// poll interval inside the acquisition window
func (t Timeouts) Validate() error {
	if t.Lock <= 0 || t.Acquisition <= 0 || t.Poll <= 0 || t.SafetyMargin <= 0 {
		return fmt.Errorf("%w: all timeouts must be positive", types.ErrInvalidTimeouts)
	}
	if t.SafetyMargin >= t.Lock {
		return fmt.Errorf("%w: safety margin %s must be shorter than lock timeout %s",
			types.ErrInvalidTimeouts, t.SafetyMargin, t.Lock)
	}
	if t.Poll >= t.Acquisition {
		return fmt.Errorf("%w: poll interval %s must be shorter than acquisition timeout %s",
			types.ErrInvalidTimeouts, t.Poll, t.Acquisition)
	}
	return nil
}

// age at which a session renews its own ticket, one poll before others see it as stale
func (t Timeouts) RefreshThreshold() time.Duration {
	return t.Acquisition - t.Poll
}

// validity window used when checking ownership on exit
func (t Timeouts) ExitWindow() time.Duration {
	return t.Lock - t.SafetyMargin
}
