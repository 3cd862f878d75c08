package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingSetting is returned by getters for required settings that
// have no value and no default.
var ErrMissingSetting = errors.New("missing required setting")

// FileName is the config file searched for in the config directory.
const FileName = "rcdash.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. RCDASH_SOURCE_TYPE.
const EnvPrefix = "RCDASH"

// SourceConfig selects and configures the telemetry source.
type SourceConfig struct {
	Type         string        `json:"type" mapstructure:"type"`
	TickInterval time.Duration `json:"tickInterval" mapstructure:"tickInterval"`
	Seed         uint64        `json:"seed" mapstructure:"seed"`
	Live         LiveConfig    `json:"live" mapstructure:"live"`
}

// LiveConfig holds the live-signal subscription settings.
type LiveConfig struct {
	URL            string        `json:"url" mapstructure:"url"`
	HealthURL      string        `json:"healthUrl" mapstructure:"healthUrl"`
	MaxSpeedKmh    float64       `json:"maxSpeedKmh" mapstructure:"maxSpeedKmh"`
	InitialBackoff time.Duration `json:"initialBackoff" mapstructure:"initialBackoff"`
	MaxBackoff     time.Duration `json:"maxBackoff" mapstructure:"maxBackoff"`
	MaxAttempts    int           `json:"maxAttempts" mapstructure:"maxAttempts"`
}

// DisplayConfig holds the gauge scales.
type DisplayConfig struct {
	MaxSpeedKmh float64 `json:"maxSpeedKmh" mapstructure:"maxSpeedKmh"`
	MaxRPM      float64 `json:"maxRpm" mapstructure:"maxRpm"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds the in-memory SQLite backend settings.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// DBConfig holds the PostgreSQL connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// WebSocketConfig holds the remote recorder settings.
type WebSocketConfig struct {
	URL            string        `json:"url" mapstructure:"url"`
	Secret         string        `json:"secret" mapstructure:"secret"`
	InitialBackoff time.Duration `json:"initialBackoff" mapstructure:"initialBackoff"`
	MaxBackoff     time.Duration `json:"maxBackoff" mapstructure:"maxBackoff"`
	// MaxAttempts caps consecutive failed redials. Zero retries forever.
	MaxAttempts int `json:"maxAttempts" mapstructure:"maxAttempts"`
}

// StorageConfig selects the recording backend.
type StorageConfig struct {
	Type       string          `json:"type" mapstructure:"type"`
	BufferSize int             `json:"bufferSize" mapstructure:"bufferSize"`
	Memory     MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite     SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	DB         DBConfig        `json:"db" mapstructure:"db"`
	WebSocket  WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout   time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds the InfluxDB settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// NATSConfig holds the NATS settings for the snapshot bus and session KV.
type NATSConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Subject string `json:"subject" mapstructure:"subject"`
	Bucket  string `json:"bucket" mapstructure:"bucket"`
}

// HubConfig holds the render gateway settings.
type HubConfig struct {
	Enabled        bool     `json:"enabled" mapstructure:"enabled"`
	Addr           string   `json:"addr" mapstructure:"addr"`
	AllowedOrigins []string `json:"allowedOrigins" mapstructure:"allowedOrigins"`
}

// SessionConfig holds the session store settings.
type SessionConfig struct {
	Store    string `json:"store" mapstructure:"store"`
	Key      string `json:"key" mapstructure:"key"`
	Username string `json:"username" mapstructure:"username"`
}

// MonitorConfig holds the status monitor settings.
type MonitorConfig struct {
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
}

// UploadConfig holds the recording upload settings.
type UploadConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	APIKey  string `json:"apiKey" mapstructure:"apiKey"`
}

// GraylogConfig holds the GELF output settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// SetDefaults registers every default value. source.type and
// display.maxSpeedKmh intentionally have none.
func SetDefaults() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./rcdashlogs")

	viper.SetDefault("source.tickInterval", "100ms")
	viper.SetDefault("source.seed", 0)
	viper.SetDefault("source.live.url", "ws://localhost:5000/telemetry")
	viper.SetDefault("source.live.healthUrl", "http://localhost:5000")
	viper.SetDefault("source.live.maxSpeedKmh", 80)
	viper.SetDefault("source.live.initialBackoff", "1s")
	viper.SetDefault("source.live.maxBackoff", "30s")
	viper.SetDefault("source.live.maxAttempts", 0)

	viper.SetDefault("display.maxRpm", 8000)

	viper.SetDefault("session.store", "memory")
	viper.SetDefault("session.key", "currentUser")
	viper.SetDefault("session.username", "")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.bufferSize", 1000)
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./recordings/rcdash.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "")
	viper.SetDefault("storage.websocket.secret", "")
	viper.SetDefault("storage.websocket.initialBackoff", "1s")
	viper.SetDefault("storage.websocket.maxBackoff", "30s")
	viper.SetDefault("storage.websocket.maxAttempts", 10)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "rcdash")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "rcdash")
	viper.SetDefault("influx.bucket", "telemetry")

	viper.SetDefault("nats.enabled", false)
	viper.SetDefault("nats.url", "nats://localhost:4222")
	viper.SetDefault("nats.subject", "rcdash.snapshot")
	viper.SetDefault("nats.bucket", "rcdash_session")

	viper.SetDefault("hub.enabled", true)
	viper.SetDefault("hub.addr", ":8080")
	viper.SetDefault("hub.allowedOrigins", []string{})

	viper.SetDefault("upload.enabled", false)
	viper.SetDefault("upload.url", "http://localhost:5000")
	viper.SetDefault("upload.apiKey", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("monitor.interval", "1s")
	viper.SetDefault("monitor.statusFile", "./rcdash.status.json")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "rcdash")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// LoadFile reads an explicit config file.
func LoadFile(path string) error {
	SetDefaults()

	viper.SetConfigFile(path)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSourceConfig returns the source settings. source.type is required.
func GetSourceConfig() (SourceConfig, error) {
	cfg := SourceConfig{
		Type:         viper.GetString("source.type"),
		TickInterval: viper.GetDuration("source.tickInterval"),
		Seed:         viper.GetUint64("source.seed"),
		Live: LiveConfig{
			URL:            viper.GetString("source.live.url"),
			HealthURL:      viper.GetString("source.live.healthUrl"),
			MaxSpeedKmh:    viper.GetFloat64("source.live.maxSpeedKmh"),
			InitialBackoff: viper.GetDuration("source.live.initialBackoff"),
			MaxBackoff:     viper.GetDuration("source.live.maxBackoff"),
			MaxAttempts:    viper.GetInt("source.live.maxAttempts"),
		},
	}
	if cfg.Type == "" {
		return cfg, fmt.Errorf("%w: source.type", ErrMissingSetting)
	}
	return cfg, nil
}

// GetDisplayConfig returns the gauge scales. display.maxSpeedKmh is
// required: the simulation and the live device use different scales.
func GetDisplayConfig() (DisplayConfig, error) {
	cfg := DisplayConfig{
		MaxSpeedKmh: viper.GetFloat64("display.maxSpeedKmh"),
		MaxRPM:      viper.GetFloat64("display.maxRpm"),
	}
	if !viper.IsSet("display.maxSpeedKmh") || cfg.MaxSpeedKmh <= 0 {
		return cfg, fmt.Errorf("%w: display.maxSpeedKmh", ErrMissingSetting)
	}
	return cfg, nil
}

// GetStorageConfig returns the recording backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:       viper.GetString("storage.type"),
		BufferSize: viper.GetInt("storage.bufferSize"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		DB: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
		WebSocket: WebSocketConfig{
			URL:            viper.GetString("storage.websocket.url"),
			Secret:         viper.GetString("storage.websocket.secret"),
			InitialBackoff: viper.GetDuration("storage.websocket.initialBackoff"),
			MaxBackoff:     viper.GetDuration("storage.websocket.maxBackoff"),
			MaxAttempts:    viper.GetInt("storage.websocket.maxAttempts"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

func GetNATSConfig() NATSConfig {
	return NATSConfig{
		Enabled: viper.GetBool("nats.enabled"),
		URL:     viper.GetString("nats.url"),
		Subject: viper.GetString("nats.subject"),
		Bucket:  viper.GetString("nats.bucket"),
	}
}

func GetHubConfig() HubConfig {
	return HubConfig{
		Enabled:        viper.GetBool("hub.enabled"),
		Addr:           viper.GetString("hub.addr"),
		AllowedOrigins: viper.GetStringSlice("hub.allowedOrigins"),
	}
}

func GetSessionConfig() SessionConfig {
	return SessionConfig{
		Store:    viper.GetString("session.store"),
		Key:      viper.GetString("session.key"),
		Username: viper.GetString("session.username"),
	}
}

func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

func GetUploadConfig() UploadConfig {
	return UploadConfig{
		Enabled: viper.GetBool("upload.enabled"),
		URL:     viper.GetString("upload.url"),
		APIKey:  viper.GetString("upload.apiKey"),
	}
}
