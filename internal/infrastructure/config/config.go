package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Node.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Network    NetworkConfig    `yaml:"network"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Sampling   SamplingConfig   `yaml:"sampling"`
	GPIO       GPIOConfig       `yaml:"gpio"`
	Input      InputConfig      `yaml:"input"`
	Outputs    OutputsConfig    `yaml:"outputs"`
	Indicators IndicatorsConfig `yaml:"indicators"`
	System     SystemConfig     `yaml:"system"`
}

// DeviceConfig identifies this node on the broker and in the info payload.
type DeviceConfig struct {
	ID       string `yaml:"id"`
	Firmware string `yaml:"firmware"`
}

// DatabaseConfig contains SQLite settings for the non-volatile key/value store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	BaseTopic string              `yaml:"base_topic"`
	KeepAlive int                 `yaml:"keep_alive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// NetworkConfig contains station-mode link and provisioning settings.
type NetworkConfig struct {
	// Interface is the wireless interface managed by NetworkManager.
	Interface string `yaml:"interface"`

	// MaxRetry is the number of consecutive connection failures that
	// sends the node into provisioning.
	MaxRetry int `yaml:"max_retry"`

	// RetryDelay is the pause between connection attempts (seconds).
	RetryDelay int `yaml:"retry_delay"`

	// ConnectTimeout bounds a single association attempt (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// RSSIInterval is how often signal strength is sampled while connected (seconds).
	RSSIInterval int `yaml:"rssi_interval"`

	// RSSIThreshold is the dBm level below which a weak-signal warning is logged.
	RSSIThreshold int `yaml:"rssi_threshold"`

	AccessPoint AccessPointConfig `yaml:"access_point"`
}

// AccessPointConfig contains the provisioning access point settings.
type AccessPointConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`

	// HostapdBinary and HostapdConfig launch the access point daemon.
	HostapdBinary string `yaml:"hostapd_binary"`
	HostapdConfig string `yaml:"hostapd_config"`

	// DHCPBinary and DHCPArgs launch the DHCP/DNS daemon for portal clients.
	// Leave DHCPBinary empty when addressing is handled elsewhere.
	DHCPBinary string   `yaml:"dhcp_binary"`
	DHCPArgs   []string `yaml:"dhcp_args"`
}

// APIConfig contains the local HTTP server settings (provisioning portal, status, websocket).
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for sensor history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SamplingConfig contains sensor sampling and publish cadence settings.
type SamplingConfig struct {
	// Interval is the default data publish interval (seconds).
	Interval int `yaml:"interval"`

	// MinInterval and MaxInterval bound set_interval commands (seconds).
	MinInterval int `yaml:"min_interval"`
	MaxInterval int `yaml:"max_interval"`

	// StateBackup is the unconditional state re-publish period (seconds).
	StateBackup int `yaml:"state_backup"`

	// LockTimeout bounds sensor store lock acquisition (milliseconds).
	LockTimeout int `yaml:"lock_timeout"`

	Sensors SensorsConfig `yaml:"sensors"`
}

// SensorsConfig maps each physical quantity to a sysfs source.
// An empty path disables the sensor.
type SensorsConfig struct {
	Temperature SensorSourceConfig `yaml:"temperature"`
	Humidity    SensorSourceConfig `yaml:"humidity"`
	Light       SensorSourceConfig `yaml:"light"`
}

// SensorSourceConfig describes one IIO sysfs attribute.
type SensorSourceConfig struct {
	Path  string  `yaml:"path"`
	Scale float64 `yaml:"scale"`
}

// GPIOConfig selects the character device used for buttons, outputs and indicators.
type GPIOConfig struct {
	Enabled bool   `yaml:"enabled"`
	Chip    string `yaml:"chip"`
}

// InputConfig contains button pipeline settings.
type InputConfig struct {
	// PollInterval is the debounce sampling period (milliseconds).
	PollInterval int `yaml:"poll_interval"`

	// StableReads is the number of consecutive low reads that form a press.
	StableReads int `yaml:"stable_reads"`

	// QueueDepth bounds the event queue between debouncer and worker.
	QueueDepth int `yaml:"queue_depth"`

	Buttons ButtonPinsConfig `yaml:"buttons"`
}

// ButtonPinsConfig holds the GPIO line offsets of the logical buttons.
type ButtonPinsConfig struct {
	Mode      int `yaml:"mode"`
	LinkReset int `yaml:"link_reset"`
	OutputA   int `yaml:"output_a"`
	OutputB   int `yaml:"output_b"`
	OutputC   int `yaml:"output_c"`
}

// OutputsConfig holds the GPIO line offsets of the switched loads.
type OutputsConfig struct {
	Fan       int  `yaml:"fan"`
	Light     int  `yaml:"light"`
	AC        int  `yaml:"ac"`
	ActiveLow bool `yaml:"active_low"`
}

// IndicatorsConfig holds the status LED line offsets and poll period.
type IndicatorsConfig struct {
	Mode    int `yaml:"mode"`
	Link    int `yaml:"link"`
	Session int `yaml:"session"`

	// PollInterval is the status aggregator period (milliseconds).
	PollInterval int `yaml:"poll_interval"`
}

// SystemConfig contains host-level actions.
type SystemConfig struct {
	RebootCommand []string `yaml:"reboot_command"`

	// RebootDelay is the grace period before a commanded reboot (seconds).
	RebootDelay int `yaml:"reboot_delay"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_NODE_SECTION_KEY
// For example: GRAYLOGIC_NODE_DATABASE_PATH, GRAYLOGIC_NODE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:       "node-001",
			Firmware: "dev",
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-node.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			BaseTopic: "base",
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Network: NetworkConfig{
			Interface:      "wlan0",
			MaxRetry:       5,
			RetryDelay:     5,
			ConnectTimeout: 30,
			RSSIInterval:   10,
			RSSIThreshold:  -75,
			AccessPoint: AccessPointConfig{
				SSID:          "GrayLogic-Setup",
				HostapdBinary: "/usr/sbin/hostapd",
				HostapdConfig: "/etc/hostapd/graylogic-node.conf",
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 80,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Sampling: SamplingConfig{
			Interval:    5,
			MinInterval: 1,
			MaxInterval: 3600,
			StateBackup: 60,
			LockTimeout: 100,
		},
		GPIO: GPIOConfig{
			Chip: "gpiochip0",
		},
		Input: InputConfig{
			PollInterval: 10,
			StableReads:  5,
			QueueDepth:   10,
		},
		Indicators: IndicatorsConfig{
			PollInterval: 50,
		},
		System: SystemConfig{
			RebootCommand: []string{"systemctl", "reboot"},
			RebootDelay:   2,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_NODE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_NODE_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	if v := os.Getenv("GRAYLOGIC_NODE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_NODE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_NODE_AP_PASSWORD"); v != "" {
		cfg.Network.AccessPoint.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_NODE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("GRAYLOGIC_NODE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}
	if strings.ContainsAny(c.Device.ID, "/+#") {
		errs = append(errs, "device.id must not contain MQTT topic separators or wildcards")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.BaseTopic == "" {
		errs = append(errs, "mqtt.base_topic is required")
	}

	if c.Network.MaxRetry < 1 {
		errs = append(errs, "network.max_retry must be at least 1")
	}
	if c.Network.RetryDelay < 0 {
		errs = append(errs, "network.retry_delay must not be negative")
	}
	if c.Network.AccessPoint.SSID == "" {
		errs = append(errs, "network.access_point.ssid is required")
	}
	const minWPAPassphrase = 8
	if p := c.Network.AccessPoint.Password; p != "" && len(p) < minWPAPassphrase {
		errs = append(errs, "network.access_point.password must be at least 8 characters")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	s := c.Sampling
	if s.MinInterval < 1 {
		errs = append(errs, "sampling.min_interval must be at least 1")
	}
	if s.MaxInterval < s.MinInterval {
		errs = append(errs, "sampling.max_interval must not be below sampling.min_interval")
	}
	if s.Interval < s.MinInterval || s.Interval > s.MaxInterval {
		errs = append(errs, "sampling.interval must be within [min_interval, max_interval]")
	}
	if s.StateBackup < 1 {
		errs = append(errs, "sampling.state_backup must be at least 1")
	}
	if s.LockTimeout < 1 {
		errs = append(errs, "sampling.lock_timeout must be at least 1")
	}

	if c.GPIO.Enabled && c.GPIO.Chip == "" {
		errs = append(errs, "gpio.chip is required when gpio is enabled")
	}

	if c.Input.StableReads < 1 {
		errs = append(errs, "input.stable_reads must be at least 1")
	}
	if c.Input.QueueDepth < 1 {
		errs = append(errs, "input.queue_depth must be at least 1")
	}
	if c.Input.PollInterval < 1 {
		errs = append(errs, "input.poll_interval must be at least 1")
	}
	if c.Indicators.PollInterval < 1 {
		errs = append(errs, "indicators.poll_interval must be at least 1")
	}

	if len(c.System.RebootCommand) == 0 {
		errs = append(errs, "system.reboot_command is required")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// Seconds converts a whole-second config value to a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Millis converts a whole-millisecond config value to a Duration.
func Millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
