package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/saaga0h/quito/pkg/broker"
)

// DefaultBrokerURI is used when neither the config nor a profile names a broker
const DefaultBrokerURI = "tcp://localhost:1883"

// Config holds the configuration for a quito agent
type Config struct {
	// MQTT broker connection
	Broker broker.Settings `yaml:"broker"`

	// TLS material read from files, overriding the base64 fields of Broker
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// Agent behaviour
	Topics        []string `yaml:"topics"`
	SubscribeQoS  int      `yaml:"subscribe_qos"`
	AnnounceTopic string   `yaml:"announce_topic"`

	// Saved connection profiles
	Profile      string `yaml:"profile"`
	SaveProfile  string `yaml:"save_profile"`
	RedisEnabled bool   `yaml:"redis_enabled"`

	// Redis configuration
	RedisHost     string `yaml:"redis_host"`
	RedisPort     int    `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Service configuration
	ConfigFile  string `yaml:"-"`
	ServiceName string `yaml:"service_name"`
	HealthPort  int    `yaml:"health_port"`
	LogLevel    string `yaml:"log_level"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		Topics:       []string{"quito/#"},
		SubscribeQoS: 0,
		RedisHost:    "localhost",
		RedisPort:    6379,
		RedisDB:      0,
		ServiceName:  "quito-agent",
		HealthPort:   8080,
		LogLevel:     "info",
	}
}

// LoadFromFile merges a YAML file into the config. Keys absent from the
// file keep their current values.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}

	c.ConfigFile = path
	return nil
}

// LoadFromEnv loads configuration from environment variables with QUITO_ prefix
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("QUITO_CONFIG_FILE"); v != "" {
		c.ConfigFile = v
	}

	// Broker configuration
	if v := os.Getenv("QUITO_BROKER_URI"); v != "" {
		c.Broker.URI = v
	}
	if v := os.Getenv("QUITO_BROKER_HOST"); v != "" {
		c.Broker.Host = v
	}
	if v := os.Getenv("QUITO_BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Broker.Port = &port
		}
	}
	if v := os.Getenv("QUITO_BROKER_PROTOCOL"); v != "" {
		c.Broker.Protocol = v
	}
	if v := os.Getenv("QUITO_TLS"); v != "" {
		if tls, err := strconv.ParseBool(v); err == nil {
			c.Broker.TLS = &tls
		}
	}
	if v := os.Getenv("QUITO_CLIENT_ID"); v != "" {
		c.Broker.ClientID = v
	}
	if v := os.Getenv("QUITO_USERNAME"); v != "" {
		c.Broker.Username = v
	}
	if v := os.Getenv("QUITO_PASSWORD"); v != "" {
		c.Broker.Password = v
	}
	if v := os.Getenv("QUITO_KEEPALIVE_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			c.Broker.KeepaliveSec = &sec
		}
	}
	if v := os.Getenv("QUITO_CONNECT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Broker.ConnectTimeoutMs = &ms
		}
	}
	if v := os.Getenv("QUITO_CLEAN_SESSION"); v != "" {
		if clean, err := strconv.ParseBool(v); err == nil {
			c.Broker.CleanSession = &clean
		}
	}
	if v := os.Getenv("QUITO_PROTOCOL_LEVEL"); v != "" {
		if level, err := strconv.Atoi(v); err == nil {
			c.Broker.ProtocolLevel = level
		}
	}
	if v := os.Getenv("QUITO_RECONNECT_PERIOD_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Broker.ReconnectPeriodMs = &ms
		}
	}

	// TLS material
	if v := os.Getenv("QUITO_CA_FILE"); v != "" {
		c.CAFile = v
	}
	if v := os.Getenv("QUITO_CERT_FILE"); v != "" {
		c.CertFile = v
	}
	if v := os.Getenv("QUITO_KEY_FILE"); v != "" {
		c.KeyFile = v
	}
	if v := os.Getenv("QUITO_KEYSTORE_PASSWORD"); v != "" {
		c.Broker.KeyStorePassword = v
	}

	// Agent configuration
	if v := os.Getenv("QUITO_TOPICS"); v != "" {
		c.Topics = splitList(v)
	}
	if v := os.Getenv("QUITO_SUBSCRIBE_QOS"); v != "" {
		if qos, err := strconv.Atoi(v); err == nil {
			c.SubscribeQoS = qos
		}
	}
	if v := os.Getenv("QUITO_ANNOUNCE_TOPIC"); v != "" {
		c.AnnounceTopic = v
	}

	// Profiles and Redis
	if v := os.Getenv("QUITO_PROFILE"); v != "" {
		c.Profile = v
	}
	if v := os.Getenv("QUITO_SAVE_PROFILE"); v != "" {
		c.SaveProfile = v
	}
	if v := os.Getenv("QUITO_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.RedisEnabled = enabled
		}
	}
	if v := os.Getenv("QUITO_REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := os.Getenv("QUITO_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.RedisPort = port
		}
	}
	if v := os.Getenv("QUITO_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("QUITO_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.RedisDB = db
		}
	}

	// Service configuration
	if v := os.Getenv("QUITO_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("QUITO_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HealthPort = port
		}
	}
	if v := os.Getenv("QUITO_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// RegisterFlags adds the agent's flags to fs, defaulting to current values
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	// Broker flags
	fs.StringVar(&c.Broker.URI, "broker", c.Broker.URI, "MQTT broker URI (tcp://, mqtt://, ssl://, mqtts://, ws://, wss://)")
	fs.StringVar(&c.Broker.Host, "host", c.Broker.Host, "MQTT broker host, overrides the URI host")
	fs.Int("port", 0, "MQTT broker port, overrides the URI port")
	fs.StringVar(&c.Broker.Protocol, "protocol", c.Broker.Protocol, "Transport protocol (tcp, ssl, ws, wss)")
	fs.Bool("tls", false, "Require TLS; upgrades tcp to ssl")
	fs.StringVar(&c.Broker.ClientID, "client-id", c.Broker.ClientID, "MQTT client ID (generated when empty)")
	fs.StringVar(&c.Broker.Username, "username", c.Broker.Username, "MQTT username")
	fs.StringVar(&c.Broker.Password, "password", c.Broker.Password, "MQTT password")
	fs.Int("keepalive", 60, "Keepalive interval in seconds")
	fs.Int("connect-timeout-ms", 30000, "Connect timeout in milliseconds")
	fs.Bool("clean-session", true, "Start with a clean session")
	fs.IntVar(&c.Broker.ProtocolLevel, "protocol-level", c.Broker.ProtocolLevel, "MQTT protocol level: 3, 4 or 5")
	fs.Int("reconnect-period-ms", 1000, "Automatic reconnect interval in milliseconds, 0 disables")

	// TLS flags
	fs.StringVar(&c.CAFile, "ca-file", c.CAFile, "CA certificate file (PEM or DER)")
	fs.StringVar(&c.CertFile, "cert-file", c.CertFile, "Client certificate file (PEM or DER)")
	fs.StringVar(&c.KeyFile, "key-file", c.KeyFile, "Client private key file (PEM or DER)")
	fs.StringVar(&c.Broker.KeyStorePassword, "keystore-password", c.Broker.KeyStorePassword, "Password for an encrypted private key")

	// Agent flags
	fs.StringSliceVar(&c.Topics, "topic", c.Topics, "Topic filter to subscribe to (repeatable)")
	fs.IntVar(&c.SubscribeQoS, "qos", c.SubscribeQoS, "Subscription QoS")
	fs.StringVar(&c.AnnounceTopic, "announce-topic", c.AnnounceTopic, "Topic to publish an online message to after connecting")

	// Profile and Redis flags
	fs.StringVar(&c.Profile, "profile", c.Profile, "Load broker settings from a saved profile")
	fs.StringVar(&c.SaveProfile, "save-profile", c.SaveProfile, "Save the effective broker settings under this profile name")
	fs.BoolVar(&c.RedisEnabled, "redis-enabled", c.RedisEnabled, "Enable the Redis profile store")
	fs.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname")
	fs.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")

	// Service flags
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "YAML config file")
	fs.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	fs.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
}

// ApplyFlags copies optional broker flags into the config, but only when
// they were given on the command line
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	intFlags := map[string]**int{
		"port":                &c.Broker.Port,
		"keepalive":           &c.Broker.KeepaliveSec,
		"connect-timeout-ms":  &c.Broker.ConnectTimeoutMs,
		"reconnect-period-ms": &c.Broker.ReconnectPeriodMs,
	}
	for name, dst := range intFlags {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = &v
	}

	boolFlags := map[string]**bool{
		"tls":           &c.Broker.TLS,
		"clean-session": &c.Broker.CleanSession,
	}
	for name, dst := range boolFlags {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = &v
	}
	return nil
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags(args []string) error {
	fs := pflag.NewFlagSet(c.ServiceName, pflag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.ApplyFlags(fs)
}

// Load applies the full hierarchy: defaults → file → env → flags.
// The config file may be named by QUITO_CONFIG_FILE or --config.
func Load(serviceName string, args []string) (*Config, error) {
	cfg := NewConfig()
	cfg.ServiceName = serviceName

	path := os.Getenv("QUITO_CONFIG_FILE")
	if p := configFlag(args); p != "" {
		path = p
	}
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	cfg.LoadFromEnv()
	if err := cfg.LoadFromFlags(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configFlag finds --config before the full flag set is parsed
func configFlag(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.SubscribeQoS < 0 || c.SubscribeQoS > 2 {
		return fmt.Errorf("subscribe QoS must be 0, 1 or 2")
	}
	if (c.Profile != "" || c.SaveProfile != "") && !c.RedisEnabled {
		return fmt.Errorf("profiles require the Redis profile store (--redis-enabled)")
	}
	if c.RedisEnabled {
		if c.RedisHost == "" {
			return fmt.Errorf("Redis host is required")
		}
		if c.RedisPort <= 0 || c.RedisPort > 65535 {
			return fmt.Errorf("Redis port must be between 1 and 65535")
		}
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// BrokerOptions builds validated connection options. Base settings (a
// saved profile) are applied first, then the config's own broker settings
// and TLS files.
func (c *Config) BrokerOptions(gen broker.IDGenerator, base ...broker.Settings) (broker.Options, error) {
	b := broker.NewBuilder(broker.WithIDGenerator(gen))
	for _, s := range base {
		b = s.Apply(b)
	}
	if len(base) == 0 && c.Broker.URI == "" && c.Broker.Host == "" {
		b.URI(DefaultBrokerURI)
	}
	b = c.Broker.Apply(b)

	if c.CAFile != "" {
		data, err := os.ReadFile(c.CAFile)
		if err != nil {
			return broker.Options{}, fmt.Errorf("failed to read CA file: %w", err)
		}
		b.CA(data)
	}
	if c.CertFile != "" {
		data, err := os.ReadFile(c.CertFile)
		if err != nil {
			return broker.Options{}, fmt.Errorf("failed to read certificate file: %w", err)
		}
		b.Certificate(data)
	}
	if c.KeyFile != "" {
		data, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return broker.Options{}, fmt.Errorf("failed to read key file: %w", err)
		}
		b.PrivateKey(data)
	}

	opts, err := b.Build()
	if err != nil {
		return broker.Options{}, fmt.Errorf("invalid broker configuration: %w", err)
	}
	return opts, nil
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
