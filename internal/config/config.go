package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Dial modes for reaching the glasses.
const (
	ModeBridge   = "bridge"
	ModeRelay    = "relay"
	ModeFallback = "fallback"
)

// Config holds all application configuration.
type Config struct {
	Bridge BridgeConfig `yaml:"bridge"`
	HTTP   HTTPConfig   `yaml:"http"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	View   ViewConfig   `yaml:"view"`
	Log    LogConfig    `yaml:"log"`
}

// BridgeConfig holds how the daemon reaches the glasses.
type BridgeConfig struct {
	Mode         string `yaml:"mode"`
	Addr         string `yaml:"addr"`
	RelayURL     string `yaml:"relay_url"`
	Device       string `yaml:"device"`
	ClientSecret string `yaml:"client_secret"`
}

// MQTTConfig holds MQTT broker configuration.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	DeviceID    string `yaml:"device_id"`
	DeviceName  string `yaml:"device_name"`
	Model       string `yaml:"model"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr    string `yaml:"addr"`
	UIDir   string `yaml:"ui_dir"`
	CORSAll bool   `yaml:"cors_allow_all"`
}

// ViewConfig holds custom view and command pacing configuration.
type ViewConfig struct {
	IconsDir     string        `yaml:"icons_dir"`
	StrictWire   bool          `yaml:"strict_wire"`
	SendRate     float64       `yaml:"send_rate"`
	SendBurst    int           `yaml:"send_burst"`
	AckTimeout   time.Duration `yaml:"ack_timeout"`
	MessageLimit int           `yaml:"message_limit"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Bridge: BridgeConfig{
			Mode:   ModeBridge,
			Addr:   "127.0.0.1:7300",
			Device: "glasses",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		MQTT: MQTTConfig{
			TopicPrefix: "cxr",
			DeviceID:    "cxr_glasses_01",
			DeviceName:  "AR Glasses",
			Model:       "Glasses",
		},
		View: ViewConfig{
			IconsDir:     "/data/icons",
			StrictWire:   true,
			SendRate:     20,
			SendBurst:    5,
			AckTimeout:   10 * time.Second,
			MessageLimit: 50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file at path, then overlays environment variables.
// If path is empty, only defaults + env vars are used.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
			// file not found is ok, use defaults
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Bridge.Mode {
	case ModeBridge:
		if c.Bridge.Addr == "" {
			errs = append(errs, errors.New("bridge.addr is required in bridge mode"))
		}
	case ModeRelay:
		if c.Bridge.RelayURL == "" {
			errs = append(errs, errors.New("bridge.relay_url is required in relay mode"))
		}
	case ModeFallback:
		if c.Bridge.Addr == "" || c.Bridge.RelayURL == "" {
			errs = append(errs, errors.New("bridge.addr and bridge.relay_url are required in fallback mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("bridge.mode %q is not one of bridge, relay, fallback", c.Bridge.Mode))
	}
	if c.Bridge.Device == "" {
		errs = append(errs, errors.New("bridge.device is required"))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if c.View.SendRate < 0 {
		errs = append(errs, errors.New("view.send_rate must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// applyEnv overlays environment variables on top of the config.
// Env vars take precedence over YAML values.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("CXR_BRIDGE_MODE"); v != "" {
		cfg.Bridge.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("CXR_BRIDGE_ADDR"); v != "" {
		cfg.Bridge.Addr = v
	}
	if v := os.Getenv("CXR_RELAY_URL"); v != "" {
		cfg.Bridge.RelayURL = v
	}
	if v := os.Getenv("CXR_DEVICE"); v != "" {
		cfg.Bridge.Device = v
	}
	if v := os.Getenv("CXR_CLIENT_SECRET"); v != "" {
		cfg.Bridge.ClientSecret = v
	}
	if v := os.Getenv("CXR_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("CXR_UI_DIR"); v != "" {
		cfg.HTTP.UIDir = v
	}
	if v := os.Getenv("CXR_CORS_ALLOW_ALL"); v != "" {
		cfg.HTTP.CORSAll = parseBool(v)
	}
	if v := os.Getenv("CXR_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = parseBool(v)
	}
	if v := os.Getenv("CXR_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("CXR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("CXR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("CXR_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}
	if v := os.Getenv("CXR_MQTT_DEVICE_ID"); v != "" {
		cfg.MQTT.DeviceID = v
	}
	if v := os.Getenv("CXR_ICONS_DIR"); v != "" {
		cfg.View.IconsDir = v
	}
	if v := os.Getenv("CXR_STRICT_WIRE"); v != "" {
		cfg.View.StrictWire = parseBool(v)
	}
	if v := os.Getenv("CXR_SEND_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: CXR_SEND_RATE: %w", err)
		}
		cfg.View.SendRate = f
	}
	if v := os.Getenv("CXR_ACK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: CXR_ACK_TIMEOUT: %w", err)
		}
		cfg.View.AckTimeout = d
	}
	if v := os.Getenv("CXR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CXR_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	b, _ := strconv.ParseBool(s)
	return b
}
