// README: Config loader with defaults for HTTP, relay, routing, map and source settings.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"delitrack/internal/types"
)

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RelayConfig struct {
	// SendBuffer is the per-subscriber outbound queue length.
	SendBuffer int `mapstructure:"send_buffer"`
	// InboundRate and InboundBurst cap messages per second read from one connection.
	InboundRate  float64       `mapstructure:"inbound_rate"`
	InboundBurst int           `mapstructure:"inbound_burst"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	// Broker is "local" or "redis".
	Broker string `mapstructure:"broker"`
}

type RouteConfig struct {
	// ProxyURL is the base URL of the directions proxy ("" disables the proxy provider).
	ProxyURL       string        `mapstructure:"proxy_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MinutesPerKm is the flat-speed heuristic used when the directions lookup fails.
	MinutesPerKm float64 `mapstructure:"minutes_per_km"`
}

type MapsConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	RestaurantPlace string        `mapstructure:"restaurant_place"`
	Restaurant      types.Point   `mapstructure:"restaurant"`
	DefaultDest     types.Point   `mapstructure:"default_destination"`
	LoadTimeout     time.Duration `mapstructure:"load_timeout"`
	FitPadding      int           `mapstructure:"fit_padding"`
}

type TrackingConfig struct {
	ReconnectBase time.Duration `mapstructure:"reconnect_base"`
	ReconnectMax  time.Duration `mapstructure:"reconnect_max"`
}

type SourceConfig struct {
	KeepAlive    time.Duration `mapstructure:"keep_alive"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	MaxFailures  int           `mapstructure:"max_failures"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	QOS      int    `mapstructure:"qos"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	DB       struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`
	Redis struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"redis"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Route    RouteConfig    `mapstructure:"route"`
	Maps     MapsConfig     `mapstructure:"maps"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Source   SourceConfig   `mapstructure:"source"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Log      LogConfig      `mapstructure:"log"`
}

// Load reads defaults, an optional YAML file named by TRACK_CONFIG and
// TRACK_* environment overrides (TRACK_HTTP_ADDR, TRACK_ROUTE_PROXY_URL, ...).
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration Load produces with no file and no environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config", "")

	v.SetDefault("http.addr", ":5001")
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("db.dsn", "")
	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("relay.send_buffer", 32)
	v.SetDefault("relay.inbound_rate", 20.0)
	v.SetDefault("relay.inbound_burst", 40)
	v.SetDefault("relay.pong_wait", 60*time.Second)
	v.SetDefault("relay.write_wait", 10*time.Second)
	v.SetDefault("relay.broker", "local")

	v.SetDefault("route.proxy_url", "")
	v.SetDefault("route.request_timeout", 8*time.Second)
	v.SetDefault("route.minutes_per_km", 3.0)

	v.SetDefault("maps.api_key", "")
	v.SetDefault("maps.restaurant_place", "")
	v.SetDefault("maps.restaurant.lat", 12.9906677)
	v.SetDefault("maps.restaurant.lng", 77.6525905)
	v.SetDefault("maps.default_destination.lat", 12.9750)
	v.SetDefault("maps.default_destination.lng", 77.6600)
	v.SetDefault("maps.load_timeout", 5*time.Second)
	v.SetDefault("maps.fit_padding", 80)

	v.SetDefault("tracking.reconnect_base", time.Second)
	v.SetDefault("tracking.reconnect_max", 30*time.Second)

	v.SetDefault("source.keep_alive", 5*time.Second)
	v.SetDefault("source.poll_interval", 2*time.Second)
	v.SetDefault("source.read_timeout", 10*time.Second)
	v.SetDefault("source.max_failures", 3)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "delitrack")
	v.SetDefault("mqtt.topic", "delivery/+/location")
	v.SetDefault("mqtt.qos", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
