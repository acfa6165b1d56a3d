package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type RateLimit struct {
	Events   int           `mapstructure:"events"`
	Interval time.Duration `mapstructure:"interval"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Analysis struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`

	// FramesPerSecond caps analyze-frame calls per session; zero disables it.
	FramesPerSecond float64 `mapstructure:"frames_per_second"`
	FrameBurst      int     `mapstructure:"frame_burst"`
}

type Redis struct {
	Enabled       bool   `mapstructure:"enabled"`
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type Config struct {
	Mode   string `mapstructure:"mode"`
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`

	SendQueueSize      int    `mapstructure:"send_queue_size"`
	BackpressurePolicy string `mapstructure:"backpressure_policy"`

	RateLimit  RateLimit   `mapstructure:"rate_limit"`
	Log        Log         `mapstructure:"log"`
	ICEServers []ICEServer `mapstructure:"ice_servers"`
	Analysis   Analysis    `mapstructure:"analysis"`
	Redis      Redis       `mapstructure:"redis"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "change-me")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_queue_size", 64)
	v.SetDefault("backpressure_policy", "drop")
	v.SetDefault("rate_limit.events", 200)
	v.SetDefault("rate_limit.interval", "1s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
	v.SetDefault("analysis.url", "http://localhost:8000")
	v.SetDefault("analysis.timeout", "10s")
	v.SetDefault("analysis.frames_per_second", 2)
	v.SetDefault("analysis.frame_burst", 4)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "proctoring:")
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults. Environment
// variables win over both, with dots mapped to underscores (REDIS_ADDR).
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Policy: %s | Redis: %t\n", cfg.Mode, cfg.Port, cfg.BackpressurePolicy, cfg.Redis.Enabled)
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.PingPeriod <= 0 || c.PongWait <= c.PingPeriod:
		return fmt.Errorf("pong_wait (%s) must exceed ping_period (%s)", c.PongWait, c.PingPeriod)
	case c.WriteWait <= 0:
		return fmt.Errorf("write_wait must be positive")
	case c.RateLimit.Events <= 0 || c.RateLimit.Interval <= 0:
		return fmt.Errorf("rate_limit needs positive events and interval")
	case c.BackpressurePolicy != "drop" && c.BackpressurePolicy != "kick":
		return fmt.Errorf("unknown backpressure_policy %q", c.BackpressurePolicy)
	}
	return nil
}
