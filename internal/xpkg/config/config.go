package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"courier-dispatch/internal/xpkg/logger"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Hub      HubConfig      `mapstructure:"hub"`
	Client   ClientConfig   `mapstructure:"client"`
	Log      logger.Config  `mapstructure:"log"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// DSN builds the pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		p.User, p.Password, p.Host, p.Port, p.Database)
}

type RabbitMQConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	VHost    string `mapstructure:"vhost"`
	Exchange string `mapstructure:"exchange"`
}

func (r RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s",
		r.User, r.Password, r.Host, r.Port, r.VHost)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type HubConfig struct {
	Addr          string        `mapstructure:"addr"`
	SendQueueSize int           `mapstructure:"send_queue_size"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	PingInterval  time.Duration `mapstructure:"ping_interval"`
	SweepEvery    string        `mapstructure:"sweep_every"`
}

type ClientConfig struct {
	HubURL          string        `mapstructure:"hub_url"`
	APIURL          string        `mapstructure:"api_url"`
	ReconnectBase   time.Duration `mapstructure:"reconnect_base"`
	ReconnectGrowth float64       `mapstructure:"reconnect_growth"`
	ReconnectCap    time.Duration `mapstructure:"reconnect_cap"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	ResyncInterval  time.Duration `mapstructure:"resync_interval"`
	ResyncMinGap    time.Duration `mapstructure:"resync_min_gap"`
}

// Load reads config.yaml and applies environment overrides. A .env file is
// honored when present so local runs do not need exported variables.
func Load(path string) (*Config, error) {
	// A missing .env file is fine, the environment may already be set.
	_ = godotenv.Load()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("DISPATCH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}

	cfg := defaults()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Hub: HubConfig{
			Addr:          ":8080",
			SendQueueSize: 64,
			WriteTimeout:  10 * time.Second,
			PingInterval:  30 * time.Second,
			SweepEvery:    "@every 10s",
		},
		Client: ClientConfig{
			ReconnectBase:   2 * time.Second,
			ReconnectGrowth: 1.5,
			ReconnectCap:    30 * time.Second,
			MaxAttempts:     5,
			ResyncInterval:  10 * time.Second,
			ResyncMinGap:    2 * time.Second,
		},
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if c.Postgres.Host == "" {
		return fmt.Errorf("postgres.host is required")
	}
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq.host is required")
	}
	if c.Client.MaxAttempts <= 0 {
		return fmt.Errorf("client.max_attempts must be positive")
	}
	return nil
}
