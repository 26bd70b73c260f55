package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Token   TokenConfig   `mapstructure:"token"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Mailer  MailerConfig  `mapstructure:"mailer"`
	Sweeper SweeperConfig `mapstructure:"sweeper"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type DBConfig struct {
	// Driver is memory or postgres.
	Driver             string        `mapstructure:"driver"`
	DatabaseURL        string        `mapstructure:"databaseURL"`
	MaxOpenConnection  int           `mapstructure:"maxOpenConnection"`
	MaxIdleConnection  int           `mapstructure:"maxIdleConnection"`
	ConnectionLifetime time.Duration `mapstructure:"connectionLifetime"`
	// SeedAccounts lists "uuid:name:balance" entries created at startup by
	// the memory driver.
	SeedAccounts []string `mapstructure:"seedAccounts"`
}

type TokenConfig struct {
	AuthToken string `mapstructure:"authToken"`
}

type LoggerConfig struct {
	LoggerLevel string `mapstructure:"loggerLevel"`
	// Format is dev (devslog) or json.
	Format string `mapstructure:"format"`
}

type QueueConfig struct {
	// Driver is memory or rabbitmq.
	Driver  string `mapstructure:"driver"`
	Workers int    `mapstructure:"workers"`
	AMQPURL string `mapstructure:"amqpURL"`
}

type MailerConfig struct {
	// Driver is log or nats.
	Driver  string `mapstructure:"driver"`
	NatsURL string `mapstructure:"natsURL"`
	Subject string `mapstructure:"subject"`
	From    string `mapstructure:"from"`
}

type SweeperConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 10*time.Second)
	v.SetDefault("server.shutdownTimeout", 15*time.Second)

	v.SetDefault("db.driver", "memory")
	v.SetDefault("db.databaseURL", "")
	v.SetDefault("db.maxOpenConnection", 15)
	v.SetDefault("db.maxIdleConnection", 10)
	v.SetDefault("db.connectionLifetime", time.Hour)
	v.SetDefault("db.seedAccounts", []string{})

	v.SetDefault("token.authToken", "test-token")

	v.SetDefault("logger.loggerLevel", "info")
	v.SetDefault("logger.format", "dev")

	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.amqpURL", "")

	v.SetDefault("mailer.driver", "log")
	v.SetDefault("mailer.natsURL", "")
	v.SetDefault("mailer.subject", "notifications.email.send")
	v.SetDefault("mailer.from", "no-reply@pixwithdraw.local")

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.schedule", "@every 1m")
}

// Load reads config.yaml from the working directory or ./internal/config and
// lets environment variables override it: db.databaseURL becomes DB_DATABASEURL.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./internal/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		slog.Debug("config file not found, using defaults and environment")
	} else {
		slog.Debug("using config file", "path", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "memory":
	case "postgres":
		if c.DB.DatabaseURL == "" {
			return errors.New("db.databaseURL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown db driver %q", c.DB.Driver)
	}

	switch c.Queue.Driver {
	case "memory":
	case "rabbitmq":
		if c.Queue.AMQPURL == "" {
			return errors.New("queue.amqpURL is required for the rabbitmq driver")
		}
	default:
		return fmt.Errorf("unknown queue driver %q", c.Queue.Driver)
	}

	switch c.Mailer.Driver {
	case "log":
	case "nats":
		if c.Mailer.NatsURL == "" {
			return errors.New("mailer.natsURL is required for the nats driver")
		}
	default:
		return fmt.Errorf("unknown mailer driver %q", c.Mailer.Driver)
	}

	if c.Token.AuthToken == "" {
		return errors.New("token.authToken must not be empty")
	}
	return nil
}
