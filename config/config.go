package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/sdn-load-balancer/internal/assignment"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type ControllerConfig struct {
	URL       string `mapstructure:"url"`
	ClientID  string `mapstructure:"client_id"`
	PollRetry string `mapstructure:"poll_retry"`
}

type BalancerConfig struct {
	ClientPort  int   `mapstructure:"client_port"`
	ServerPorts []int `mapstructure:"server_ports"`
}

type MetricsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Controller ControllerConfig `mapstructure:"controller"`
	Balancer   BalancerConfig   `mapstructure:"balancer"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// NewFlagSet returns the command-line flags Load understands.
func NewFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("sdn-load-balancer", pflag.ContinueOnError)

	fs.String("config", "", "path to a YAML config file")
	fs.Int("client-port", 1, "switch port clients are attached to")
	fs.IntSlice("server-ports", nil, "switch ports servers are attached to")
	fs.String("controller-url", "http://localhost:9000", "Frenetic controller HTTP endpoint")
	fs.String("client-id", "load_balancer", "application id registered with the controller")
	fs.String("admin-address", ":8080", "listen address of the admin HTTP server")
	fs.String("environment", EnvDev, "dev, staging or prod")
	fs.String("log-level", LogLevelInfo, "debug, info, warn or error")

	return fs
}

var flagKeys = map[string]string{
	"client-port":    "balancer.client_port",
	"server-ports":   "balancer.server_ports",
	"controller-url": "controller.url",
	"client-id":      "controller.client_id",
	"admin-address":  "server.address",
	"environment":    "server.environment",
	"log-level":      "logging.level",
}

// Load parses args and builds the configuration.
func Load(args []string) (*Config, error) {
	fs := NewFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return LoadFlags(fs)
}

// LoadFlags builds the configuration from an already parsed flag set.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	if err := foldServerPorts(fs); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetDefault("controller.poll_retry", "1s")
	v.SetDefault("metrics.buffer_size", 1024)

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using flags, defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// foldServerPorts appends the bare integers left after parsing to
// --server-ports, so "--server-ports 10 11" means the same as
// "--server-ports 10,11". Any other leftover argument is an error.
func foldServerPorts(fs *pflag.FlagSet) error {
	args := fs.Args()
	if len(args) == 0 {
		return nil
	}

	flag := fs.Lookup("server-ports")
	if flag == nil || !flag.Changed {
		return fmt.Errorf("unexpected arguments %q", args)
	}

	for _, arg := range args {
		if _, err := strconv.Atoi(arg); err != nil {
			return fmt.Errorf("unexpected argument %q: server ports must be integers", arg)
		}
		if err := fs.Set("server-ports", arg); err != nil {
			return fmt.Errorf("server-ports: %w", err)
		}
	}

	return nil
}

// PollRetryInterval returns the pause between controller reconnect attempts.
func (c *Config) PollRetryInterval() time.Duration {
	d, err := time.ParseDuration(c.Controller.PollRetry)
	if err != nil {
		return time.Second
	}
	return d
}

// ServerPool returns the configured server ports in order.
func (c *Config) ServerPool() assignment.ServerPool {
	pool := make(assignment.ServerPool, 0, len(c.Balancer.ServerPorts))
	for _, p := range c.Balancer.ServerPorts {
		pool = append(pool, assignment.Port(p))
	}
	return pool
}

func (c *Config) Validate() error {
	if len(c.Balancer.ServerPorts) == 0 {
		return fmt.Errorf("balancer.server_ports: %w", assignment.ErrEmptyServerPool)
	}

	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Controller,
			validation.Required,
			validation.By(func(value interface{}) error {
				cc, ok := value.(ControllerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ControllerConfig")
				}
				return validation.ValidateStruct(&cc,
					validation.Field(&cc.URL,
						validation.Required,
						validation.By(validateControllerURL),
					),
					validation.Field(&cc.ClientID,
						validation.Required,
						validation.Match(clientIDPattern).Error("must contain only letters, digits, '_' or '-'"),
					),
					validation.Field(&cc.PollRetry,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Balancer,
			validation.Required,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BalancerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BalancerConfig")
				}

				serverPorts := make([]interface{}, 0, len(bc.ServerPorts))
				for _, p := range bc.ServerPorts {
					serverPorts = append(serverPorts, p)
				}

				return validation.ValidateStruct(&bc,
					validation.Field(&bc.ClientPort,
						validation.Required,
						validation.Min(1),
						validation.NotIn(serverPorts...).Error("must not be one of the server ports"),
					),
					validation.Field(&bc.ServerPorts,
						validation.Required,
						validation.Length(1, 0),
						validation.Each(validation.Required, validation.Min(1)),
					),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.BufferSize,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 500ms, 2s)")
	}

	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

func validateControllerURL(value interface{}) error {
	controllerURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	parsedURL, err := url.Parse(controllerURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
