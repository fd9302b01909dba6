package config

import (
	"flag"
	"fmt"
	"io"
)

// CLIFlags holds command-line overrides. Nil fields were not set on
// the command line and leave the loaded value untouched.
type CLIFlags struct {
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
	ConfigPath *string
}

// ParseFlags parses command-line arguments into CLIFlags. Only flags
// explicitly present in args end up non-nil.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("ruleforge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	port := fs.String("port", "", "HTTP listen port")
	fs.StringVar(port, "p", "", "shorthand for --port")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	dsn := fs.String("dsn", "", "PostgreSQL connection string")
	natsURL := fs.String("nats-url", "", "NATS server URL")
	configPath := fs.String("config", "", "path to YAML config file")
	fs.StringVar(configPath, "c", "", "shorthand for --config")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}

	var flags CLIFlags
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port", "p":
			flags.Port = port
		case "log-level":
			flags.LogLevel = logLevel
		case "dsn":
			flags.DSN = dsn
		case "nats-url":
			flags.NatsURL = natsURL
		case "config", "c":
			flags.ConfigPath = configPath
		}
	})

	return flags, nil
}

// LoadWithCLI returns a Config using the full hierarchy:
// defaults < YAML < ENV < CLI. It also returns the resolved config
// file path so callers can log which file was consulted.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg := Defaults()

	if err := loadYAML(&cfg, path); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}

	return &cfg, path, nil
}

// applyCLI overlays non-nil flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}
