package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"corsserve/logger"

	"github.com/joho/godotenv"
)

const (
	DefaultPort            = 8000
	DefaultRoot            = "."
	DefaultShutdownTimeout = "10s"
	DefaultEnvFile         = ".env"

	envPrefix = "CORSSERVE_"
)

var (
	ErrInvalidPort = errors.New("invalid port")
	ErrInvalidRoot = errors.New("invalid root directory")
)

// Config is built once at startup and handed to the server.
type Config struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Root            string `json:"root"`
	Debug           bool   `json:"debug"`
	ShutdownTimeout string `json:"shutdown_timeout"`

	// Parsed form of ShutdownTimeout, set by Validate
	shutdownTimeoutDuration time.Duration
}

// Default returns the configuration used when nothing else is supplied.
func Default() *Config {
	return &Config{
		Port:            DefaultPort,
		Root:            DefaultRoot,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Load builds a validated Config from, in increasing precedence: defaults,
// a dotenv file, CORSSERVE_* environment variables, command-line flags and
// an optional positional port. args excludes the program name.
func Load(args []string) (*Config, error) {
	envFile, explicit := envFileFromArgs(args)
	if err := loadEnvFile(envFile, explicit); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.applyFlags(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envFileFromArgs finds -env before the full flag parse so the dotenv layer
// is applied underneath the environment.
func envFileFromArgs(args []string) (string, bool) {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg {
			continue
		}
		if v, ok := strings.CutPrefix(name, "env="); ok {
			return v, true
		}
		if name == "env" && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return DefaultEnvFile, false
}

// loadEnvFile never overrides variables already present in the environment.
// The default file is optional and may belong to whatever project is being
// served, so any problem with it is only a warning. An explicit file must
// load.
func loadEnvFile(path string, explicit bool) error {
	err := readEnvFile(path)
	if err == nil || explicit {
		return err
	}
	if !errors.Is(err, os.ErrNotExist) {
		logger.GetLogger().Warn("Ignoring env file", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
	return nil
}

func readEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(envPrefix + "HOST"); v != "" {
		c.Host = v
	}
	if v := getenv(envPrefix + "PORT"); v != "" {
		port, err := parsePort(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", envPrefix, err)
		}
		c.Port = port
	}
	if v := getenv(envPrefix + "ROOT"); v != "" {
		c.Root = v
	}
	if v := getenv(envPrefix + "DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sDEBUG: %w", envPrefix, err)
		}
		c.Debug = debug
	}
	if v := getenv(envPrefix + "SHUTDOWN_TIMEOUT"); v != "" {
		c.ShutdownTimeout = v
	}
	return nil
}

func (c *Config) applyFlags(args []string) error {
	fs := flag.NewFlagSet("corsserve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: corsserve [flags] [port]\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&c.Host, "host", c.Host, "address to bind (default all interfaces)")
	fs.IntVar(&c.Port, "port", c.Port, "port to listen on")
	fs.StringVar(&c.Root, "dir", c.Root, "directory to serve")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "enable debug logging")
	fs.StringVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "graceful shutdown timeout")
	fs.String("env", "", "dotenv file to load (default .env if present)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	switch fs.NArg() {
	case 0:
	case 1:
		port, err := parsePort(fs.Arg(0))
		if err != nil {
			return err
		}
		c.Port = port
	default:
		return fmt.Errorf("unexpected arguments: %v", fs.Args()[1:])
	}
	return nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	return port, nil
}

// Validate checks the port and root and parses durations. Root is made
// absolute so the served tree does not move if the process changes
// directory later.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}

	root, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}
	c.Root = root

	c.shutdownTimeoutDuration, err = time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("invalid shutdown_timeout duration: %w", err)
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DisplayHost is the host as shown to the operator.
func (c *Config) DisplayHost() string {
	if c.Host == "" {
		return "0.0.0.0"
	}
	return c.Host
}

func (c *Config) GetShutdownTimeout() time.Duration {
	return c.shutdownTimeoutDuration
}
