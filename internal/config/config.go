// Package config holds the proxy's runtime configuration, bound from CLI
// flags via viper so every setting is also overridable by environment
// variable (BALANCER_ prefix). No config file is read.
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default values, all taken from spec.md §4 and §7.
const (
	DefaultListenAddr        = "0.0.0.0:8080"
	DefaultUDPAddr           = "0.0.0.0:4000"
	DefaultQueueTimeout      = 30 * time.Second
	DefaultPollInterval      = 200 * time.Millisecond
	DefaultCleanupInterval   = 30 * time.Second
	DefaultInactivityTimeout = 35 * time.Second
	DefaultLogLevel          = "info"
	DefaultConnectTimeout    = 10 * time.Second
	DefaultDispatchTimeout   = 300 * time.Second
)

// Config is the fully resolved server configuration.
type Config struct {
	ListenAddr        string
	UDPAddr           string
	QueueTimeout      time.Duration
	PollInterval      time.Duration
	CleanupInterval   time.Duration
	InactivityTimeout time.Duration
	LogLevel          string
	ConnectTimeout    time.Duration
	DispatchTimeout   time.Duration
}

// BindFlags registers the serve command's flags and binds each to viper
// under the "balancer" env prefix, mirroring the teacher's
// viper.BindPFlag-per-flag convention.
func BindFlags(flags *pflag.FlagSet) error {
	flags.String("listen-addr", DefaultListenAddr, "address the HTTP proxy listens on")
	flags.String("udp-addr", DefaultUDPAddr, "address the UDP discovery listener binds to")
	flags.Duration("queue-timeout", DefaultQueueTimeout, "max time a request waits in the admission queue")
	flags.Duration("poll-interval", DefaultPollInterval, "interval between admission queue polls")
	flags.Duration("cleanup-interval", DefaultCleanupInterval, "interval between janitor sweeps")
	flags.Duration("inactivity-timeout", DefaultInactivityTimeout, "staleness threshold before a node is evicted")
	flags.String("log-level", DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.Duration("connect-timeout", DefaultConnectTimeout, "dial timeout for outbound backend calls")
	flags.Duration("dispatch-timeout", DefaultDispatchTimeout, "total timeout for an outbound backend call")

	for _, name := range []string{
		"listen-addr", "udp-addr", "queue-timeout", "poll-interval",
		"cleanup-interval", "inactivity-timeout", "log-level",
		"connect-timeout", "dispatch-timeout",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			return err
		}
	}

	viper.SetEnvPrefix("balancer")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	return nil
}

// Load reads the bound viper values into a Config.
func Load() Config {
	return Config{
		ListenAddr:        viper.GetString("listen-addr"),
		UDPAddr:           viper.GetString("udp-addr"),
		QueueTimeout:      viper.GetDuration("queue-timeout"),
		PollInterval:      viper.GetDuration("poll-interval"),
		CleanupInterval:   viper.GetDuration("cleanup-interval"),
		InactivityTimeout: viper.GetDuration("inactivity-timeout"),
		LogLevel:          viper.GetString("log-level"),
		ConnectTimeout:    viper.GetDuration("connect-timeout"),
		DispatchTimeout:   viper.GetDuration("dispatch-timeout"),
	}
}
