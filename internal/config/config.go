package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/VoiceClient/internal/adapters/rtc"
	"github.com/dkeye/VoiceClient/internal/adapters/signal"
	"github.com/dkeye/VoiceClient/internal/app/engine"
	"github.com/dkeye/VoiceClient/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "VOICE"

type Config struct {
	Mode string `mapstructure:"mode"`

	URL           string `mapstructure:"url"`
	Token         string `mapstructure:"token"`
	Secure        bool   `mapstructure:"secure"`
	AutoSubscribe bool   `mapstructure:"auto_subscribe"`
	Encoding      string `mapstructure:"encoding"`

	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	JoinTimeout      time.Duration `mapstructure:"join_timeout"`
	ValidateTimeout  time.Duration `mapstructure:"validate_timeout"`
	PublishTimeout   time.Duration `mapstructure:"publish_timeout"`
	ReconnectTimeout time.Duration `mapstructure:"reconnect_timeout"`

	ICEServers   []string `mapstructure:"ice_servers"`
	ICEPortMin   uint16   `mapstructure:"ice_port_min"`
	ICEPortMax   uint16   `mapstructure:"ice_port_max"`
	PionLogLevel string   `mapstructure:"pion_log_level"`

	ControlAddr  string        `mapstructure:"control_addr"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("secure", true)
	v.SetDefault("auto_subscribe", true)
	v.SetDefault("encoding", "json")
	v.SetDefault("connect_timeout", "10s")
	v.SetDefault("join_timeout", "10s")
	v.SetDefault("validate_timeout", "5s")
	v.SetDefault("publish_timeout", "10s")
	v.SetDefault("reconnect_timeout", "60s")
	v.SetDefault("ice_servers", []string{})
	v.SetDefault("pion_log_level", "warn")
	v.SetDefault("control_addr", "127.0.0.1:7880")
	v.SetDefault("rate_limit", 20)
	v.SetDefault("rate_interval", "10s")
}

// Flags returns the command line flags Load understands. Flags left unset do
// not shadow the file or the environment.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("voice-client", pflag.ContinueOnError)
	fs.String("mode", "release", "debug, test or release")
	fs.String("url", "", "relay url, ws:// or wss:// (scheme optional)")
	fs.String("token", "", "access token")
	fs.Bool("secure", true, "use wss:// for urls without a scheme")
	fs.Bool("auto-subscribe", true, "subscribe to remote tracks automatically")
	fs.String("encoding", "json", "signal encoding: json or protobuf")
	fs.String("control-addr", "127.0.0.1:7880", "listen address of the control API")
	fs.String("pion-log-level", "warn", "log level of the media stack")
	return fs
}

// Load reads config/config.<CONFIG_ENV>.yaml, VOICE_* variables and the given
// command line, later sources winning.
func Load(args []string) (*Config, error) {
	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	return load(fs)
}

func load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Str("encoding", cfg.Encoding).
		Str("control_addr", cfg.ControlAddr).
		Msg("config")
	return &cfg, nil
}

// Validate reports settings the client cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if c.Token == "" {
		errs = append(errs, errors.New("token is required"))
	}
	if _, err := protocol.ParseEncoding(c.Encoding); err != nil {
		errs = append(errs, err)
	}
	if c.ICEPortMin > c.ICEPortMax {
		errs = append(errs, fmt.Errorf("ice port range %d-%d is empty", c.ICEPortMin, c.ICEPortMax))
	}
	return errors.Join(errs...)
}

func (c *Config) SignalOptions() (signal.Options, error) {
	enc, err := protocol.ParseEncoding(c.Encoding)
	if err != nil {
		return signal.Options{}, err
	}
	opts := signal.DefaultOptions()
	opts.Encoding = enc
	if c.ConnectTimeout > 0 {
		opts.ConnectTimeout = c.ConnectTimeout
	}
	if c.JoinTimeout > 0 {
		opts.JoinTimeout = c.JoinTimeout
	}
	if c.ValidateTimeout > 0 {
		opts.ValidateTimeout = c.ValidateTimeout
	}
	return opts, nil
}

func (c *Config) EngineOptions() engine.Options {
	opts := engine.DefaultOptions()
	if len(c.ICEServers) > 0 {
		opts.ICEServers = []webrtc.ICEServer{{URLs: c.ICEServers}}
	}
	if c.PublishTimeout > 0 {
		opts.PublishTimeout = c.PublishTimeout
	}
	if c.ReconnectTimeout > 0 {
		opts.ReconnectTimeout = c.ReconnectTimeout
	}
	return opts
}

func (c *Config) FactoryOptions() rtc.FactoryOptions {
	level, err := zerolog.ParseLevel(c.PionLogLevel)
	if err != nil || c.PionLogLevel == "" {
		level = zerolog.WarnLevel
	}
	return rtc.FactoryOptions{
		ICEPortMin: c.ICEPortMin,
		ICEPortMax: c.ICEPortMax,
		LogLevel:   level,
	}
}

func (c *Config) JoinOptions() engine.JoinOptions {
	return engine.JoinOptions{Secure: c.Secure, AutoSubscribe: c.AutoSubscribe}
}
