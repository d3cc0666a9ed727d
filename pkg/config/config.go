// Package config loads rigctl settings from the first config.yaml found in
// /etc/rigctl/ or the user directory. RIGCTL_* environment variables
// override the file and flags bound by the caller override both.
package config

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
)

const (
	KeyLogLevel       = "log_level"
	KeySSHConfig      = "ssh_config"
	KeySSHOptions     = "ssh_options"
	KeyParallel       = "parallel"
	KeyDryRun         = "dry_run"
	KeyConnectTimeout = "connect_timeout"

	envPrefix = "rigctl"

	defaultLogLevel       = "info"
	defaultSSHConfig      = "~/.ssh/config"
	defaultParallel       = 4
	defaultConnectTimeout = 10 * time.Second
)

type Config struct {
	LogLevel       string
	SSHConfig      string
	SSHOptions     map[string]string
	Parallel       int
	DryRun         bool
	ConnectTimeout time.Duration
}

// NewViper returns a viper instance set up to find the config file and
// environment overrides. userDir is searched after /etc/rigctl/.
func NewViper(userDir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/rigctl/")
	if userDir != "" {
		v.AddConfigPath(userDir)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyLogLevel, defaultLogLevel)
	v.SetDefault(KeySSHConfig, defaultSSHConfig)
	v.SetDefault(KeyParallel, defaultParallel)
	v.SetDefault(KeyDryRun, false)
	v.SetDefault(KeyConnectTimeout, defaultConnectTimeout)
	return v
}

// Load reads the config file if there is one and validates the result.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !breverrors.As(err, &notFound) {
			return Config{}, breverrors.WrapAndTrace(err)
		}
	}

	cfg := Config{
		LogLevel:       strings.TrimSpace(v.GetString(KeyLogLevel)),
		SSHConfig:      strings.TrimSpace(v.GetString(KeySSHConfig)),
		SSHOptions:     v.GetStringMapString(KeySSHOptions),
		Parallel:       v.GetInt(KeyParallel),
		DryRun:         v.GetBool(KeyDryRun),
		ConnectTimeout: v.GetDuration(KeyConnectTimeout),
	}

	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, breverrors.NewValidationError(fmt.Sprintf("%s: %v", KeyLogLevel, err))
	}
	if cfg.Parallel <= 0 {
		return Config{}, breverrors.NewValidationError(fmt.Sprintf("%s must be positive, got %d", KeyParallel, cfg.Parallel))
	}
	if cfg.ConnectTimeout < 0 {
		return Config{}, breverrors.NewValidationError(fmt.Sprintf("%s must not be negative", KeyConnectTimeout))
	}
	return cfg, nil
}

// TargetOptions are the ssh options applied to every host. viper lowercases
// map keys, so the common ones are restored to their OpenSSH spelling.
func (c Config) TargetOptions() map[string]string {
	options := map[string]string{}
	for k, v := range c.SSHOptions {
		if canonical, ok := sshOptionNames[strings.ToLower(k)]; ok {
			k = canonical
		}
		options[k] = v
	}
	if c.ConnectTimeout > 0 {
		if _, ok := options["ConnectTimeout"]; !ok {
			options["ConnectTimeout"] = strconv.Itoa(int(c.ConnectTimeout.Seconds()))
		}
	}
	return options
}

var sshOptionNames = map[string]string{
	"connecttimeout":        "ConnectTimeout",
	"stricthostkeychecking": "StrictHostKeyChecking",
	"userknownhostsfile":    "UserKnownHostsFile",
	"proxyjump":             "ProxyJump",
	"serveraliveinterval":   "ServerAliveInterval",
	"controlmaster":         "ControlMaster",
	"controlpath":           "ControlPath",
	"controlpersist":        "ControlPersist",
}

// NewLogger builds a console logger at level writing to w.
func NewLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(w),
		lvl,
	)
	return zap.New(core), nil
}
