package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string        `mapstructure:"log_level"`
	Paths    PathsConfig   `mapstructure:"paths"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	Server   ServerConfig  `mapstructure:"server"`
}

type PathsConfig struct {
	// RootDir holds the toolchain checkout and its virtual environments.
	RootDir string `mapstructure:"root_dir"`
	// ModelsDir holds per-architecture character model directories.
	ModelsDir string `mapstructure:"models_dir"`
	// CacheDir is the audio cache root shared with the web layer.
	CacheDir string `mapstructure:"cache_dir"`
}

type RuntimeConfig struct {
	// GPUID selects the accelerator passed to the tools ("" or "cpu" = CPU).
	GPUID string `mapstructure:"gpu_id"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Workers    int    `mapstructure:"workers"`
	// MaxBodyBytes caps the /generate request body size.
	MaxBodyBytes int `mapstructure:"max_body_bytes"`
	// RequestTimeout in seconds; 0 disables the per-request deadline, since
	// a full conversion can legitimately run for minutes.
	RequestTimeout  int `mapstructure:"request_timeout"`
	ShutdownTimeout int `mapstructure:"shutdown_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Paths: PathsConfig{
			RootDir:   "data",
			ModelsDir: "data/models",
			CacheDir:  "data/audio_cache",
		},
		Runtime: RuntimeConfig{
			GPUID: "",
		},
		Server: ServerConfig{
			ListenAddr:      ":6577",
			Workers:         2,
			MaxBodyBytes:    1 << 20,
			RequestTimeout:  0,
			ShutdownTimeout: 30,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("paths-root-dir", defaults.Paths.RootDir, "Root directory holding the toolchain and venvs")
	fs.String("paths-models-dir", defaults.Paths.ModelsDir, "Directory holding character model bundles")
	fs.String("paths-cache-dir", defaults.Paths.CacheDir, "Audio cache directory")
	fs.String("runtime-gpu-id", defaults.Runtime.GPUID, "GPU id passed to the tools (empty or 'cpu' for CPU)")
	fs.String("gpu", defaults.Runtime.GPUID, "GPU id (alias for --runtime-gpu-id)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent conversion requests")
	fs.Int("server-max-body-bytes", defaults.Server.MaxBodyBytes, "Max /generate request body size in bytes")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request deadline in seconds (0 = none)")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("SVCBRIDGE")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.gpu_id", "SVCBRIDGE_GPU", "CUDA_DEVICE"); err != nil {
		return Config{}, fmt.Errorf("bind gpu env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("svcbridge")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("paths.root_dir", c.Paths.RootDir)
	v.SetDefault("paths.models_dir", c.Paths.ModelsDir)
	v.SetDefault("paths.cache_dir", c.Paths.CacheDir)
	v.SetDefault("runtime.gpu_id", c.Runtime.GPUID)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_body_bytes", c.Server.MaxBodyBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("paths.root_dir", "paths-root-dir")
	v.RegisterAlias("paths.models_dir", "paths-models-dir")
	v.RegisterAlias("paths.cache_dir", "paths-cache-dir")
	v.RegisterAlias("runtime.gpu_id", "runtime-gpu-id")
	v.RegisterAlias("runtime.gpu_id", "gpu")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.workers", "server-workers")
	v.RegisterAlias("server.max_body_bytes", "server-max-body-bytes")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
	v.RegisterAlias("server.shutdown_timeout", "server-shutdown-timeout")
}
