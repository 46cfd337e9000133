package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tikz/localrmsd/align"
	"github.com/tikz/localrmsd/http"
	"github.com/tikz/localrmsd/pdb"
	"github.com/tikz/localrmsd/rmsd"
	"github.com/tikz/localrmsd/uniprot"
)

// EnvPrefix prefixes the environment variables read, e.g. LOCALRMSD_WINDOW.
const EnvPrefix = "LOCALRMSD"

type Config struct {
	Window         int           `mapstructure:"window" json:"window"`
	OnIncompatible string        `mapstructure:"on_incompatible" json:"on_incompatible"`
	Workers        int           `mapstructure:"workers" json:"workers"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout" json:"http_timeout"`
	RCSBURL        string        `mapstructure:"rcsb_url" json:"rcsb_url"`
	SIFTSURL       string        `mapstructure:"sifts_url" json:"sifts_url"`
	UniProtURL     string        `mapstructure:"uniprot_url" json:"uniprot_url"`
	DBPath         string        `mapstructure:"db_path" json:"db_path"`
	PlotDir        string        `mapstructure:"plot_dir" json:"plot_dir"`
	Listen         string        `mapstructure:"listen" json:"listen"`
	LogLevel       string        `mapstructure:"log_level" json:"log_level"`
}

var defaults = map[string]any{
	"window":          rmsd.DefaultWindow,
	"on_incompatible": "ask",
	"workers":         1,
	"http_timeout":    http.DefaultTimeout,
	"rcsb_url":        pdb.DefaultRCSBURL,
	"sifts_url":       pdb.DefaultSIFTSURL,
	"uniprot_url":     uniprot.DefaultBaseURL,
	"db_path":         "localrmsd.db",
	"plot_dir":        "plots",
	"listen":          ":8080",
	"log_level":       "info",
}

// New returns a viper instance with the defaults set and environment
// overrides enabled.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds every flag in fs named after a configuration key, with
// dashes standing for underscores (--log-level sets log_level).
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if _, ok := defaults[key]; !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

// Load reads the optional config file (YAML, JSON or TOML by extension),
// decodes the merged settings and validates them. Priority is flags, then
// environment, then file, then defaults.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Window < 1 {
		errs = append(errs, fmt.Errorf("window must be at least 1, got %d", c.Window))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if _, err := align.ParsePolicy(c.OnIncompatible); err != nil {
		errs = append(errs, fmt.Errorf("on_incompatible: %w", err))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.HTTPTimeout < 0 {
		errs = append(errs, fmt.Errorf("http_timeout must not be negative, got %s", c.HTTPTimeout))
	}
	return errors.Join(errs...)
}

// Policy returns the parsed on_incompatible setting.
func (c *Config) Policy() align.Policy {
	p, _ := align.ParsePolicy(c.OnIncompatible)
	return p
}

// Level returns the parsed log_level setting.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
