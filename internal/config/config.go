// Package config loads platform configuration from defaults, an optional
// YAML file and IAM_-prefixed environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"iam-platform/pkg/database"
)

// EnvPrefix prefixes every environment override, e.g. IAM_DATABASE_HOST
const EnvPrefix = "IAM"

// Config is the root configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig selects postgres (host/port/...) or sqlite (Path)
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// IngestConfig locates the scenario result files
type IngestConfig struct {
	Source    string   `mapstructure:"source"` // "local" or "s3"
	DataDir   string   `mapstructure:"data_dir"`
	FileTypes []string `mapstructure:"file_types"`
	S3        S3Config `mapstructure:"s3"`
	Workers   int      `mapstructure:"workers"`
	BatchSize int      `mapstructure:"batch_size"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// AnalysisConfig drives the comparison stages
type AnalysisConfig struct {
	BaselineScenario string      `mapstructure:"baseline_scenario"`
	SharePairs       []SharePair `mapstructure:"share_pairs"`
	// UncertaintyFile is a wide Variable/Scenario/Percentile table, read
	// from the ingest source
	UncertaintyFile string `mapstructure:"uncertainty_file"`
	// DisplayFile holds the case-sensitive display tables
	DisplayFile string `mapstructure:"display_file"`
}

// SharePair names a numerator variable and its denominator
type SharePair struct {
	Numerator   string `mapstructure:"numerator" json:"numerator"`
	Denominator string `mapstructure:"denominator" json:"denominator"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "iam_platform")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "iam_platform.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", time.Minute)

	v.SetDefault("logging.level", "info")

	v.SetDefault("ingest.source", "local")
	v.SetDefault("ingest.data_dir", "./data")
	v.SetDefault("ingest.file_types", []string{"csv", "xlsx"})
	v.SetDefault("ingest.s3.bucket", "")
	v.SetDefault("ingest.s3.prefix", "")
	v.SetDefault("ingest.s3.region", "us-east-1")
	v.SetDefault("ingest.s3.endpoint", "")
	v.SetDefault("ingest.s3.path_style", false)
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.batch_size", 1000)

	v.SetDefault("analysis.baseline_scenario", "NDC_EI_DERP2_HD")
	v.SetDefault("analysis.share_pairs", []map[string]string{
		{"numerator": "Final Energy|Electricity", "denominator": "Final Energy"},
	})
	v.SetDefault("analysis.uncertainty_file", "")
	v.SetDefault("analysis.display_file", "")
}

// LoadConfig reads the file named by IAM_CONFIG, or ./config.yaml when
// present, then applies environment overrides.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv(EnvPrefix + "_CONFIG"))
}

// Load reads configuration from cfgFile. An empty cfgFile searches the
// working directory for an optional config.yaml.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Ingest.FileTypes = splitList(c.Ingest.FileTypes)
	return &c, nil
}

// splitList accepts "csv,xlsx" from the environment as well as YAML lists
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate checks the settings every binary depends on
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Ingest.Source {
	case "local":
		if c.Ingest.DataDir == "" {
			return fmt.Errorf("ingest data_dir is required for local source")
		}
	case "s3":
		if c.Ingest.S3.Bucket == "" {
			return fmt.Errorf("ingest s3 bucket is required for s3 source")
		}
	default:
		return fmt.Errorf("unknown ingest source %q", c.Ingest.Source)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("invalid ingest batch_size: %d", c.Ingest.BatchSize)
	}

	if strings.TrimSpace(c.Analysis.BaselineScenario) == "" {
		return fmt.Errorf("analysis baseline_scenario is required")
	}
	for i, p := range c.Analysis.SharePairs {
		if p.Numerator == "" || p.Denominator == "" {
			return fmt.Errorf("analysis share_pairs[%d] needs numerator and denominator", i)
		}
	}
	return nil
}

// Options converts the database section for pkg/database. monitor is the
// pool metrics period; zero disables it.
func (d DatabaseConfig) Options(monitor time.Duration) *database.Config {
	return &database.Config{
		Driver:          d.Driver,
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		SSLMode:         d.SSLMode,
		Path:            d.Path,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
		MonitorInterval: monitor,
	}
}
