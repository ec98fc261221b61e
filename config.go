package hive

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds database, storage and encoding settings
type Config struct {
	BaseApiUrl          string   `json:"base_api_url" yaml:"base_api_url"`
	ListenAddr          string   `json:"listen_addr" yaml:"listen_addr"`
	DbHost              string   `json:"db_host" yaml:"db_host"`
	DbPort              int      `json:"db_port" yaml:"db_port"`
	DbUser              string   `json:"db_user" yaml:"db_user"`
	DbPassword          string   `json:"db_password" yaml:"db_password"`
	DbName              string   `json:"db_name" yaml:"db_name"`
	DbSchema            string   `json:"db_schema" yaml:"db_schema"`
	SSLMode             string   `json:"ssl_mode" yaml:"ssl_mode"`
	LogLevel            string   `json:"log_level" yaml:"log_level"`
	LogFormat           string   `json:"log_format" yaml:"log_format"`
	HiveVerbose         bool     `json:"hive_verbose" yaml:"hive_verbose"`
	HiveDataDir         string   `json:"hive_data_dir" yaml:"hive_data_dir"`
	HiveQuality         *int     `json:"hive_quality" yaml:"hive_quality"`
	HiveFormat          string   `json:"hive_format" yaml:"hive_format"`
	HiveResampler       string   `json:"hive_resampler" yaml:"hive_resampler"`
	HiveMaxUploadMB     int      `json:"hive_max_upload_mb" yaml:"hive_max_upload_mb"`
	HiveMaxPixels       int64    `json:"hive_max_pixels" yaml:"hive_max_pixels"`
	TrustUploaderHeader bool     `json:"trust_uploader_header" yaml:"trust_uploader_header"`
	KafkaBrokers        []string `json:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic          string   `json:"kafka_topic" yaml:"kafka_topic"`
}

// LoadConfig reads a JSON config file, or YAML when the name ends in
// .yaml or .yml, and fills in defaults.
func LoadConfig(configFilePath string) (Config, error) {
	var config Config
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		return config, err
	}

	switch strings.ToLower(filepath.Ext(configFilePath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return config, fmt.Errorf("failed to parse %s: %w", configFilePath, err)
	}

	config.applyDefaults()
	return config, config.Validate()
}

func (config *Config) applyDefaults() {
	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}
	if config.DbPort == 0 {
		config.DbPort = 5432
	}
	if config.DbSchema == "" {
		config.DbSchema = "hive"
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.HiveQuality == nil {
		q := DefaultQuality
		config.HiveQuality = &q
	}
	if config.HiveFormat == "" {
		config.HiveFormat = "jpeg"
	}
	if config.HiveResampler == "" {
		config.HiveResampler = "lanczos"
	}
	if config.HiveMaxUploadMB == 0 {
		config.HiveMaxUploadMB = 25
	}
	if config.HiveMaxPixels == 0 {
		config.HiveMaxPixels = DefaultMaxPixels
	}
	if config.KafkaTopic == "" {
		config.KafkaTopic = "hive.images"
	}
}

func (config Config) Validate() error {
	var errs []error
	if config.HiveDataDir == "" {
		errs = append(errs, errors.New("hive_data_dir is required"))
	}
	if _, err := NewEncoder(config.HiveFormat, config.Quality()); err != nil {
		errs = append(errs, err)
	}
	if _, err := ResamplerByName(config.HiveResampler); err != nil {
		errs = append(errs, err)
	}
	if config.HiveMaxUploadMB < 0 {
		errs = append(errs, errors.New("hive_max_upload_mb must not be negative"))
	}
	if config.HiveMaxPixels < 0 {
		errs = append(errs, errors.New("hive_max_pixels must not be negative"))
	}
	return errors.Join(errs...)
}

func (config Config) Quality() int {
	if config.HiveQuality == nil {
		return DefaultQuality
	}
	return *config.HiveQuality
}

func (config Config) Encoder() (Encoder, error) {
	return NewEncoder(config.HiveFormat, config.Quality())
}

// DSN is the PostgreSQL connection URL. Credentials are escaped.
func (config Config) DSN() string {
	return config.dsn(nil)
}

// MigrationDSN is DSN with search_path set to the configured schema.
func (config Config) MigrationDSN() string {
	return config.dsn(url.Values{"search_path": {config.DbSchema}})
}

func (config Config) dsn(params url.Values) string {
	query := url.Values{"sslmode": {config.SSLMode}}
	for k, v := range params {
		query[k] = v
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(config.DbUser, config.DbPassword),
		Host:     net.JoinHostPort(config.DbHost, strconv.Itoa(config.DbPort)),
		Path:     "/" + config.DbName,
		RawQuery: query.Encode(),
	}
	return u.String()
}

func (config Config) Print(log *slog.Logger) {
	log.Info("hive config",
		"base_api_url", config.BaseApiUrl,
		"listen_addr", config.ListenAddr,
		"db_host", config.DbHost,
		"db_port", config.DbPort,
		"db_user", config.DbUser,
		"db_name", config.DbName,
		"db_schema", config.DbSchema,
		"ssl_mode", config.SSLMode,
		"hive_verbose", config.HiveVerbose,
		"hive_data_dir", config.HiveDataDir,
		"hive_quality", config.Quality(),
		"hive_format", config.HiveFormat,
		"hive_resampler", config.HiveResampler,
		"hive_max_upload_mb", config.HiveMaxUploadMB,
		"hive_max_pixels", config.HiveMaxPixels,
		"kafka_brokers", config.KafkaBrokers,
		"kafka_topic", config.KafkaTopic,
	)
}
