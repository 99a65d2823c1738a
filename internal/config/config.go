// Package config loads settings from defaults, an optional sitecontent.yaml
// and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"sitecontent/internal/blob"
	"sitecontent/internal/core"
)

// Config is the full process configuration.
type Config struct {
	Port    int           `mapstructure:"port"`
	Host    string        `mapstructure:"host"`
	Env     string        `mapstructure:"node_env"`
	Storage StorageConfig `mapstructure:"storage"`
	Blob    BlobConfig    `mapstructure:"blob"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Assets  AssetsConfig  `mapstructure:"assets"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Log     LogConfig     `mapstructure:"log"`
	Sync    SyncConfig    `mapstructure:"sync"`
}

// StorageConfig selects the content store backend.
type StorageConfig struct {
	Driver      string   `mapstructure:"driver"`
	JSONPath    string   `mapstructure:"json_path"`
	SQLitePath  string   `mapstructure:"sqlite_path"`
	PostgresDSN string   `mapstructure:"postgres_dsn"`
	Mirrors     []string `mapstructure:"mirrors"`
	Watch       bool     `mapstructure:"watch"`
}

// BlobConfig selects the blob backend used for uploads and exports.
type BlobConfig struct {
	Driver string   `mapstructure:"driver"`
	FSRoot string   `mapstructure:"fs_root"`
	S3     S3Config `mapstructure:"s3"`
}

// S3Config mirrors the S3 backend parameters.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PathStyle       bool   `mapstructure:"path_style"`
}

// UploadConfig bounds uploads. MaxSize is humanized, e.g. "10MB".
type UploadConfig struct {
	MaxSize      string `mapstructure:"max_size"`
	MaxSizeBytes int64  `mapstructure:"-"`
}

// AssetsConfig lists the directories probed by the asset resolver.
type AssetsConfig struct {
	Dirs      []string `mapstructure:"dirs"`
	CacheSize int      `mapstructure:"cache_size"`
}

// AuthConfig toggles HTTP Basic admin auth.
type AuthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text|json; json by default in production
}

// SyncConfig sizes the export queue.
type SyncConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

// EnvPrefix prefixes every environment variable except PORT, HOST and NODE_ENV.
const EnvPrefix = "SITECONTENT"

func defaults(v *viper.Viper) {
	v.SetDefault("port", 3001)
	v.SetDefault("host", "")
	v.SetDefault("node_env", "development")
	v.SetDefault("storage.driver", string(core.StorageJSONFile))
	v.SetDefault("storage.json_path", "")
	v.SetDefault("storage.sqlite_path", "")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.mirrors", []string{})
	v.SetDefault("storage.watch", true)
	v.SetDefault("blob.driver", string(blob.DriverFilesystem))
	v.SetDefault("blob.fs_root", "")
	v.SetDefault("blob.s3.region", "")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.prefix", "")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("upload.max_size", "10MB")
	v.SetDefault("assets.dirs", []string{})
	v.SetDefault("assets.cache_size", 512)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")
	v.SetDefault("sync.queue_size", 16)
}

// Load reads configuration. file may be empty to look for ./sitecontent.yaml.
func Load(file string) (Config, error) {
	v := viper.New()
	defaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("sitecontent")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{"port": "PORT", "host": "HOST", "node_env": "NODE_ENV"} {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || file != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Production reports whether NODE_ENV is production.
func (c Config) Production() bool { return strings.EqualFold(c.Env, "production") }

// Development reports whether NODE_ENV is development, the only mode that
// enables gin's debug output.
func (c Config) Development() bool { return strings.EqualFold(c.Env, "development") }

// finish fills derived values. In production, unset data and upload roots
// move to the temp directory, which is the only writable location on
// serverless hosts.
func (c *Config) finish() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	base := "."
	if c.Production() {
		base = filepath.Join(os.TempDir(), "sitecontent")
	}
	if c.Storage.JSONPath == "" {
		c.Storage.JSONPath = filepath.Join(base, "data", "database.json")
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(base, "data", "sitecontent.db")
	}
	if c.Blob.FSRoot == "" {
		c.Blob.FSRoot = filepath.Join(base, "storage")
	}
	if len(c.Assets.Dirs) == 0 {
		c.Assets.Dirs = []string{"images", "uploads", filepath.Join("public", "images", "uploads")}
		if c.Production() {
			c.Assets.Dirs = append(c.Assets.Dirs, filepath.Join(base, "uploads"))
		}
	}
	size, err := humanize.ParseBytes(c.Upload.MaxSize)
	if err != nil {
		return fmt.Errorf("invalid upload.max_size %q: %w", c.Upload.MaxSize, err)
	}
	c.Upload.MaxSizeBytes = int64(size)
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string { return ":" + strconv.Itoa(c.Port) }

// BaseURL is the public base URL used for absolute upload URLs. HOST may be
// a full URL or a bare host name.
func (c Config) BaseURL() string {
	host := strings.TrimRight(c.Host, "/")
	switch {
	case host == "":
		return "http://localhost:" + strconv.Itoa(c.Port)
	case strings.HasPrefix(host, "http://"), strings.HasPrefix(host, "https://"):
		return host
	case c.Production():
		return "https://" + host
	default:
		return "http://" + host + ":" + strconv.Itoa(c.Port)
	}
}

// StorageOptions converts to the core storage configuration.
func (c Config) StorageOptions() core.StorageConfig {
	return core.StorageConfig{
		Driver:      c.Storage.Driver,
		JSONPath:    c.Storage.JSONPath,
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobOptions converts to the blob factory configuration.
func (c Config) BlobOptions() blob.Config {
	s3 := c.Blob.S3
	return blob.Config{
		Driver: c.Blob.Driver,
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Region:          s3.Region,
			Bucket:          s3.Bucket,
			Prefix:          s3.Prefix,
			Endpoint:        s3.Endpoint,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
			PathStyle:       s3.PathStyle,
		},
	}
}

// Logger builds the process logger: text locally, JSON in production unless
// log.format says otherwise.
func (c Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	format := c.Log.Format
	if format == "" && c.Production() {
		format = "json"
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
