package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
	AutoMigrate     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig describes the S3-compatible bucket (Backblaze B2 in production).
type StorageConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	Region         string
	UseSSL         bool
	CustomDomain   string
	AllowedHosts   []string
	PresignExpiry  time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// MaxAttempts feeds minio.MaxRetry, which is process-wide; see storage.SetMaxAttempts.
	MaxAttempts int
}

type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	VisionModel     string
	ModerationModel string
	Timeout         time.Duration
	MetadataTimeout time.Duration
	MaxImageBytes   int64
}

type ModerationConfig struct {
	TextEnabled   bool
	VisionEnabled bool
	WordListTTL   time.Duration
	BulkBatchSize int
}

type TranscoderConfig struct {
	FFmpegPath     string
	FFprobePath    string
	ProbeTimeout   time.Duration
	ExtractTimeout time.Duration
	ThumbnailAt    time.Duration
	ThumbnailSize  int
}

type UploadConfig struct {
	SessionTTL      time.Duration
	ExtensionWindow time.Duration
	WeeklyLimit     int
	RatePerMinute   int
	TempDir         string
}

type JobsConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	Concurrency   int
	StatusTTL     time.Duration
	MaxRuntime    time.Duration
	TrashGrace    time.Duration
}

type SecurityConfig struct {
	JWTSecret  string
	StaffRoles []string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	OpenAI           OpenAIConfig
	Moderation       ModerationConfig
	Transcoder       TranscoderConfig
	Upload           UploadConfig
	Jobs             JobsConfig
	Security         SecurityConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("PROMPTFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate catches settings that would otherwise break the upload contract at runtime.
func (c *AppConfig) Validate() error {
	if c.Storage.PresignExpiry <= 0 || c.Storage.PresignExpiry > time.Hour {
		return fmt.Errorf("storage.presignexpiry must be in (0, 1h], got %s", c.Storage.PresignExpiry)
	}
	if c.Storage.MaxAttempts < 1 || c.Storage.MaxAttempts > 2 {
		return fmt.Errorf("storage.maxattempts must be 1 or 2, got %d", c.Storage.MaxAttempts)
	}
	if c.Jobs.StatusTTL < c.Jobs.MaxRuntime {
		return fmt.Errorf("jobs.statusttl (%s) shorter than jobs.maxruntime (%s)", c.Jobs.StatusTTL, c.Jobs.MaxRuntime)
	}
	if c.Jobs.Concurrency < 1 {
		return fmt.Errorf("jobs.concurrency must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "90s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.migrationspath", "migrations")
	v.SetDefault("postgres.automigrate", false)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.endpoint", "https://s3.us-west-002.backblazeb2.com")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.customdomain", "")
	v.SetDefault("storage.allowedhosts", []string{})
	v.SetDefault("storage.bucket", "promptfinder-media")
	v.SetDefault("storage.region", "us-west-002")
	v.SetDefault("storage.usessl", true)
	v.SetDefault("storage.presignexpiry", "1h")
	v.SetDefault("storage.connecttimeout", "5s")
	v.SetDefault("storage.readtimeout", "10s")
	v.SetDefault("storage.maxattempts", 2)

	v.SetDefault("openai.apikey", "")
	v.SetDefault("openai.baseurl", "https://api.openai.com/v1")
	v.SetDefault("openai.visionmodel", "gpt-4o-mini")
	v.SetDefault("openai.moderationmodel", "omni-moderation-latest")
	v.SetDefault("openai.timeout", "30s")
	v.SetDefault("openai.metadatatimeout", "30s")
	v.SetDefault("openai.maximagebytes", 5<<20)

	v.SetDefault("moderation.textenabled", true)
	v.SetDefault("moderation.visionenabled", true)
	v.SetDefault("moderation.wordlistttl", "5m")
	v.SetDefault("moderation.bulkbatchsize", 100)

	v.SetDefault("transcoder.ffmpegpath", "ffmpeg")
	v.SetDefault("transcoder.ffprobepath", "ffprobe")
	v.SetDefault("transcoder.probetimeout", "30s")
	v.SetDefault("transcoder.extracttimeout", "30s")
	v.SetDefault("transcoder.thumbnailat", "1s")
	v.SetDefault("transcoder.thumbnailsize", 600)

	v.SetDefault("upload.sessionttl", "45m")
	v.SetDefault("upload.extensionwindow", "30m")
	v.SetDefault("upload.weeklylimit", 100)
	v.SetDefault("upload.rateperminute", 20)
	v.SetDefault("upload.tempdir", "")

	v.SetDefault("jobs.stream", "promptfinder:jobs")
	v.SetDefault("jobs.group", "promptfinder-workers")
	v.SetDefault("jobs.consumer", "worker-1")
	v.SetDefault("jobs.claiminterval", "1m")
	v.SetDefault("jobs.concurrency", 4)
	v.SetDefault("jobs.statusttl", "2h")
	v.SetDefault("jobs.maxruntime", "10m")
	v.SetDefault("jobs.trashgrace", "720h") // 30 days

	v.SetDefault("allowcorsorigins", []string{})

	v.SetDefault("security.jwtsecret", "")
	v.SetDefault("security.staffroles", []string{"staff", "admin"})
}
