package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration. Loaded
// env → default, with a limited YAML file overlay (see Load; see
// DESIGN.md for the Open Question decision against a database-backed
// override layer).
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Security   SecurityConfig   `yaml:"security" envconfig:"SECURITY"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	WebSocket  WebSocketConfig  `yaml:"websocket" envconfig:"WEBSOCKET"`
	Job        JobConfig        `yaml:"job" envconfig:"JOB"`
	Broker     BrokerConfig     `yaml:"broker" envconfig:"BROKER"`
	LogBus     LogBusConfig     `yaml:"logbus" envconfig:"LOGBUS"`
	Pipeline   PipelineConfig   `yaml:"pipeline" envconfig:"PIPELINE"`
	Provider   ProviderConfig   `yaml:"provider" envconfig:"PROVIDER"`
	AllowList  AllowListConfig  `yaml:"allowlist" envconfig:"ALLOWLIST"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig contains security-related configuration.
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	WebhookSecret  string          `yaml:"webhook_secret" envconfig:"WEBHOOK_SECRET"`

	// TenantTokens is a comma-separated "token=user_id:role" list, the
	// pre-provisioned bearer-token table the out-of-scope user
	// authentication/registration collaborator is responsible for issuing;
	// role is "owner" or "admin".
	TenantTokens string `yaml:"tenant_tokens" envconfig:"TENANT_TOKENS"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// WebSocketConfig contains the Live-Log Subscriber's WS tuning.
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
	TokenTTL        time.Duration `yaml:"token_ttl" envconfig:"TOKEN_TTL" default:"5m"`
}

// JobConfig maps spec §6.5's job-level settings.
type JobConfig struct {
	TimeoutSec              int `yaml:"timeout_sec" envconfig:"TIMEOUT_SEC" default:"7200"`
	TerminateGracePeriodSec int `yaml:"terminate_grace_period_s" envconfig:"TERMINATE_GRACE_PERIOD_S" default:"10"`
	ResultMessageMaxLen     int `yaml:"result_message_max_len" envconfig:"RESULT_MESSAGE_MAX_LEN" default:"500"`
	LogSnippetMaxLen        int `yaml:"log_snippet_max_len" envconfig:"LOG_SNIPPET_MAX_LEN" default:"65536"`
	WorkerScriptPath        string `yaml:"worker_script_path" envconfig:"WORKER_SCRIPT_PATH" default:"./subtitleworker"`
}

func (c JobConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c JobConfig) TerminateGracePeriod() time.Duration {
	return time.Duration(c.TerminateGracePeriodSec) * time.Second
}

// BrokerConfig configures the in-process broker queue.
type BrokerConfig struct {
	QueueDepth int `yaml:"queue_depth" envconfig:"QUEUE_DEPTH" default:"256"`
	Workers    int `yaml:"workers" envconfig:"WORKERS" default:"4"`
}

// LogBusConfig configures the per-job Log Bus.
type LogBusConfig struct {
	HistoryCap int `yaml:"history_cap" envconfig:"HISTORY_CAP" default:"1000"`

	// ClosedTopicRetentionSec bounds how long a finalized job's topic keeps
	// its history (including the terminal status envelope) available to a
	// late-joining Subscriber before it is torn down for good (spec §8:
	// "Subscriber connecting after terminal status ⇒ receives history +
	// final status envelope + close 1001").
	ClosedTopicRetentionSec int `yaml:"closed_topic_retention_sec" envconfig:"CLOSED_TOPIC_RETENTION_SEC" default:"300"`
}

// ClosedTopicRetention is the time.Duration form of ClosedTopicRetentionSec.
func (c LogBusConfig) ClosedTopicRetention() time.Duration {
	return time.Duration(c.ClosedTopicRetentionSec) * time.Second
}

// PipelineConfig configures the Selection Pipeline's tool paths.
type PipelineConfig struct {
	MediaProbePath    string  `yaml:"media_probe_path" envconfig:"MEDIA_PROBE_PATH" default:"ffprobe"`
	FFmpegPath        string  `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	SyncToolAPath     string  `yaml:"sync_tool_a_path" envconfig:"SYNC_TOOL_A_PATH" default:"ffsubsync"`
	SyncToolBPath     string  `yaml:"sync_tool_b_path" envconfig:"SYNC_TOOL_B_PATH" default:"alass"`
	OCRToolPath       string  `yaml:"ocr_tool_path" envconfig:"OCR_TOOL_PATH" default:"subocr"`
	PrimaryLanguage   string  `yaml:"primary_language" envconfig:"PRIMARY_LANGUAGE" default:"ro"`
	FallbackLanguage  string  `yaml:"fallback_language" envconfig:"FALLBACK_LANGUAGE" default:"en"`
	MinScoreThreshold float64 `yaml:"min_score_threshold" envconfig:"MIN_SCORE_THRESHOLD" default:"0.55"`
	OffsetThresholdSec float64 `yaml:"offset_threshold_sec" envconfig:"OFFSET_THRESHOLD_SEC" default:"1.0"`
	VideoExtensions   []string `yaml:"video_extensions" envconfig:"VIDEO_EXTENSIONS" default:".mkv,.mp4,.avi"`
}

// ProviderConfig carries subtitle-provider and translation credentials plus
// the per-provider endpoints OnlineFetcher's Provider instances are built
// from (spec §4.5 OnlineFetcher: "for each configured provider").
type ProviderConfig struct {
	OpenSubtitlesBaseURL string `yaml:"opensubtitles_base_url" envconfig:"OPENSUBTITLES_BASE_URL" default:"https://api.opensubtitles.example/v1"`
	OpenSubtitlesAPIKey  string `yaml:"opensubtitles_api_key" envconfig:"OPENSUBTITLES_API_KEY"`

	BrowserProviderEnabled bool   `yaml:"browser_provider_enabled" envconfig:"BROWSER_PROVIDER_ENABLED" default:"false"`
	BrowserProviderName    string `yaml:"browser_provider_name" envconfig:"BROWSER_PROVIDER_NAME" default:"subscene"`
	BrowserSearchURL       string `yaml:"browser_search_url" envconfig:"BROWSER_SEARCH_URL" default:"https://subtitles.example/search?q=%s"`
	BrowserResultSelector  string `yaml:"browser_result_selector" envconfig:"BROWSER_RESULT_SELECTOR" default:".subtitle-result"`
	BrowserHeadless        bool   `yaml:"browser_headless" envconfig:"BROWSER_HEADLESS" default:"true"`
	BrowserTimeoutSec      int    `yaml:"browser_timeout_sec" envconfig:"BROWSER_TIMEOUT_SEC" default:"20"`

	DeepLAPIKey           string `yaml:"deepl_api_key" envconfig:"DEEPL_API_KEY"`
	GoogleTranslateAPIKey string `yaml:"google_translate_api_key" envconfig:"GOOGLE_TRANSLATE_API_KEY"`
	RateLimitPerMinute    int    `yaml:"rate_limit_per_minute" envconfig:"RATE_LIMIT_PER_MINUTE" default:"20"`
}

func (c ProviderConfig) BrowserTimeout() time.Duration {
	return time.Duration(c.BrowserTimeoutSec) * time.Second
}

// AllowListConfig points at the StoragePath allow-list file.
type AllowListConfig struct {
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"configs/storage_paths.yaml"`
}

// Load loads configuration from environment variables, with an optional
// YAML file overlay that fills only Server.Port and Job.TimeoutSec, and
// only where the environment left them zero.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("JOBSVC", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := getConfigFilePath(); configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeConfigs overlays fileConfig under envConfig (env always wins).
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.Job.TimeoutSec == 0 {
		envConfig.Job.TimeoutSec = fileConfig.Job.TimeoutSec
	}
	return envConfig
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output != "both" && c.Logging.Output != "file" && c.Logging.Output != "stdout" {
		c.Logging.Output = "both"
	}
	if c.Job.TerminateGracePeriodSec < 0 {
		return fmt.Errorf("terminate grace period must be non-negative")
	}
	return nil
}

func getConfigFilePath() string {
	locations := []string{"config.yaml", "configs/config.yaml", "../configs/config.yaml"}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns a default configuration, used by tests; Load does not
// call it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit:      RateLimitConfig{Enabled: true, RPS: 100, Burst: 50},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/app.log",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
			TokenTTL:        5 * time.Minute,
		},
		Job: JobConfig{
			TimeoutSec:              7200,
			TerminateGracePeriodSec: 10,
			ResultMessageMaxLen:     500,
			LogSnippetMaxLen:        65536,
			WorkerScriptPath:        "./subtitleworker",
		},
		Broker: BrokerConfig{QueueDepth: 256, Workers: 4},
		LogBus: LogBusConfig{HistoryCap: 1000, ClosedTopicRetentionSec: 300},
		Pipeline: PipelineConfig{
			MediaProbePath:     "ffprobe",
			FFmpegPath:         "ffmpeg",
			SyncToolAPath:      "ffsubsync",
			SyncToolBPath:      "alass",
			OCRToolPath:        "subocr",
			PrimaryLanguage:    "ro",
			FallbackLanguage:   "en",
			MinScoreThreshold:  0.55,
			OffsetThresholdSec: 1.0,
			VideoExtensions:    []string{".mkv", ".mp4", ".avi"},
		},
		Provider: ProviderConfig{
			OpenSubtitlesBaseURL:  "https://api.opensubtitles.example/v1",
			BrowserProviderEnabled: false,
			BrowserProviderName:   "subscene",
			BrowserSearchURL:      "https://subtitles.example/search?q=%s",
			BrowserResultSelector: ".subtitle-result",
			BrowserHeadless:       true,
			BrowserTimeoutSec:     20,
			RateLimitPerMinute:    20,
		},
		AllowList: AllowListConfig{FilePath: "configs/storage_paths.yaml"},
	}
}
