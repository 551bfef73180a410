package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"reportjudge/internal/sampling"
	"reportjudge/internal/section"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	DefaultHeadingPattern   = section.DefaultHeadingPattern
	DefaultRepeatNums       = 30
	DefaultMaxAttempts      = 3
	DefaultRetryBackoff     = 2 * time.Second
	DefaultMinSectionChars  = sampling.DefaultMinChars
	DefaultParagraphSkip    = 3
	DefaultPairConcurrency  = 4
	DefaultCheckpointFile   = "checkpoint.json"
	DefaultRedisKeyPrefix   = "reportjudge"
	DefaultLLMMaxTokens     = 4096
	DefaultFirecrawlBaseURL = "https://api.firecrawl.dev"
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
)

type Config struct {
	LLMProvider    string  `yaml:"llm_provider"`
	LLMModel       string  `yaml:"llm_model"`
	LLMMaxTokens   int     `yaml:"llm_max_tokens"`
	LLMTemperature float64 `yaml:"llm_temperature"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`

	OracleMaxAttempts    int `yaml:"oracle_max_attempts"`
	OracleRetryBackoffMS int `yaml:"oracle_retry_backoff_ms"`

	RepeatNums             int    `yaml:"repeat_nums"`
	PairConcurrency        int    `yaml:"pair_concurrency"`
	MinSectionChars        int    `yaml:"min_section_chars"`
	ParagraphSkipThreshold int    `yaml:"paragraph_skip_threshold"`
	HeadingPattern         string `yaml:"heading_pattern"`

	OutputDir         string `yaml:"output_dir"`
	CheckpointBackend string `yaml:"checkpoint_backend"`
	CheckpointPath    string `yaml:"checkpoint_path"`
	RedisAddr         string `yaml:"redis_addr"`
	RedisPassword     string `yaml:"redis_password"`
	RedisDB           int    `yaml:"redis_db"`
	RedisKeyPrefix    string `yaml:"redis_key_prefix"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	ScrapeProvider   string `yaml:"scrape_provider"`
	JinaAPIKey       string `yaml:"jina_api_key"`
	FirecrawlAPIKey  string `yaml:"firecrawl_api_key"`
	FirecrawlBaseURL string `yaml:"firecrawl_base_url"`

	SlackBotToken   string `yaml:"slack_bot_token"`
	ReportChannelID string `yaml:"report_channel_id"`

	Schedule string `yaml:"schedule"`
	Timezone string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// Load reads the YAML file at path (falling back to CONFIG_PATH, then ./config.yaml),
// applies environment overrides and defaults, and validates the result.
// A missing file is not an error.
func Load(path string) (Config, error) {
	// Zero is a meaningful value for these two, so their defaults are seeded before
	// the file and the environment are read.
	cfg := Config{
		MinSectionChars:        DefaultMinSectionChars,
		ParagraphSkipThreshold: DefaultParagraphSkip,
	}

	configPath := path
	if configPath == "" {
		configPath = "config.yaml"
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			configPath = envPath
		}
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("reading %s: %w", configPath, err)
	}

	var errs []error
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	errs = append(errs, envOverrideInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS"))
	errs = append(errs, envOverrideFloat(&cfg.LLMTemperature, "LLM_TEMPERATURE"))
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.OpenAIBaseURL, "OPENAI_API_BASE")
	envOverride(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	errs = append(errs, envOverrideInt(&cfg.OracleMaxAttempts, "ORACLE_MAX_ATTEMPTS"))
	errs = append(errs, envOverrideInt(&cfg.OracleRetryBackoffMS, "ORACLE_RETRY_BACKOFF_MS"))
	errs = append(errs, envOverrideInt(&cfg.RepeatNums, "REPEAT_NUMS"))
	errs = append(errs, envOverrideInt(&cfg.PairConcurrency, "PAIR_CONCURRENCY"))
	errs = append(errs, envOverrideInt(&cfg.MinSectionChars, "MIN_SECTION_CHARS"))
	errs = append(errs, envOverrideInt(&cfg.ParagraphSkipThreshold, "PARAGRAPH_SKIP_THRESHOLD"))
	envOverride(&cfg.HeadingPattern, "HEADING_PATTERN")
	envOverride(&cfg.OutputDir, "OUTPUT_DIR")
	envOverride(&cfg.CheckpointBackend, "CHECKPOINT_BACKEND")
	envOverride(&cfg.CheckpointPath, "CHECKPOINT_PATH")
	envOverride(&cfg.RedisAddr, "REDIS_ADDR")
	envOverride(&cfg.RedisPassword, "REDIS_PASSWORD")
	errs = append(errs, envOverrideInt(&cfg.RedisDB, "REDIS_DB"))
	envOverride(&cfg.RedisKeyPrefix, "REDIS_KEY_PREFIX")
	errs = append(errs, envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"))
	envOverride(&cfg.ScrapeProvider, "SCRAPE_PROVIDER")
	envOverride(&cfg.JinaAPIKey, "JINA_API_KEY")
	envOverride(&cfg.FirecrawlAPIKey, "FIRECRAWL_KEY")
	envOverride(&cfg.FirecrawlBaseURL, "FIRECRAWL_BASE_URL")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverrideAllowEmpty(&cfg.ReportChannelID, "REPORT_CHANNEL_ID")
	envOverrideAllowEmpty(&cfg.Schedule, "SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LLMProvider == "" {
		c.LLMProvider = "anthropic"
	}
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	if c.LLMMaxTokens == 0 {
		c.LLMMaxTokens = DefaultLLMMaxTokens
	}
	if c.OpenAIBaseURL == "" {
		c.OpenAIBaseURL = DefaultOpenAIBaseURL
	}
	if c.OracleMaxAttempts == 0 {
		c.OracleMaxAttempts = DefaultMaxAttempts
	}
	if c.OracleRetryBackoffMS == 0 {
		c.OracleRetryBackoffMS = int(DefaultRetryBackoff / time.Millisecond)
	}
	if c.RepeatNums == 0 {
		c.RepeatNums = DefaultRepeatNums
	}
	if c.PairConcurrency == 0 {
		c.PairConcurrency = DefaultPairConcurrency
	}
	if c.HeadingPattern == "" {
		c.HeadingPattern = DefaultHeadingPattern
	}
	if c.OutputDir == "" {
		c.OutputDir = "./results"
	}
	if c.CheckpointBackend == "" {
		c.CheckpointBackend = "file"
	}
	c.CheckpointBackend = strings.ToLower(strings.TrimSpace(c.CheckpointBackend))
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.RedisKeyPrefix == "" {
		c.RedisKeyPrefix = DefaultRedisKeyPrefix
	}
	if c.ExternalHTTPTimeoutSeconds == 0 {
		c.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if c.ScrapeProvider == "" {
		c.ScrapeProvider = "jina"
	}
	if c.FirecrawlBaseURL == "" {
		c.FirecrawlBaseURL = DefaultFirecrawlBaseURL
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case "anthropic", "openai", "gemini":
	default:
		return fmt.Errorf("llm_provider must be 'anthropic', 'openai' or 'gemini', got '%s'", c.LLMProvider)
	}
	switch c.CheckpointBackend {
	case "file", "sqlite", "redis":
	default:
		return fmt.Errorf("checkpoint_backend must be 'file', 'sqlite' or 'redis', got '%s'", c.CheckpointBackend)
	}
	switch c.ScrapeProvider {
	case "jina", "firecrawl":
	default:
		return fmt.Errorf("scrape_provider must be 'jina' or 'firecrawl', got '%s'", c.ScrapeProvider)
	}

	if c.OracleMaxAttempts < 1 {
		return fmt.Errorf("invalid oracle_max_attempts '%d': must be >= 1", c.OracleMaxAttempts)
	}
	if c.OracleRetryBackoffMS < 0 {
		return fmt.Errorf("invalid oracle_retry_backoff_ms '%d': must be >= 0", c.OracleRetryBackoffMS)
	}
	if c.RepeatNums < 1 {
		return fmt.Errorf("invalid repeat_nums '%d': must be >= 1", c.RepeatNums)
	}
	if c.PairConcurrency < 1 {
		return fmt.Errorf("invalid pair_concurrency '%d': must be >= 1", c.PairConcurrency)
	}
	if c.MinSectionChars < 0 {
		return fmt.Errorf("invalid min_section_chars '%d': must be >= 0", c.MinSectionChars)
	}
	if c.ParagraphSkipThreshold < 0 {
		return fmt.Errorf("invalid paragraph_skip_threshold '%d': must be >= 0", c.ParagraphSkipThreshold)
	}
	if c.LLMMaxTokens < 1 {
		return fmt.Errorf("invalid llm_max_tokens '%d': must be >= 1", c.LLMMaxTokens)
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("invalid llm_temperature '%f': must be between 0 and 2", c.LLMTemperature)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if _, err := regexp.Compile("(?m)" + c.HeadingPattern); err != nil {
		return fmt.Errorf("invalid heading_pattern '%s': %w", c.HeadingPattern, err)
	}

	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
		c.Location = loc
	}

	if c.Schedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule '%s': %w", c.Schedule, err)
		}
	}
	return nil
}

// ValidateLLM checks that the credentials for the selected provider are present.
// Only commands that talk to the oracle need them.
func (c Config) ValidateLLM() error {
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("gemini_api_key is required when llm_provider=gemini")
		}
	}
	return nil
}

func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.OracleRetryBackoffMS) * time.Millisecond
}

// ResolvedCheckpointPath returns checkpoint_path, defaulting into the output directory.
func (c Config) ResolvedCheckpointPath() string {
	if c.CheckpointPath != "" {
		return c.CheckpointPath
	}
	name := DefaultCheckpointFile
	if c.CheckpointBackend == "sqlite" {
		name = "checkpoint.db"
	}
	return filepath.Join(c.OutputDir, name)
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.ReportChannelID != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}
