package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "DIGEST_SCHEDULER_CONFIG"
	databasePathEnv = "DATABASE_PATH"
	logLevelEnv     = "LOG_LEVEL"
	serpAPIKeyEnv   = "SERPAPI_API_KEY"
	newsAPIKeyEnv   = "NEWSAPI_API_KEY"
	openAIKeyEnv    = "OPENAI_API_KEY"
	cartesiaKeyEnv  = "CARTESIA_API_KEY"
	pushKeyEnv      = "PUSH_API_KEY"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Search    SearchConfig    `yaml:"search"`
	ChatGPT   ChatGPTConfig   `yaml:"chatgpt"`
	TTS       TTSConfig       `yaml:"tts"`
	Push      PushConfig      `yaml:"push"`
	Audio     AudioConfig     `yaml:"audio"`
}

// LoggingConfig selects slog level and handler format ("text" or "json").
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig points at the SQLite database file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig defines when cycles run and how much work one cycle may do.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	MaxConcurrent  int            `yaml:"maxConcurrent"`
	UserTimeout    time.Duration  `yaml:"userTimeout"`
	CycleTimeout   time.Duration  `yaml:"cycleTimeout"`
	ExcludedUsers  []string       `yaml:"excludedUsers"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	return time.UTC
}

// SearchConfig groups settings for news providers.
type SearchConfig struct {
	DefaultProvider string         `yaml:"defaultProvider"`
	Window          time.Duration  `yaml:"window"`
	MaxArticles     int            `yaml:"maxArticles"`
	Parallel        int            `yaml:"parallel"`
	ExtractContent  bool           `yaml:"extractContent"`
	ExtractMaxChars int            `yaml:"extractMaxChars"`
	SerpAPI         ProviderConfig `yaml:"serpapi"`
	NewsAPI         ProviderConfig `yaml:"newsapi"`
}

// ProviderConfig holds the endpoint and credentials of one search provider.
type ProviderConfig struct {
	BaseURL  string        `yaml:"baseUrl"`
	APIKey   string        `yaml:"apiKey"`
	Interval time.Duration `yaml:"interval"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxArticles  int           `yaml:"maxArticles"`
}

// TTSConfig describes the Cartesia text-to-speech integration.
type TTSConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	APIKey       string        `yaml:"apiKey"`
	Model        string        `yaml:"model"`
	Version      string        `yaml:"version"`
	DefaultVoice string        `yaml:"defaultVoice"`
	Timeout      time.Duration `yaml:"timeout"`
}

// PushConfig wires the push-notification gateway.
type PushConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	APIKey        string        `yaml:"apiKey"`
	RatePerSecond float64       `yaml:"ratePerSecond"`
	Burst         int           `yaml:"burst"`
	Timeout       time.Duration `yaml:"timeout"`
}

// AudioConfig tells where synthesized podcasts are written.
type AudioConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads the YAML file at path (or the one named by DIGEST_SCHEDULER_CONFIG
// when path is empty) over the defaults and applies environment overrides.
// A missing path is not an error; an unreadable or invalid file is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env    string
		target *string
	}{
		{databasePathEnv, &c.Database.Path},
		{logLevelEnv, &c.Logging.Level},
		{serpAPIKeyEnv, &c.Search.SerpAPI.APIKey},
		{newsAPIKeyEnv, &c.Search.NewsAPI.APIKey},
		{openAIKeyEnv, &c.ChatGPT.APIKey},
		{cartesiaKeyEnv, &c.TTS.APIKey},
		{pushKeyEnv, &c.Push.APIKey},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.target = v
		}
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return errors.Wrapf(err, "unknown scheduler timezone %q", tz)
	}
	c.Scheduler.location = loc
	return nil
}

// Validate rejects settings the scheduler cannot run with.
func (c Config) Validate() error {
	var problems []error
	s := c.Scheduler
	if strings.TrimSpace(s.CronExpression) == "" {
		problems = append(problems, errors.New("scheduler.cronExpression is required"))
	}
	if s.MaxConcurrent <= 0 {
		problems = append(problems, errors.Newf("scheduler.maxConcurrent must be positive, got %d", s.MaxConcurrent))
	}
	if s.UserTimeout <= 0 {
		problems = append(problems, errors.Newf("scheduler.userTimeout must be positive, got %s", s.UserTimeout))
	}
	if s.CycleTimeout <= 0 {
		problems = append(problems, errors.Newf("scheduler.cycleTimeout must be positive, got %s", s.CycleTimeout))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		problems = append(problems, errors.New("database.path is required"))
	}
	if c.Search.MaxArticles <= 0 {
		problems = append(problems, errors.Newf("search.maxArticles must be positive, got %d", c.Search.MaxArticles))
	}
	switch c.Search.DefaultProvider {
	case "serpapi", "newsapi":
	default:
		problems = append(problems, errors.Newf("search.defaultProvider %q is not supported", c.Search.DefaultProvider))
	}
	if c.Push.RatePerSecond < 0 {
		problems = append(problems, errors.New("push.ratePerSecond must not be negative"))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.Wrap(errors.Join(problems...), "invalid config")
}

// Warnings lists settings that are allowed but probably unintended.
func (c Config) Warnings() []string {
	var out []string
	if c.Scheduler.UserTimeout > c.Scheduler.CycleTimeout {
		out = append(out, "scheduler.userTimeout exceeds scheduler.cycleTimeout; late admissions may outlive the cycle")
	}
	if c.ChatGPT.APIKey == "" {
		out = append(out, "chatgpt.apiKey is empty; report generation will fail")
	}
	if c.TTS.APIKey == "" {
		out = append(out, "tts.apiKey is empty; podcasts will be skipped")
	}
	return out
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Path: "digest.db"},
		Scheduler: SchedulerConfig{
			CronExpression: "*/15 * * * *",
			Timezone:       defaultTimezone,
			MaxConcurrent:  5,
			UserTimeout:    8 * time.Minute,
			CycleTimeout:   9 * time.Minute,
			location:       time.UTC,
		},
		Search: SearchConfig{
			DefaultProvider: "serpapi",
			Window:          48 * time.Hour,
			MaxArticles:     10,
			Parallel:        3,
			ExtractMaxChars: 4000,
			SerpAPI:         ProviderConfig{BaseURL: "https://serpapi.com/search.json", Interval: 1500 * time.Millisecond},
			NewsAPI:         ProviderConfig{BaseURL: "https://newsapi.org/v2"},
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a news editor writing short, engaging digests for busy readers.",
			Timeout:      60 * time.Second,
			MaxArticles:  8,
		},
		TTS: TTSConfig{
			Endpoint:     "https://api.cartesia.ai/tts/bytes",
			Model:        "sonic-2",
			Version:      "2024-06-10",
			DefaultVoice: "96c64eb5-a945-448f-9710-980abe7a514c",
			Timeout:      120 * time.Second,
		},
		Push: PushConfig{
			RatePerSecond: 10,
			Burst:         5,
			Timeout:       15 * time.Second,
		},
		Audio: AudioConfig{Dir: "audio"},
	}
}
