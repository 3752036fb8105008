package config

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// MinKnowledgeTTL is the floor applied to the knowledge base cache TTL.
const MinKnowledgeTTL = time.Hour

// Config holds all application configuration.
type Config struct {
	OpenAI        OpenAI        `mapstructure:"openai"`
	Cache         Cache         `mapstructure:"cache"`
	Redis         Redis         `mapstructure:"redis"`
	RateLimit     RateLimit     `mapstructure:"rate_limit"`
	Chat          Chat          `mapstructure:"chat"`
	Crawler       Crawler       `mapstructure:"crawler"`
	Sitemap       Sitemap       `mapstructure:"sitemap"`
	Knowledge     Knowledge     `mapstructure:"knowledge"`
	Storage       Storage       `mapstructure:"storage"`
	Elasticsearch Elasticsearch `mapstructure:"elasticsearch"`
	HTTP          HTTP          `mapstructure:"http"`
	MCP           MCP           `mapstructure:"mcp"`
	Log           Log           `mapstructure:"log"`
}

// OpenAI holds the completion provider configuration.
type OpenAI struct {
	APIKey      string        `mapstructure:"api_key"`
	Endpoint    string        `mapstructure:"endpoint"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// Cache selects the shared key/value backend used for responses,
// knowledge snapshots and rate-limit counters.
type Cache struct {
	Backend     string        `mapstructure:"backend"` // memory or redis
	ResponseTTL time.Duration `mapstructure:"response_ttl"`
	Prefix      string        `mapstructure:"prefix"`
}

// Redis holds Redis connection configuration.
type Redis struct {
	Addrs    []string `mapstructure:"addrs"`
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"`
}

// RateLimit holds the per-caller fixed window limits.
type RateLimit struct {
	Requests   int           `mapstructure:"requests"`
	Window     time.Duration `mapstructure:"window"`
	UserHeader string        `mapstructure:"user_header"` // trusted header carrying an authenticated user id
}

// FAQ is a manually curated question/answer pair.
type FAQ struct {
	Question string `mapstructure:"question"`
	Answer   string `mapstructure:"answer"`
}

// Chat holds request validation and knowledge selection settings.
type Chat struct {
	MaxMessageLength  int                 `mapstructure:"max_message_length"`
	Languages         []string            `mapstructure:"languages"`
	DefaultLanguage   string              `mapstructure:"default_language"`
	TopN              int                 `mapstructure:"top_n"`
	FallbackKnowledge map[string][]string `mapstructure:"fallback_knowledge"`
	FAQs              []FAQ               `mapstructure:"faqs"`
}

// Crawler holds page fetching configuration.
type Crawler struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	UserAgent          string        `mapstructure:"user_agent"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	MaxPages           int           `mapstructure:"max_pages"`
	MaxContentLength   int           `mapstructure:"max_content_length"`
	Delay              time.Duration `mapstructure:"delay"`
	Markdown           bool          `mapstructure:"markdown"` // convert the content region to markdown before flattening
}

// Sitemap holds sitemap discovery configuration.
type Sitemap struct {
	URL       string   `mapstructure:"url"`
	PostTypes []string `mapstructure:"post_types"`
	MaxDepth  int      `mapstructure:"max_depth"`
	MaxURLs   int      `mapstructure:"max_urls"`
}

// Knowledge holds knowledge base cache configuration.
type Knowledge struct {
	Backend      string        `mapstructure:"backend"` // store or s3
	TTL          time.Duration `mapstructure:"ttl"`
	MaxChunkSize int           `mapstructure:"max_chunk_size"`
}

// Storage holds S3/MinIO configuration for the snapshot archive.
type Storage struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// Elasticsearch holds configuration for the optional chunk search index.
type Elasticsearch struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// HTTP holds HTTP server configuration.
type HTTP struct {
	Addr       string `mapstructure:"addr"`
	AdminToken string `mapstructure:"admin_token"` // empty disables the admin routes
}

// MCP holds MCP server configuration.
type MCP struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Log holds logger configuration.
type Log struct {
	Format string `mapstructure:"format"` // text or json
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		OpenAI: OpenAI{
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-3.5-turbo",
			Temperature: 0.7,
			MaxTokens:   500,
			Timeout:     30 * time.Second,
			MaxRetries:  2,
			BackoffBase: time.Second,
		},
		Cache: Cache{
			Backend:     "memory",
			ResponseTTL: time.Hour,
			Prefix:      "multichat:",
		},
		Redis: Redis{
			Addrs: []string{"localhost:6379"},
		},
		RateLimit: RateLimit{
			Requests: 10,
			Window:   time.Minute,
		},
		Chat: Chat{
			MaxMessageLength: 1000,
			Languages:        []string{"en", "ar", "es", "fr"},
			DefaultLanguage:  "en",
			TopN:             3,
		},
		Crawler: Crawler{
			Timeout:            30 * time.Second,
			UserAgent:          "Mozilla/5.0 (compatible; MultiChatBot/1.0; +https://github.com/mfenderov/multichat)",
			InsecureSkipVerify: true, // many small sites run broken chains
			MaxPages:           100,
			MaxContentLength:   5000,
			Delay:              200 * time.Millisecond,
		},
		Sitemap: Sitemap{
			MaxDepth: 5,
			MaxURLs:  10000,
		},
		Knowledge: Knowledge{
			Backend:      "store",
			TTL:          7 * 24 * time.Hour,
			MaxChunkSize: 500,
		},
		Storage: Storage{
			Endpoint:        "localhost:9002",
			Bucket:          "multichat",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			UseSSL:          false,
		},
		Elasticsearch: Elasticsearch{
			Enabled:   false,
			Addresses: []string{"http://localhost:9200"},
			Index:     "multichat-chunks",
		},
		HTTP: HTTP{
			Addr: ":8080",
		},
		MCP: MCP{
			Name:    "multichat",
			Version: "1.0.0",
		},
		Log: Log{
			Format: "text",
		},
	}
}

// Normalize applies floors that a config file cannot lower.
func (c *Config) Normalize() {
	if c.Knowledge.TTL < MinKnowledgeTTL {
		c.Knowledge.TTL = MinKnowledgeTTL
	}
	if c.Chat.DefaultLanguage == "" && len(c.Chat.Languages) > 0 {
		c.Chat.DefaultLanguage = c.Chat.Languages[0]
	}
}

// Validate checks the configuration for values the services cannot run with.
// The API key is not required here: a missing key is reported per request.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.OpenAI,
		validation.Field(&c.OpenAI.Endpoint, validation.Required, is.URL),
		validation.Field(&c.OpenAI.Model, validation.Required),
		validation.Field(&c.OpenAI.MaxRetries, validation.Min(0), validation.Max(10)),
		validation.Field(&c.OpenAI.Timeout, validation.Required),
		validation.Field(&c.OpenAI.BackoffBase, validation.Required),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Cache,
		validation.Field(&c.Cache.Backend, validation.Required, validation.In("memory", "redis")),
		validation.Field(&c.Cache.ResponseTTL, validation.Required),
	); err != nil {
		return err
	}
	if c.Cache.Backend == "redis" {
		if err := validation.ValidateStruct(&c.Redis,
			validation.Field(&c.Redis.Addrs, validation.Required),
		); err != nil {
			return err
		}
	}
	if err := validation.ValidateStruct(&c.RateLimit,
		validation.Field(&c.RateLimit.Requests, validation.Required, validation.Min(1)),
		validation.Field(&c.RateLimit.Window, validation.Required),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Chat,
		validation.Field(&c.Chat.MaxMessageLength, validation.Required, validation.Min(1)),
		validation.Field(&c.Chat.Languages, validation.Required),
		validation.Field(&c.Chat.DefaultLanguage, validation.Required, validation.In(toAny(c.Chat.Languages)...)),
		validation.Field(&c.Chat.TopN, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Crawler,
		validation.Field(&c.Crawler.Timeout, validation.Required),
		validation.Field(&c.Crawler.MaxPages, validation.Required, validation.Min(1)),
		validation.Field(&c.Crawler.MaxContentLength, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Sitemap,
		validation.Field(&c.Sitemap.URL, is.URL),
		validation.Field(&c.Sitemap.MaxDepth, validation.Required, validation.Min(1)),
		validation.Field(&c.Sitemap.MaxURLs, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Knowledge,
		validation.Field(&c.Knowledge.Backend, validation.Required, validation.In("store", "s3")),
		validation.Field(&c.Knowledge.MaxChunkSize, validation.Required, validation.Min(50)),
	); err != nil {
		return err
	}
	if c.Knowledge.Backend == "s3" {
		if err := validation.ValidateStruct(&c.Storage,
			validation.Field(&c.Storage.Endpoint, validation.Required),
			validation.Field(&c.Storage.Bucket, validation.Required),
		); err != nil {
			return err
		}
	}
	return validation.ValidateStruct(&c.Log,
		validation.Field(&c.Log.Format, validation.In("text", "json")),
	)
}

func toAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
