package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mfenderov/multichat/internal/config"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
	cfgErr  error
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

// loadedConfig returns the configuration, or the error that made it unusable.
func loadedConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", cfgErr)
	}
	c := GetConfig()
	return &c, nil
}

var rootCmd = &cobra.Command{
	Use:   "multichat",
	Short: "MultiChat: a knowledge-grounded multilingual support chat",
	Long: `MultiChat answers visitor questions with an LLM grounded on content
crawled from your own site's sitemap.

Commands:
  serve   Start the HTTP chat endpoint and admin API
  scan    Crawl the sitemap and rebuild a language's knowledge base
  ask     Ask a single question from the command line
  search  Show the knowledge chunks a question would be grounded on
  cache   Inspect and clear the response and knowledge caches
  mcp     Serve the chat as MCP tools over stdio`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// useJSONLogs switches the default logger to JSON, keeping the level.
func useJSONLogs() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

var envBindings = []string{
	"openai.api_key",
	"openai.endpoint",
	"openai.model",
	"openai.temperature",
	"openai.max_tokens",
	"openai.timeout",
	"openai.max_retries",
	"openai.backoff_base",
	"cache.backend",
	"cache.response_ttl",
	"cache.prefix",
	"redis.password",
	"redis.db",
	"rate_limit.requests",
	"rate_limit.window",
	"rate_limit.user_header",
	"chat.max_message_length",
	"chat.default_language",
	"chat.top_n",
	"crawler.timeout",
	"crawler.user_agent",
	"crawler.insecure_skip_verify",
	"crawler.max_pages",
	"crawler.max_content_length",
	"crawler.delay",
	"crawler.markdown",
	"sitemap.url",
	"sitemap.max_depth",
	"sitemap.max_urls",
	"knowledge.backend",
	"knowledge.ttl",
	"knowledge.max_chunk_size",
	"storage.endpoint",
	"storage.bucket",
	"storage.access_key_id",
	"storage.secret_access_key",
	"storage.use_ssl",
	"elasticsearch.enabled",
	"elasticsearch.index",
	"elasticsearch.username",
	"elasticsearch.password",
	"http.addr",
	"http.admin_token",
	"mcp.name",
	"mcp.version",
	"log.format",
}

func initConfig() {
	// Start with defaults
	cfg = config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/multichat")
		viper.AddConfigPath(".")
	}

	// MULTICHAT_OPENAI_API_KEY -> openai.api_key
	viper.SetEnvPrefix("MULTICHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for _, key := range envBindings {
		viper.BindEnv(key, "MULTICHAT_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("config file error", "error", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Warn("failed to parse config", "error", err)
	}

	// Comma-separated lists from env
	if addrs := os.Getenv("MULTICHAT_ELASTICSEARCH_ADDRESSES"); addrs != "" {
		cfg.Elasticsearch.Addresses = strings.Split(addrs, ",")
	}
	if addrs := os.Getenv("MULTICHAT_REDIS_ADDRS"); addrs != "" {
		cfg.Redis.Addrs = strings.Split(addrs, ",")
	}
	if langs := os.Getenv("MULTICHAT_CHAT_LANGUAGES"); langs != "" {
		cfg.Chat.Languages = strings.Split(langs, ",")
	}
	if types := os.Getenv("MULTICHAT_SITEMAP_POST_TYPES"); types != "" {
		cfg.Sitemap.PostTypes = strings.Split(types, ",")
	}
	// The conventional provider variable works when no explicit key is set.
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	cfg.Normalize()
	cfgErr = cfg.Validate()
}
