package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfenderov/multichat/internal/apiclient"
	"github.com/mfenderov/multichat/internal/chat"
	"github.com/mfenderov/multichat/internal/config"
	"github.com/mfenderov/multichat/internal/crawler"
	"github.com/mfenderov/multichat/internal/elasticsearch"
	"github.com/mfenderov/multichat/internal/knowledge"
	"github.com/mfenderov/multichat/internal/ratelimit"
	"github.com/mfenderov/multichat/internal/scan"
	"github.com/mfenderov/multichat/internal/sitemap"
	"github.com/mfenderov/multichat/internal/storage"
	"github.com/mfenderov/multichat/internal/store"
)

// app is every component built once at startup and passed explicitly.
type app struct {
	store     store.Store
	knowledge *knowledge.Cache
	client    *apiclient.Client
	limiter   *ratelimit.Limiter
	chat      *chat.Service
	scans     *scan.Service
	index     *elasticsearch.Client // nil unless elasticsearch.enabled
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		client, err := store.NewRedisClient(ctx, store.RedisConfig{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		slog.Debug("using redis store", "addrs", cfg.Redis.Addrs)
		return store.NewRedis(client), nil
	default:
		return store.NewMemory(time.Minute), nil
	}
}

func newIndex(ctx context.Context, cfg *config.Config) (*elasticsearch.Client, error) {
	if !cfg.Elasticsearch.Enabled {
		return nil, nil
	}
	esClient, err := elasticsearch.New(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Index:     cfg.Elasticsearch.Index,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	if err := esClient.CreateIndex(ctx); err != nil {
		slog.Warn("elasticsearch index unavailable", "error", err)
	}
	return esClient, nil
}

// newKnowledgeKV returns where snapshots live: the shared store, or an S3 bucket.
func newKnowledgeKV(ctx context.Context, cfg *config.Config, shared store.KV) (store.KV, error) {
	if cfg.Knowledge.Backend != "s3" {
		return shared, nil
	}
	storageClient, err := storage.New(storage.Config{
		Endpoint:        cfg.Storage.Endpoint,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UseSSL:          cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	if err := storageClient.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}
	return storageClient, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	shared, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	kbKV, err := newKnowledgeKV(ctx, cfg, shared)
	if err != nil {
		shared.Close()
		return nil, err
	}

	index, err := newIndex(ctx, cfg)
	if err != nil {
		shared.Close()
		return nil, err
	}

	var kbOpts []knowledge.CacheOption
	if index != nil {
		kbOpts = append(kbOpts, knowledge.WithIndexer(index))
	}
	kb := knowledge.NewCache(kbKV, cfg.Cache.Prefix, cfg.Knowledge.TTL, kbOpts...)

	client := apiclient.New(apiclient.Config{
		Endpoint:    cfg.OpenAI.Endpoint,
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Timeout:     cfg.OpenAI.Timeout,
		MaxRetries:  cfg.OpenAI.MaxRetries,
		BackoffBase: cfg.OpenAI.BackoffBase,
		CacheTTL:    cfg.Cache.ResponseTTL,
		CachePrefix: cfg.Cache.Prefix,
	}, shared)

	limiter := ratelimit.New(shared, ratelimit.Config{
		Requests:  cfg.RateLimit.Requests,
		Window:    cfg.RateLimit.Window,
		KeyPrefix: cfg.Cache.Prefix,
	})

	faqs := make([]chat.FAQ, len(cfg.Chat.FAQs))
	for i, f := range cfg.Chat.FAQs {
		faqs[i] = chat.FAQ{Question: f.Question, Answer: f.Answer}
	}
	chatService := chat.New(chat.Config{
		MaxMessageLength:  cfg.Chat.MaxMessageLength,
		Languages:         cfg.Chat.Languages,
		DefaultLanguage:   cfg.Chat.DefaultLanguage,
		TopN:              cfg.Chat.TopN,
		FallbackKnowledge: cfg.Chat.FallbackKnowledge,
		FAQs:              faqs,
	}, limiter, chat.StaticCredential(cfg.OpenAI.APIKey), kb, client,
		chat.WithLanguageResolver(chat.AcceptLanguageResolver{
			Supported: cfg.Chat.Languages,
			Fallback:  cfg.Chat.DefaultLanguage,
		}),
	)

	scans := scan.New(scan.Config{
		SitemapURL:      cfg.Sitemap.URL,
		PostTypes:       cfg.Sitemap.PostTypes,
		DefaultLanguage: cfg.Chat.DefaultLanguage,
	},
		sitemap.New(sitemap.Config{
			Timeout:            cfg.Crawler.Timeout,
			UserAgent:          cfg.Crawler.UserAgent,
			InsecureSkipVerify: cfg.Crawler.InsecureSkipVerify,
			MaxDepth:           cfg.Sitemap.MaxDepth,
			MaxURLs:            cfg.Sitemap.MaxURLs,
		}),
		crawler.New(crawler.Config{
			Timeout:            cfg.Crawler.Timeout,
			UserAgent:          cfg.Crawler.UserAgent,
			InsecureSkipVerify: cfg.Crawler.InsecureSkipVerify,
			MaxPages:           cfg.Crawler.MaxPages,
			MaxContentLength:   cfg.Crawler.MaxContentLength,
			Delay:              cfg.Crawler.Delay,
			Markdown:           cfg.Crawler.Markdown,
		}),
		knowledge.NewBuilder(cfg.Knowledge.MaxChunkSize),
		kb,
	)

	return &app{
		store:     shared,
		knowledge: kb,
		client:    client,
		limiter:   limiter,
		chat:      chatService,
		scans:     scans,
		index:     index,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
