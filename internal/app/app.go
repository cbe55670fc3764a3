// Package app wires configuration, storage, fetching, delivery and
// scheduling into the running bot.
package app

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"

	"github.com/deusflow/newsdigest/internal/cache"
	"github.com/deusflow/newsdigest/internal/config"
	"github.com/deusflow/newsdigest/internal/digest"
	"github.com/deusflow/newsdigest/internal/gemini"
	"github.com/deusflow/newsdigest/internal/metrics"
	"github.com/deusflow/newsdigest/internal/ratelimit"
	"github.com/deusflow/newsdigest/internal/rss"
	"github.com/deusflow/newsdigest/internal/scheduler"
	"github.com/deusflow/newsdigest/internal/storage"
	"github.com/deusflow/newsdigest/internal/telegram"
)

const userAgent = "newsdigest/1.0 (+https://github.com/deusflow/newsdigest)"

type App struct {
	Config    *config.Config
	Sources   *config.Sources
	Store     storage.Backend
	Digest    *digest.Digest
	Limiter   *ratelimit.DomainLimiter
	Briefer   telegram.Briefer // nil without GEMINI_API_KEY
	Retention time.Duration
	Now       func() time.Time

	feedCache *cache.Cache[*gofeed.Feed]
	gemini    *gemini.Client
}

// New opens the store and builds the digest pipeline. It does not contact
// Telegram.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	sources, err := config.LoadSources(cfg.SourcesConfigPath)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	feedCache := cache.New[*gofeed.Feed](cfg.FeedCacheTTL, time.Minute)
	limiter := ratelimit.NewDomainLimiter(cfg.DomainRate, 1)

	fetcher := rss.NewFetcher(rss.NewGofeedSource(userAgent), feedCache, limiter)
	fetcher.Timeout = cfg.FetchTimeout
	fetcher.Concurrency = cfg.FetchConcurrency

	engine := digest.NewEngine(store, fetcher, sources.Scorer(), sources.Options())

	dg := &digest.Digest{
		Engine:         engine,
		Categories:     sources.DigestCategories(),
		PerSourceLimit: sources.Tuning.PerSourceLimit,
		Location:       cfg.Location(),
	}

	a := &App{
		Config:    cfg,
		Sources:   sources,
		Store:     store,
		Digest:    dg,
		Limiter:   limiter,
		Retention: sources.Tuning.Retention,
		Now:       time.Now,
		feedCache: feedCache,
	}

	if cfg.GeminiAPIKey != "" {
		gc, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warn().Err(err).Msg("Gemini disabled")
		} else {
			a.gemini = gc
			a.Briefer = gc
		}
	}

	log.Info().
		Str("store", cfg.StoreDriver).
		Int("categories", len(sources.Categories)).
		Bool("brief", a.Briefer != nil).
		Msg("App initialized")
	return a, nil
}

func (a *App) Close() {
	if a.feedCache != nil {
		a.feedCache.Close()
	}
	if a.gemini != nil {
		a.gemini.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing store")
		}
	}
}

// Deliver builds one digest and sends it to every subscriber. No digest is
// built, and nothing is marked as sent, when there are no subscribers.
func (a *App) Deliver(ctx context.Context, sender telegram.Sender) (int, error) {
	chats, err := a.Store.Subscribers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscribers: %w", err)
	}
	if len(chats) == 0 {
		log.Info().Msg("No subscribers, skipping digest")
		return 0, nil
	}

	res := a.Digest.Build(ctx)
	delivered := 0
	for _, chatID := range chats {
		if err := sender.Send(ctx, chatID, res.Text); err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Str("build_id", res.ID).Msg("Delivery failed")
			continue
		}
		delivered++
	}

	log.Info().Str("build_id", res.ID).Int("delivered", delivered).Int("subscribers", len(chats)).Msg("Digest delivered")
	if delivered == 0 {
		err := fmt.Errorf("digest %s reached none of %d subscribers", res.ID, len(chats))
		metrics.Global.SetError(err.Error())
		return 0, err
	}
	return delivered, nil
}

// Purge drops fingerprints older than the retention horizon.
func (a *App) Purge(ctx context.Context) (int64, error) {
	return a.Store.Purge(ctx, a.Now().Add(-a.Retention))
}

// scheduledRun is the cron job: deliver, then purge.
func (a *App) scheduledRun(ctx context.Context, sender telegram.Sender) {
	if _, err := a.Deliver(ctx, sender); err != nil {
		log.Error().Err(err).Msg("Scheduled digest failed")
	}
	if _, err := a.Purge(ctx); err != nil {
		metrics.Global.IncrementStoreErrors()
		log.Warn().Err(err).Msg("Purge failed")
	}
}

// RunBot polls Telegram for commands and sends scheduled digests until ctx
// is cancelled.
func (a *App) RunBot(ctx context.Context) error {
	if err := a.Config.RequireTelegram(); err != nil {
		return err
	}

	api, err := tgbotapi.NewBotAPI(a.Config.TelegramToken)
	if err != nil {
		return fmt.Errorf("connect to telegram: %w", err)
	}
	api.Debug = a.Config.Debug
	log.Info().Str("bot", api.Self.UserName).Msg("Authorized on Telegram")

	sender := telegram.NewBotSender(api)

	sched := scheduler.New(a.Config.Location())
	if err := sched.Schedule(a.Config.DigestTimes, func() { a.scheduledRun(ctx, sender) }); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()
	log.Info().Time("next_run", sched.Next()).Msg("Scheduler started")

	bot := &telegram.Bot{
		Sender:        sender,
		Subscriptions: a.Store,
		Digests:       a.Digest,
		Briefer:       a.Briefer,
		Schedule:      a.Config.DigestTimes,
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	bot.Run(ctx, updates)
	return ctx.Err()
}

// NewSender connects to Telegram for one-shot commands.
func (a *App) NewSender() (telegram.Sender, error) {
	if err := a.Config.RequireTelegram(); err != nil {
		return nil, err
	}
	api, err := tgbotapi.NewBotAPI(a.Config.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return telegram.NewBotSender(api), nil
}
