// Package app wires all ClinScribe subsystems into a running dictation
// server.
//
// The App struct owns the full lifecycle: New builds the recognition
// provider, the enhancement pipeline, the orchestrator, and the HTTP server
// from config; Run serves until the context is cancelled; Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithSTTProvider and
// friends). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinscribe/clinscribe/internal/archive"
	"github.com/clinscribe/clinscribe/internal/broker"
	"github.com/clinscribe/clinscribe/internal/config"
	"github.com/clinscribe/clinscribe/internal/enhance"
	"github.com/clinscribe/clinscribe/internal/enhance/phonetic"
	"github.com/clinscribe/clinscribe/internal/health"
	"github.com/clinscribe/clinscribe/internal/observe"
	"github.com/clinscribe/clinscribe/internal/orchestrator"
	"github.com/clinscribe/clinscribe/internal/quality"
	"github.com/clinscribe/clinscribe/internal/recognizer"
	"github.com/clinscribe/clinscribe/internal/resilience"
	"github.com/clinscribe/clinscribe/internal/server"
	"github.com/clinscribe/clinscribe/internal/session"
	"github.com/clinscribe/clinscribe/internal/vocabulary"
	"github.com/clinscribe/clinscribe/pkg/archive/postgres"
	"github.com/clinscribe/clinscribe/pkg/audio"
	"github.com/clinscribe/clinscribe/pkg/provider/stt"
	"github.com/clinscribe/clinscribe/pkg/provider/stt/deepgram"
	"github.com/clinscribe/clinscribe/pkg/provider/stt/mock"
	"github.com/clinscribe/clinscribe/pkg/provider/stt/whisper"
	"github.com/clinscribe/clinscribe/pkg/types"
)

// Defaults applied when the config leaves a field empty.
const (
	defaultListenAddr  = ":8080"
	defaultSampleRate  = 16000
	defaultLanguage    = "en"
	defaultMaxSessions = 256

	shutdownGrace = 10 * time.Second
)

// DefaultRegistry returns the provider registry with the built-in STT
// backends registered. main extends it for third-party backends.
func DefaultRegistry() *config.Registry {
	r := config.NewRegistry()
	r.RegisterSTT("deepgram", func(cfg config.STTConfig) (stt.Provider, error) {
		opts := []deepgram.Option{}
		if cfg.Model != "" {
			opts = append(opts, deepgram.WithModel(cfg.Model))
		}
		if cfg.Language != "" {
			opts = append(opts, deepgram.WithLanguage(cfg.Language))
		}
		if cfg.SampleRate != 0 {
			opts = append(opts, deepgram.WithSampleRate(cfg.SampleRate))
		}
		return deepgram.New(cfg.APIKey, opts...)
	})
	r.RegisterSTT("whisper", func(cfg config.STTConfig) (stt.Provider, error) {
		opts := []whisper.Option{}
		if cfg.Model != "" {
			opts = append(opts, whisper.WithModel(cfg.Model))
		}
		if cfg.Language != "" {
			opts = append(opts, whisper.WithLanguage(cfg.Language))
		}
		if cfg.SampleRate != 0 {
			opts = append(opts, whisper.WithSampleRate(cfg.SampleRate))
		}
		return whisper.New(cfg.BaseURL, opts...)
	})
	r.RegisterSTT("mock", func(config.STTConfig) (stt.Provider, error) {
		return &mock.Provider{}, nil
	})
	return r
}

// App owns all subsystem lifetimes of the dictation server.
type App struct {
	cfg      *config.Config
	registry *config.Registry
	metrics  *observe.Metrics
	log      *slog.Logger

	provider stt.Provider
	sessions *session.Registry
	adapter  *recognizer.Adapter
	broker   *broker.Broker
	orch     *orchestrator.Orchestrator
	store    *postgres.Store
	archiver *archive.Archiver
	watcher  *config.Watcher
	httpSrv  *http.Server

	// closers run in registration order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option injects a dependency instead of building it from config.
type Option func(*App)

// WithSTTProvider injects the recognition provider. Skips the registry and
// the failover wrapper entirely.
func WithSTTProvider(p stt.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithRegistry replaces the provider registry used to build backends from
// config.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics injects the metrics set.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// New wires the application from cfg. The config must already be validated.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg: cfg,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = DefaultRegistry()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initProvider(); err != nil {
		return nil, fmt.Errorf("app: init stt provider: %w", err)
	}
	a.initPipeline()
	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}
	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}
	return a, nil
}

// initProvider builds the STT backend from config, wrapping it in a failover
// group when fallbacks are configured.
func (a *App) initProvider() error {
	if a.provider != nil {
		return nil
	}

	primary, err := a.registry.CreateSTT(a.cfg.STT)
	if err != nil {
		return err
	}
	if len(a.cfg.STT.Fallbacks) == 0 {
		a.provider = primary
		return nil
	}

	fo := resilience.NewFailover(a.cfg.STT.Provider, primary, resilience.WithLogger(a.log))
	for _, fb := range a.cfg.STT.Fallbacks {
		p, err := a.registry.CreateSTT(fb.AsSTT(a.cfg.STT))
		if err != nil {
			return fmt.Errorf("fallback %q: %w", fb.Provider, err)
		}
		fo.Add(fb.Provider, p)
	}
	a.log.Info("engine failover enabled", "backends", fo.Backends())
	a.provider = fo
	return nil
}

// initPipeline builds the vocabulary, enhancer, quality assessor, broker,
// recognizer adapter, and orchestrator.
func (a *App) initPipeline() {
	vocabOpts := []vocabulary.Option{}
	for cat, terms := range a.cfg.Enhancement.ExtraTerms {
		vocabOpts = append(vocabOpts, vocabulary.WithExtraTerms(types.TermCategory(cat), terms...))
	}
	if len(a.cfg.Enhancement.ExtraCorrections) > 0 {
		vocabOpts = append(vocabOpts, vocabulary.WithExtraCorrections(a.cfg.Enhancement.ExtraCorrections))
	}
	vocab := vocabulary.New(vocabOpts...)

	enhOpts := []enhance.Option{enhance.WithLogger(a.log)}
	if a.cfg.Enhancement.PhoneticEnabled() {
		enhOpts = append(enhOpts, enhance.WithMatcher(phonetic.New()))
	}
	enhancer := enhance.New(vocab, enhOpts...)

	source := quality.SourceConfidence
	if a.cfg.Quality.Source != "" {
		// Validate already vetted the name.
		source, _ = quality.ParseSource(a.cfg.Quality.Source)
	}

	a.sessions = session.NewRegistry()
	a.adapter = recognizer.New(a.provider, a.streamConfig(), recognizer.WithLogger(a.log))
	a.broker = broker.New(
		broker.WithLogger(a.log),
		broker.WithDropHook(func(string) {
			a.metrics.EventsDropped.Add(context.Background(), 1)
		}),
		broker.WithSubscriberHook(func(delta int) {
			a.metrics.Subscribers.Add(context.Background(), int64(delta))
		}),
	)
	a.orch = orchestrator.New(
		a.sessions,
		a.adapter,
		enhancer,
		quality.New(source),
		a.broker,
		orchestrator.WithLogger(a.log),
		orchestrator.WithMetrics(a.metrics),
	)
}

// streamConfig translates the STT config into the engine stream settings
// every session starts with.
func (a *App) streamConfig() stt.StreamConfig {
	cfg := stt.StreamConfig{
		SampleRate: a.cfg.STT.SampleRate,
		Channels:   1,
		Language:   a.cfg.STT.Language,
		Keywords:   keywordBoosts(a.cfg.STT.Keywords),
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	return cfg
}

func keywordBoosts(kws []config.KeywordConfig) []stt.KeywordBoost {
	if len(kws) == 0 {
		return nil
	}
	out := make([]stt.KeywordBoost, len(kws))
	for i, kw := range kws {
		out[i] = stt.KeywordBoost{Keyword: kw.Keyword, Boost: kw.Boost}
	}
	return out
}

// initArchive connects the transcript archive when a DSN is configured.
func (a *App) initArchive(ctx context.Context) error {
	if a.cfg.Archive.PostgresDSN == "" {
		return nil
	}

	store, err := postgres.NewStore(ctx, a.cfg.Archive.PostgresDSN)
	if err != nil {
		return err
	}
	a.store = store
	a.archiver = archive.New(store, archive.WithLogger(a.log))
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initServer assembles the HTTP surface.
func (a *App) initServer() error {
	checkers := []health.Checker{
		health.SessionCapacity(a.sessions, defaultMaxSessions),
	}
	if a.store != nil {
		checkers = append(checkers, health.Archive(a.store))
	}

	srvOpts := []server.Option{
		server.WithLogger(a.log),
		server.WithMetrics(a.metrics),
		server.WithHealth(health.New(checkers...)),
	}
	if a.cfg.Audio.Codec == config.CodecOpus {
		srvOpts = append(srvOpts, server.WithFrameDecoder(func() (server.FrameDecoder, error) {
			return audio.NewOpusDecoder()
		}))
	}

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	a.httpSrv = &http.Server{
		Addr:    addr,
		Handler: server.New(a.orch, a.broker, srvOpts...).Handler(),
	}
	return nil
}

// Handler exposes the wired HTTP surface, mainly for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.httpSrv.Handler
}

// WatchConfig starts hot-reloading the config file at path. Only the log
// level and the engine keyword boosts apply live; everything else needs a
// restart.
func (a *App) WatchConfig(path string, levelVar *slog.LevelVar, opts ...config.WatcherOption) error {
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged && levelVar != nil {
			levelVar.Set(slogLevel(d.NewLogLevel))
			a.log.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.KeywordsChanged {
			a.adapter.SetKeywordsAll(keywordBoosts(d.NewKeywords))
			a.log.Info("engine keywords updated", "count", len(d.NewKeywords))
		}
	}, opts...)
	if err != nil {
		return fmt.Errorf("app: watch config: %w", err)
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

// slogLevel maps a config log level onto slog's scale.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Run serves HTTP and pumps the archiver until ctx is cancelled, then shuts
// the listener down gracefully. Always returns a non-nil error; a clean
// shutdown returns ctx's cause.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.archiver != nil {
		sub := a.broker.SubscribeAll()
		g.Go(func() error {
			a.archiver.Run(ctx, sub)
			return nil
		})
	}

	g.Go(func() error {
		a.log.Info("listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutCtx); err != nil {
			a.log.Warn("http shutdown", "error", err)
		}
		return ctx.Err()
	})

	return g.Wait()
}

// Shutdown releases everything New acquired. Safe to call more than once.
// It respects the context deadline: remaining closers are skipped once ctx
// expires.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		// Stop live sessions first so their final events still reach the
		// archiver and subscribers.
		for _, sess := range a.sessions.All() {
			a.orch.Cleanup(sess.ID())
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
