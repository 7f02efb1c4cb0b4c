// Package newsmirror is a read-only news backend built with Go and Echo. It
// mirrors a WordPress site into memory on a fixed cadence, keeps a search
// index over the cached posts, and serves both through a JSON API.
//
// Users can swap the HTML status page via the ViewFuncs struct; the JSON
// surface is fixed.
package newsmirror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/eringen/newsmirror/logger"
	"github.com/eringen/newsmirror/search"
	"github.com/eringen/newsmirror/store"
	"github.com/eringen/newsmirror/syncer"
	"github.com/eringen/newsmirror/views"
	"github.com/eringen/newsmirror/wordpress"
)

// ViewFuncs holds the templ components the app renders for HTML routes.
type ViewFuncs struct {
	Status func(data views.StatusData) templ.Component
}

// DefaultViews returns the built-in views.
func DefaultViews() ViewFuncs {
	return ViewFuncs{Status: views.StatusPage}
}

// App is the central newsmirror application. It wires together the
// upstream client, store, search index, sync manager, and HTTP surface.
type App struct {
	Config SiteConfig
	Echo   *echo.Echo
	Store  *store.Store
	Index  *search.Index
	Sync   *syncer.Manager
	Views  ViewFuncs
	Log    *zap.Logger

	source         syncer.Source
	journal        *syncer.Journal
	registry       *prometheus.Registry
	triggerLimiter *TriggerLimiter
	customRoutes   []func(*App)
	started        time.Time
	stopSync       func()
	initialized    bool
}

// New creates a new App with the given configuration.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:  cfg,
		Echo:    echo.New(),
		Views:   DefaultViews(),
		started: time.Now(),
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// WithLogger makes the app log through log instead of building its own.
func WithLogger(log *zap.Logger) Option {
	return func(a *App) {
		a.Log = log
	}
}

// Init builds every component and registers middleware and routes without
// starting the sync schedule or the listener. Start calls it; tests call it
// directly and drive the app through Echo.ServeHTTP.
func (a *App) Init() error {
	if a.initialized {
		return nil
	}

	if a.Log == nil {
		log, err := logger.New(logger.Options{Env: a.Config.Env, Level: a.Config.LogLevel, File: a.Config.LogFile})
		if err != nil {
			return fmt.Errorf("newsmirror: init logger: %w", err)
		}
		a.Log = log
	}

	if a.source == nil {
		if err := a.Config.validate(); err != nil {
			return err
		}
		client, err := wordpress.NewClient(wordpress.Options{
			BaseURL:   a.Config.WPBaseURL,
			APIKey:    a.Config.WPAPIKey,
			UserAgent: a.Config.UserAgent,
			Timeout:   a.Config.RequestTimeout,
			RetryMax:  a.Config.RetryMax,
			Logger:    a.Log.Named("wordpress"),
		})
		if err != nil {
			return fmt.Errorf("newsmirror: init client: %w", err)
		}
		a.source = client
	}

	journal, err := syncer.OpenJournal(a.Config.JournalPath)
	if err != nil {
		return fmt.Errorf("newsmirror: init journal: %w", err)
	}
	a.journal = journal

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.Store = store.New()
	a.Index = search.NewIndex(a.Config.Name)
	a.Sync = syncer.NewManager(a.source, a.Store, a.Index, a.Log.Named("sync"), syncer.Config{
		Interval:      a.Config.SyncInterval,
		RecentPosts:   a.Config.RecentPosts,
		CategoryBatch: a.Config.CategoryBatch,
		PagesEvery:    a.Config.PagesEvery,
		RetainPosts:   a.Config.RetainPosts,
	}, syncer.WithJournal(journal), syncer.WithRegisterer(a.registry))

	a.triggerLimiter = NewTriggerLimiter(a.Config.TriggerLimit, a.Config.TriggerWindow)

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}

	a.initialized = true
	return nil
}

// Start initializes the app, starts the sync schedule, and serves HTTP until
// the server is shut down.
func (a *App) Start() error {
	if err := a.Init(); err != nil {
		return err
	}

	a.stopSync = a.Sync.Start(context.Background())

	a.Log.Info("listening", zap.String("addr", a.Config.Addr), zap.String("upstream", a.Config.WPBaseURL))
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones, stops the
// sync schedule and releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	return err
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.GET("/", a.handleStatusPage)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: a.registry}))

	api := e.Group("/api")

	api.GET("/posts", a.handlePosts)
	api.GET("/posts/recent", a.handleRecentPosts)
	api.GET("/posts/slug/:slug", a.handlePostBySlug)
	api.GET("/posts/:id", a.handlePost)

	api.GET("/categories", a.handleCategories)
	api.GET("/categories/:slug", a.handleCategory)

	api.GET("/tags", a.handleTags)
	api.GET("/tags/popular", a.handlePopularTags)
	api.GET("/tags/:slug", a.handleTag)

	api.GET("/pages", a.handlePages)
	api.GET("/pages/:slug", a.handlePage)

	api.GET("/media/:id", a.handleMedia)
	api.GET("/authors/:id", a.handleAuthor)

	api.GET("/search", a.handleSearch)

	api.GET("/sync/status", a.handleSyncStatus)
	api.GET("/sync/history", a.handleSyncHistory)
	api.POST("/sync/trigger", a.handleSyncTrigger)

	api.GET("/health", a.handleHealth)
}

// Close stops the sync schedule and releases resources. Call this when the
// app is shutting down.
func (a *App) Close() error {
	if a.stopSync != nil {
		a.stopSync()
		a.stopSync = nil
	}
	if a.Sync != nil {
		a.Sync.Wait()
	}
	if a.triggerLimiter != nil {
		a.triggerLimiter.Stop()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			return fmt.Errorf("newsmirror: close journal: %w", err)
		}
		a.journal = nil
	}
	if a.Log != nil {
		_ = a.Log.Sync()
	}
	return nil
}
