// Package syncer keeps the store in step with upstream: a fixed-cadence
// cycle refreshes taxonomies, recent posts, a rotating category batch and
// occasionally pages, then rebuilds the search index and evicts old posts.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/eringen/newsmirror/search"
	"github.com/eringen/newsmirror/store"
	"github.com/eringen/newsmirror/wordpress"
)

// Source is the upstream the manager pulls from. *wordpress.Client
// satisfies it.
type Source interface {
	CheckStatus(ctx context.Context) bool
	ListCategories(ctx context.Context, p wordpress.ListParams) (wordpress.ListResult[wordpress.Category], error)
	ListTags(ctx context.Context, p wordpress.ListParams) (wordpress.ListResult[wordpress.Tag], error)
	ListPosts(ctx context.Context, p wordpress.ListParams) (wordpress.ListResult[wordpress.Post], error)
	PostsByCategory(ctx context.Context, categoryID int64, p wordpress.ListParams) (wordpress.ListResult[wordpress.Post], error)
	ListPages(ctx context.Context, p wordpress.ListParams) (wordpress.ListResult[wordpress.Page], error)
	GetPost(ctx context.Context, id int64) (wordpress.Post, error)
	GetPostBySlug(ctx context.Context, slug string) (wordpress.Post, error)
	ListMedia(ctx context.Context, ids []int64) ([]wordpress.Media, error)
	ListAuthors(ctx context.Context, ids []int64) ([]wordpress.Author, error)
}

var _ Source = (*wordpress.Client)(nil)

// Config tunes a Manager. Zero fields take the defaults below.
type Config struct {
	Interval         time.Duration
	RecentPosts      int
	CategoryBatch    int
	TaxonomyPageSize int
	PagesEvery       int
	PageBatch        int
	RetainPosts      int
	JournalKeep      int
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = 25 * time.Second
	}
	if c.RecentPosts <= 0 {
		c.RecentPosts = 8
	}
	if c.CategoryBatch <= 0 {
		c.CategoryBatch = 5
	}
	if c.TaxonomyPageSize <= 0 {
		c.TaxonomyPageSize = 100
	}
	if c.PagesEvery <= 0 {
		c.PagesEvery = 10
	}
	if c.PageBatch <= 0 {
		c.PageBatch = 20
	}
	if c.RetainPosts <= 0 {
		c.RetainPosts = 500
	}
	if c.JournalKeep <= 0 {
		c.JournalKeep = 1000
	}
}

// Status is the manager's own view of the schedule.
type Status struct {
	IsSync               bool      `json:"isSync"`
	LastSyncTime         time.Time `json:"lastSyncTime"`
	NextSyncTime         time.Time `json:"nextSyncTime"`
	CurrentCategoryIndex int       `json:"currentCategoryIndex"`
}

// Option configures optional Manager dependencies.
type Option func(*Manager)

// WithJournal records every cycle in j.
func WithJournal(j *Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithRegisterer registers the sync metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) { m.reg = reg }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager runs sync cycles. At most one cycle runs at a time; requests that
// arrive while one is running are dropped, not queued.
type Manager struct {
	src     Source
	store   *store.Store
	index   *search.Index
	log     *zap.Logger
	cfg     Config
	journal *Journal
	reg     prometheus.Registerer
	metrics *metrics
	now     func() time.Time

	syncing atomic.Bool
	wg      sync.WaitGroup

	mu            sync.Mutex
	lastSync      time.Time
	categoryIndex int
	cycles        int
	baseCtx       context.Context
	stopped       bool
}

// NewManager creates a Manager. It does not start the schedule.
func NewManager(src Source, st *store.Store, idx *search.Index, log *zap.Logger, cfg Config, opts ...Option) *Manager {
	cfg.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		src:     src,
		store:   st,
		index:   idx,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.metrics = newMetrics(m.reg)
	m.lastSync = m.now()
	return m
}

// Start runs one cycle immediately and then one per interval until ctx is
// done or the returned stop function is called. Stop waits for an in-flight
// cycle to finish.
func (m *Manager) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.baseCtx = ctx
	m.stopped = false
	m.mu.Unlock()

	ticker := time.NewTicker(m.cfg.Interval)
	done := make(chan struct{})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		m.RunOnce(ctx)
		for {
			select {
			case <-ticker.C:
				m.RunOnce(ctx)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	m.log.Info("sync manager started", zap.Duration("interval", m.cfg.Interval))

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.stopped = true
			m.mu.Unlock()
			close(done)
			m.wg.Wait()
			cancel()
			m.log.Info("sync manager stopped")
		})
	}
}

// Trigger starts a cycle in the background. It reports false when a cycle
// is already running or the schedule has been stopped, in which case
// nothing is scheduled.
func (m *Manager) Trigger() bool {
	if m.syncing.Load() {
		m.log.Info("sync already in progress, skipping trigger")
		m.metrics.skipped.Inc()
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx := m.baseCtx
	if m.stopped || ctx.Err() != nil {
		m.log.Info("sync manager stopped, ignoring trigger")
		return false
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.RunOnce(ctx)
	}()
	return true
}

// Wait blocks until every cycle started by Start or Trigger has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// RunOnce runs a full cycle synchronously. It returns false without doing
// anything, not even a status check, when another cycle holds the flag.
func (m *Manager) RunOnce(ctx context.Context) bool {
	if !m.syncing.CompareAndSwap(false, true) {
		m.log.Info("sync already in progress, skipping")
		m.metrics.skipped.Inc()
		return false
	}
	defer m.syncing.Store(false)

	started := m.now()
	online, err := m.cycle(ctx)
	finished := m.now()

	m.mu.Lock()
	m.lastSync = finished
	m.mu.Unlock()

	outcome := "ok"
	switch {
	case !online:
		outcome = "offline"
	case err != nil:
		outcome = "partial"
	}
	m.metrics.cycles.WithLabelValues(outcome).Inc()
	m.metrics.duration.Observe(finished.Sub(started).Seconds())
	m.metrics.posts.Set(float64(m.store.PostsCount()))
	m.metrics.indexed.Set(float64(m.index.Len()))

	m.record(ctx, started, finished, online, err)
	return true
}

// Status reports whether a cycle is running and when the next is due.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		IsSync:               m.syncing.Load(),
		LastSyncTime:         m.lastSync,
		NextSyncTime:         m.lastSync.Add(m.cfg.Interval),
		CurrentCategoryIndex: m.categoryIndex,
	}
}

// Interval returns the configured cycle period.
func (m *Manager) Interval() time.Duration {
	return m.cfg.Interval
}

// History returns up to limit journaled runs, newest first. Without a
// journal it returns an empty list.
func (m *Manager) History(ctx context.Context, limit int) ([]Run, error) {
	if m.journal == nil {
		return []Run{}, nil
	}
	return m.journal.Recent(ctx, limit)
}

// cycle performs steps after the guard. Sub-step failures are logged and
// joined into err without aborting the cycle; online is false when upstream
// did not answer or the cycle panicked.
func (m *Manager) cycle(ctx context.Context) (online bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("sync cycle panicked", zap.Any("panic", r), zap.Stack("stack"))
			m.writeStatus(false)
			online = false
			err = fmt.Errorf("sync cycle panicked: %v", r)
		}
	}()

	m.log.Debug("starting sync")
	if !m.src.CheckStatus(ctx) {
		m.log.Warn("upstream is not responding")
		m.metrics.online.Set(0)
		m.writeStatus(false)
		return false, nil
	}
	m.metrics.online.Set(1)

	var errs []error
	step := func(name string, fn func(context.Context) (int, error)) {
		n, err := fn(ctx)
		if err != nil {
			m.log.Error("sync step failed", zap.String("step", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		m.log.Debug("sync step done", zap.String("step", name), zap.Int("count", n))
	}

	step("categories", m.syncCategories)
	step("tags", m.syncTags)
	step("recent posts", m.syncRecentPosts)
	step("category batch", m.syncCategoryBatch)
	if m.pagesDue() {
		step("pages", m.syncPages)
	}

	n := m.index.Rebuild(m.store.AllPosts(), m.store.AllCategories(), m.store.AllTags())
	m.log.Debug("search index rebuilt", zap.Int("entries", n))

	m.writeStatus(true)
	m.retain()

	return true, errors.Join(errs...)
}

func (m *Manager) syncCategories(ctx context.Context) (int, error) {
	res, err := m.src.ListCategories(ctx, wordpress.ListParams{PerPage: m.cfg.TaxonomyPageSize})
	if err != nil {
		return 0, err
	}
	for _, c := range res.Data {
		m.store.SaveCategory(c)
	}
	return len(res.Data), nil
}

func (m *Manager) syncTags(ctx context.Context) (int, error) {
	res, err := m.src.ListTags(ctx, wordpress.ListParams{PerPage: m.cfg.TaxonomyPageSize})
	if err != nil {
		return 0, err
	}
	for _, t := range res.Data {
		m.store.SaveTag(t)
	}
	return len(res.Data), nil
}

func (m *Manager) syncRecentPosts(ctx context.Context) (int, error) {
	res, err := m.src.ListPosts(ctx, wordpress.ListParams{
		PerPage: m.cfg.RecentPosts,
		OrderBy: "date",
		Order:   "desc",
	})
	if err != nil {
		return 0, err
	}
	for _, p := range res.Data {
		m.store.SavePost(p)
	}
	return len(res.Data), nil
}

// syncCategoryBatch refreshes a few posts from the next category in
// popularity order. The cursor wraps around the current category list.
func (m *Manager) syncCategoryBatch(ctx context.Context) (int, error) {
	cats := m.store.AllCategories()
	if len(cats) == 0 {
		m.log.Debug("no categories available for rotation")
		return 0, nil
	}
	m.mu.Lock()
	i := m.categoryIndex % len(cats)
	m.categoryIndex = (i + 1) % len(cats)
	m.mu.Unlock()

	cat := cats[i]
	res, err := m.src.PostsByCategory(ctx, cat.ID, wordpress.ListParams{PerPage: m.cfg.CategoryBatch})
	if err != nil {
		return 0, fmt.Errorf("category %s: %w", cat.Slug, err)
	}
	for _, p := range res.Data {
		m.store.SavePost(p)
	}
	return len(res.Data), nil
}

// pagesDue counts online cycles and reports true on every PagesEvery-th,
// starting with the first.
func (m *Manager) pagesDue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	due := m.cycles%m.cfg.PagesEvery == 0
	m.cycles++
	return due
}

func (m *Manager) syncPages(ctx context.Context) (int, error) {
	res, err := m.src.ListPages(ctx, wordpress.ListParams{PerPage: m.cfg.PageBatch})
	if err != nil {
		return 0, err
	}
	for _, p := range res.Data {
		m.store.SavePage(p)
	}
	return len(res.Data), nil
}

func (m *Manager) writeStatus(online bool) {
	now := m.now()
	m.store.SetSyncStatus(store.SyncStatus{
		LastSync:        now,
		PostsCount:      m.store.PostsCount(),
		CategoriesCount: m.store.CategoriesCount(),
		TagsCount:       m.store.TagsCount(),
		IsOnline:        online,
		NextSync:        now.Add(m.cfg.Interval),
	})
}

func (m *Manager) retain() {
	if removed := m.store.RetainRecentPosts(m.cfg.RetainPosts); removed > 0 {
		m.metrics.evicted.Add(float64(removed))
		m.log.Info("evicted old posts", zap.Int("removed", removed), zap.Int("kept", m.cfg.RetainPosts))
	}
	if dropped := m.index.Cleanup(m.store.PostIDs()); dropped > 0 {
		m.log.Debug("search index cleaned", zap.Int("dropped", dropped))
	}
}

func (m *Manager) record(ctx context.Context, started, finished time.Time, online bool, cycleErr error) {
	if m.journal == nil {
		return
	}
	st := m.store.SyncStatus()
	run := Run{
		ID:              uuid.NewString(),
		StartedAt:       started,
		FinishedAt:      finished,
		Online:          online,
		PostsCount:      st.PostsCount,
		CategoriesCount: st.CategoriesCount,
		TagsCount:       st.TagsCount,
		DurationMS:      finished.Sub(started).Milliseconds(),
	}
	if cycleErr != nil {
		run.Error = cycleErr.Error()
	}
	// The journal outlives a cancelled cycle context.
	ctx = context.WithoutCancel(ctx)
	if err := m.journal.Record(ctx, run); err != nil {
		m.log.Warn("journal write failed", zap.Error(err))
		return
	}
	if _, err := m.journal.Prune(ctx, m.cfg.JournalKeep); err != nil {
		m.log.Warn("journal prune failed", zap.Error(err))
	}
}
