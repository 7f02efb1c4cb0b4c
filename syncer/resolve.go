package syncer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/eringen/newsmirror/store"
	"github.com/eringen/newsmirror/wordpress"
)

// ResolvePost returns the cached post or fetches and caches it. A miss or an
// unreachable upstream is reported as store.ErrNotFound.
func (m *Manager) ResolvePost(ctx context.Context, id int64) (wordpress.Post, error) {
	if p, err := m.store.Post(id); err == nil {
		return p, nil
	}
	p, err := m.src.GetPost(ctx, id)
	if err != nil {
		return wordpress.Post{}, m.upstreamMiss("post", zap.Int64("id", id), err)
	}
	m.store.SavePost(p)
	return p, nil
}

// ResolvePostBySlug is ResolvePost keyed by slug.
func (m *Manager) ResolvePostBySlug(ctx context.Context, slug string) (wordpress.Post, error) {
	if p, err := m.store.PostBySlug(slug); err == nil {
		return p, nil
	}
	p, err := m.src.GetPostBySlug(ctx, slug)
	if err != nil {
		return wordpress.Post{}, m.upstreamMiss("post", zap.String("slug", slug), err)
	}
	m.store.SavePost(p)
	return p, nil
}

// ResolveMedia returns the cached attachment or fetches it.
func (m *Manager) ResolveMedia(ctx context.Context, id int64) (wordpress.Media, error) {
	if md, err := m.store.Media(id); err == nil {
		return md, nil
	}
	media, err := m.src.ListMedia(ctx, []int64{id})
	if err != nil {
		return wordpress.Media{}, m.upstreamMiss("media", zap.Int64("id", id), err)
	}
	for _, md := range media {
		m.store.SaveMedia(md)
	}
	return m.store.Media(id)
}

// ResolveAuthor returns the cached author or fetches it.
func (m *Manager) ResolveAuthor(ctx context.Context, id int64) (wordpress.Author, error) {
	if a, err := m.store.Author(id); err == nil {
		return a, nil
	}
	authors, err := m.src.ListAuthors(ctx, []int64{id})
	if err != nil {
		return wordpress.Author{}, m.upstreamMiss("author", zap.Int64("id", id), err)
	}
	for _, a := range authors {
		m.store.SaveAuthor(a)
	}
	return m.store.Author(id)
}

// upstreamMiss logs a failed on-demand fetch and reports it as store.ErrNotFound.
func (m *Manager) upstreamMiss(kind string, key zap.Field, err error) error {
	if !errors.Is(err, wordpress.ErrNotFound) {
		m.log.Warn(kind+" fetch failed", key, zap.Error(err))
	}
	return store.ErrNotFound
}
