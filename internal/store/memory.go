package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/serroba/shortlink/internal/shortener"
)

// MemoryStore is an in-memory implementation of shortener.Repository and
// shortener.ClickRepository.
type MemoryStore struct {
	mu     sync.RWMutex
	links  map[shortener.Code]shortener.Link
	clicks map[shortener.Code][]shortener.ClickEvent
	nextID int64
}

// NewMemoryStore creates a new in-memory link store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:  make(map[shortener.Code]shortener.Link),
		clicks: make(map[shortener.Code][]shortener.ClickEvent),
	}
}

func (m *MemoryStore) Insert(_ context.Context, link *shortener.Link, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.links[link.Code]; ok && !existing.ExpiredAt(now) {
		return shortener.ErrCodeTaken
	}

	m.links[link.Code] = *link
	delete(m.clicks, link.Code)

	return nil
}

func (m *MemoryStore) GetByCode(_ context.Context, code shortener.Code) (*shortener.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.links[code]
	if !ok {
		return nil, shortener.ErrNotFound
	}

	return &link, nil
}

func (m *MemoryStore) Delete(_ context.Context, code shortener.Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.links, code)
	delete(m.clicks, code)

	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64

	for code, link := range m.links {
		if link.ExpiredAt(now) {
			delete(m.links, code)
			delete(m.clicks, code)

			purged++
		}
	}

	return purged, nil
}

func (m *MemoryStore) Append(_ context.Context, click *shortener.ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	click.ID = m.nextID
	m.clicks[click.Code] = append(m.clicks[click.Code], *click)

	return nil
}

func (m *MemoryStore) ListByCode(_ context.Context, code shortener.Code) ([]shortener.ClickEvent, error) {
	m.mu.RLock()
	clicks := append([]shortener.ClickEvent(nil), m.clicks[code]...)
	m.mu.RUnlock()

	// Appends are ordered by ID; a stable sort keeps that order among equal timestamps.
	sort.SliceStable(clicks, func(i, j int) bool {
		return clicks[i].ClickedAt.Before(clicks[j].ClickedAt)
	})

	return clicks, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Compile-time checks.
var (
	_ shortener.Repository      = (*MemoryStore)(nil)
	_ shortener.ClickRepository = (*MemoryStore)(nil)
)
