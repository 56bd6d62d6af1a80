package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepository keeps releases in process. Used when no database is configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	releases map[string]Release
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{releases: make(map[string]Release)}
}

// Get returns a copy of the stored release.
func (m *MemoryRepository) Get(_ context.Context, date string) (Release, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rel, ok := m.releases[date]
	if !ok {
		return Release{}, fmt.Errorf("%w: %s", ErrNotFound, date)
	}
	return rel.Clone(), nil
}

// Save validates every release before storing any of them.
func (m *MemoryRepository) Save(_ context.Context, releases ...Release) error {
	for _, rel := range releases {
		for _, item := range rel.Items {
			if err := item.Validate(); err != nil {
				return err
			}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rel := range releases {
		m.releases[rel.Date] = rel.Clone()
	}
	return nil
}

// ListOpen returns dates of releases not yet announced.
func (m *MemoryRepository) ListOpen(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var dates []string
	for date, rel := range m.releases {
		if !rel.Announced {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates, nil
}
