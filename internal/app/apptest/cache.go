package apptest

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

var (
	_ domain.RecordCache = (*Cache)(nil)
	_ domain.QueryCache  = (*QueryCache)(nil)
)

// Cache is an in-memory domain.RecordCache.
type Cache struct {
	mu     sync.Mutex
	people map[string]map[string]domain.Person
	songs  map[string]map[string]domain.Song
	teams  map[string][]domain.Team
	// Err, when set, is returned by every method.
	Err error
}

// NewCache returns an empty record cache.
func NewCache() *Cache {
	return &Cache{
		people: make(map[string]map[string]domain.Person),
		songs:  make(map[string]map[string]domain.Song),
		teams:  make(map[string][]domain.Team),
	}
}

func (c *Cache) UpsertPeople(_ context.Context, tenantID string, people []domain.Person) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	if c.people[tenantID] == nil {
		c.people[tenantID] = make(map[string]domain.Person)
	}
	for _, p := range people {
		c.people[tenantID][p.UpstreamID] = p
	}
	return nil
}

func (c *Cache) ListPeople(_ context.Context, tenantID string) ([]domain.Person, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	var out []domain.Person
	for _, p := range c.people[tenantID] {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Person) int {
		return cmp.Or(cmp.Compare(a.LastName, b.LastName), cmp.Compare(a.FirstName, b.FirstName))
	})
	return out, nil
}

func (c *Cache) UpsertSongs(_ context.Context, tenantID string, songs []domain.Song) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	if c.songs[tenantID] == nil {
		c.songs[tenantID] = make(map[string]domain.Song)
	}
	for _, s := range songs {
		c.songs[tenantID][s.UpstreamID] = s
	}
	return nil
}

func (c *Cache) SongsByTheme(_ context.Context, tenantID, theme string) ([]domain.Song, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	var out []domain.Song
	for _, s := range c.songs[tenantID] {
		if slices.ContainsFunc(s.Themes, func(t string) bool { return strings.EqualFold(t, theme) }) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b domain.Song) int { return cmp.Compare(a.Title, b.Title) })
	return out, nil
}

func (c *Cache) ReplaceTeams(_ context.Context, tenantID string, teams []domain.Team) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.teams[tenantID] = slices.Clone(teams)
	return nil
}

func (c *Cache) ListTeams(_ context.Context, tenantID string) ([]domain.Team, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return slices.Clone(c.teams[tenantID]), nil
}

// QueryCache is a map-backed domain.QueryCache without expiry.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]any
}

func (q *QueryCache) Get(key string) (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, ok := q.entries[key]
	return v, ok
}

func (q *QueryCache) Add(key string, value any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.entries == nil {
		q.entries = make(map[string]any)
	}
	q.entries[key] = value
}
