package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/neomorfeo/rosterlink/internal/app"
	"github.com/neomorfeo/rosterlink/internal/domain"
)

type searchSongsParams struct {
	Query string `json:"query" validate:"required" jsonschema:"search query for songs (title, author, etc.)"`
}

type getSongsByThemeParams struct {
	Theme string `json:"theme" validate:"required" jsonschema:"theme or tag to search for, e.g. Christmas or Easter"`
}

// SongView is a song as returned to the client.
type SongView struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Author   string     `json:"author"`
	CCLI     string     `json:"ccli,omitempty"`
	Themes   []string   `json:"themes"`
	LastUsed *time.Time `json:"lastUsed,omitempty"`
}

// SongsResult is the result of searchSongs and getSongsByTheme.
type SongsResult struct {
	Songs  []SongView `json:"songs"`
	Source string     `json:"source,omitempty"`
}

func songView(s domain.Song) SongView {
	v := SongView{
		ID:       s.UpstreamID,
		Title:    s.Title,
		Author:   s.Author,
		CCLI:     s.CCLINumber,
		Themes:   s.Themes,
		LastUsed: s.LastScheduledAt,
	}
	if v.Author == "" {
		v.Author = "Unknown"
	}
	if v.Themes == nil {
		v.Themes = []string{}
	}
	return v
}

func (c *catalog) searchSongs(ctx context.Context, call *app.Call, p searchSongsParams) (any, error) {
	up, err := call.Upstream(ctx)
	if err != nil {
		return nil, err
	}

	found, err := up.SearchSongs(ctx, p.Query)
	if err != nil {
		return nil, err
	}
	return c.cacheSongs(ctx, call.Tenant.TenantID, found.Data, sourceUpstream)
}

// getSongsByTheme answers from the record cache and only calls the upstream
// when nothing cached carries the theme.
func (c *catalog) getSongsByTheme(ctx context.Context, call *app.Call, p getSongsByThemeParams) (any, error) {
	cached, err := c.records.SongsByTheme(ctx, call.Tenant.TenantID, p.Theme)
	if err != nil {
		return nil, fmt.Errorf("reading cached songs: %w", err)
	}
	if len(cached) > 0 {
		result := SongsResult{Source: sourceCache, Songs: make([]SongView, 0, len(cached))}
		for _, s := range cached {
			result.Songs = append(result.Songs, songView(s))
		}
		return result, nil
	}

	up, err := call.Upstream(ctx)
	if err != nil {
		return nil, err
	}
	found, err := up.ListSongs(ctx, domain.QueryParams{"where[themes]": p.Theme})
	if err != nil {
		return nil, err
	}
	return c.cacheSongs(ctx, call.Tenant.TenantID, found.Data, sourceUpstream)
}

func (c *catalog) cacheSongs(ctx context.Context, tenantID string, data []domain.Resource[domain.SongAttributes], source string) (SongsResult, error) {
	now := c.now()
	songs := make([]domain.Song, 0, len(data))
	result := SongsResult{Source: source, Songs: make([]SongView, 0, len(data))}
	for _, r := range data {
		song := domain.SongFromResource(r, now)
		songs = append(songs, song)
		result.Songs = append(result.Songs, songView(song))
	}

	if err := c.records.UpsertSongs(ctx, tenantID, songs); err != nil {
		return SongsResult{}, fmt.Errorf("caching songs: %w", err)
	}
	return result, nil
}
