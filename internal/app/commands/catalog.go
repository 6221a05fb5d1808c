// Package commands defines the command catalog served by the dispatcher.
package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neomorfeo/rosterlink/internal/app"
	"github.com/neomorfeo/rosterlink/internal/domain"
)

// Deps are the stores the command handlers read from and write to.
type Deps struct {
	Records domain.RecordCache
	Queries domain.QueryCache
	// Now defaults to time.Now in UTC.
	Now domain.Clock
}

type catalog struct {
	records domain.RecordCache
	queries domain.QueryCache
	now     domain.Clock
}

// Catalog returns every command definition. help is added by the registry.
func Catalog(deps Deps) []app.Definition {
	c := &catalog{records: deps.Records, queries: deps.Queries, now: deps.Now}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}

	return []app.Definition{
		app.Define("searchPeople",
			"Search for people in Planning Center by name, email, or phone number.",
			c.searchPeople, app.NeedsUpstream()),
		app.Define("getPersonDetails",
			"Get detailed information about a specific person from Planning Center.",
			c.getPersonDetails, app.NeedsUpstream()),
		app.Define("searchSongs",
			"Search for songs in Planning Center by title, author, or other attributes.",
			c.searchSongs, app.NeedsUpstream()),
		app.Define("getSongsByTheme",
			"Find songs by theme or tag (e.g. Christmas, Easter, Worship).",
			c.getSongsByTheme),
		app.Define("getUpcomingServices",
			"Get a list of upcoming services (plans) from Planning Center Services.",
			c.getUpcomingServices),
		app.Define("getServiceDetails",
			"Get detailed information about a specific service plan.",
			c.getServiceDetails, app.NeedsUpstream()),
		app.Define("scheduleTeam",
			"Schedule team members for a service date with their positions.",
			c.scheduleTeam, app.NeedsUpstream(), app.AllowRoles(domain.RoleAdmin, domain.RoleLeader)),
		app.Define("checkAvailability",
			"Check team member availability for a date range, optionally for one team.",
			c.checkAvailability),
		app.Define("suggestTeamMembers",
			"Suggest team members who can fill a position on a service date.",
			c.suggestTeamMembers),
		app.Define("getTeamMembers",
			"Get all teams and their members from the organization.",
			c.getTeamMembers),
	}
}

// teams reads the tenant's teams from the record cache. On a miss it fetches
// them from the upstream and writes them through.
func (c *catalog) teams(ctx context.Context, call *app.Call) ([]domain.Team, string, error) {
	cached, err := c.records.ListTeams(ctx, call.Tenant.TenantID)
	if err != nil {
		return nil, "", fmt.Errorf("reading cached teams: %w", err)
	}
	if len(cached) > 0 {
		return cached, sourceCache, nil
	}

	up, err := call.Upstream(ctx)
	if err != nil {
		return nil, "", err
	}
	teams, err := app.FetchTeams(ctx, up, c.now())
	if err != nil {
		return nil, "", err
	}
	if err := c.records.ReplaceTeams(ctx, call.Tenant.TenantID, teams); err != nil {
		return nil, "", fmt.Errorf("caching teams: %w", err)
	}
	return teams, sourceUpstream, nil
}

const (
	sourceCache    = "cache"
	sourceUpstream = "upstream"
)

const dateLayout = "2006-01-02"

// asUpstream reports whether err is an upstream failure, storing it in target.
func asUpstream(err error, target **domain.Error) bool {
	return errors.As(err, target) && (*target).Kind == domain.KindUpstreamFailure
}
