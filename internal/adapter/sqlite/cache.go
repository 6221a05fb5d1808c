package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

// UpsertPeople inserts or refreshes cached people keyed by (tenant, upstream id).
func (s *Store) UpsertPeople(ctx context.Context, tenantID string, people []domain.Person) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO people (tenant_id, upstream_id, first_name, last_name, email, phone, status, synced_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (tenant_id, upstream_id) DO UPDATE SET
				first_name = excluded.first_name,
				last_name = excluded.last_name,
				email = excluded.email,
				phone = excluded.phone,
				status = excluded.status,
				synced_at = excluded.synced_at`)
		if err != nil {
			return fmt.Errorf("preparing people upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range people {
			if _, err := stmt.ExecContext(ctx, tenantID, p.UpstreamID, p.FirstName, p.LastName,
				p.Email, p.Phone, p.Status, syncedAt(p.SyncedAt)); err != nil {
				return fmt.Errorf("upserting person %s: %w", p.UpstreamID, err)
			}
		}
		return nil
	})
}

// ListPeople returns the tenant's cached people ordered by name.
func (s *Store) ListPeople(ctx context.Context, tenantID string) ([]domain.Person, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT upstream_id, first_name, last_name, email, phone, status, synced_at
		 FROM people WHERE tenant_id = ?
		 ORDER BY last_name, first_name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing people: %w", err)
	}
	defer rows.Close()

	var people []domain.Person
	for rows.Next() {
		var p domain.Person
		var synced string
		if err := rows.Scan(&p.UpstreamID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.Status, &synced); err != nil {
			return nil, fmt.Errorf("scanning person row: %w", err)
		}
		p.SyncedAt, _ = time.Parse(timeFormat, synced)
		people = append(people, p)
	}
	return people, rows.Err()
}

// UpsertSongs inserts or refreshes cached songs keyed by (tenant, upstream id).
func (s *Store) UpsertSongs(ctx context.Context, tenantID string, songs []domain.Song) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO songs (tenant_id, upstream_id, title, author, ccli_number, themes, last_scheduled_at, synced_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (tenant_id, upstream_id) DO UPDATE SET
				title = excluded.title,
				author = excluded.author,
				ccli_number = excluded.ccli_number,
				themes = excluded.themes,
				last_scheduled_at = excluded.last_scheduled_at,
				synced_at = excluded.synced_at`)
		if err != nil {
			return fmt.Errorf("preparing song upsert: %w", err)
		}
		defer stmt.Close()

		for _, song := range songs {
			themes := song.Themes
			if themes == nil {
				themes = []string{}
			}
			encoded, err := json.Marshal(themes)
			if err != nil {
				return fmt.Errorf("encoding themes for song %s: %w", song.UpstreamID, err)
			}
			if _, err := stmt.ExecContext(ctx, tenantID, song.UpstreamID, song.Title, song.Author,
				song.CCLINumber, string(encoded), formatNullTime(song.LastScheduledAt),
				syncedAt(song.SyncedAt)); err != nil {
				return fmt.Errorf("upserting song %s: %w", song.UpstreamID, err)
			}
		}
		return nil
	})
}

// SongsByTheme returns cached songs tagged with theme, compared case-insensitively.
func (s *Store) SongsByTheme(ctx context.Context, tenantID, theme string) ([]domain.Song, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.upstream_id, s.title, s.author, s.ccli_number, s.themes, s.last_scheduled_at, s.synced_at
		 FROM songs s
		 WHERE s.tenant_id = ?
		   AND EXISTS (SELECT 1 FROM json_each(s.themes) t WHERE lower(t.value) = lower(?))
		 ORDER BY s.title`, tenantID, theme)
	if err != nil {
		return nil, fmt.Errorf("querying songs by theme: %w", err)
	}
	defer rows.Close()

	var songs []domain.Song
	for rows.Next() {
		var song domain.Song
		var themes, synced string
		var lastScheduled sql.NullString
		if err := rows.Scan(&song.UpstreamID, &song.Title, &song.Author, &song.CCLINumber,
			&themes, &lastScheduled, &synced); err != nil {
			return nil, fmt.Errorf("scanning song row: %w", err)
		}
		if err := json.Unmarshal([]byte(themes), &song.Themes); err != nil {
			return nil, fmt.Errorf("decoding themes for song %s: %w", song.UpstreamID, err)
		}
		song.LastScheduledAt = parseNullTime(lastScheduled)
		song.SyncedAt, _ = time.Parse(timeFormat, synced)
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// ReplaceTeams swaps the tenant's cached teams and memberships for teams.
func (s *Store) ReplaceTeams(ctx context.Context, tenantID string, teams []domain.Team) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM team_members WHERE tenant_id = ?`, tenantID); err != nil {
			return fmt.Errorf("clearing team members: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM teams WHERE tenant_id = ?`, tenantID); err != nil {
			return fmt.Errorf("clearing teams: %w", err)
		}

		for _, team := range teams {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO teams (tenant_id, upstream_id, service_type_id, name, position, synced_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				tenantID, team.UpstreamID, team.ServiceTypeID, team.Name, team.Position,
				syncedAt(team.SyncedAt)); err != nil {
				return fmt.Errorf("inserting team %s: %w", team.UpstreamID, err)
			}
			for _, m := range team.Members {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO team_members (tenant_id, team_id, person_id, name, email, status)
					 VALUES (?, ?, ?, ?, ?, ?)
					 ON CONFLICT (tenant_id, team_id, person_id) DO NOTHING`,
					tenantID, team.UpstreamID, m.PersonID, m.Name, m.Email, m.Status); err != nil {
					return fmt.Errorf("inserting member %s of team %s: %w", m.PersonID, team.UpstreamID, err)
				}
			}
		}
		return nil
	})
}

// ListTeams returns the tenant's cached teams with their members.
func (s *Store) ListTeams(ctx context.Context, tenantID string) ([]domain.Team, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT upstream_id, service_type_id, name, position, synced_at
		 FROM teams WHERE tenant_id = ?
		 ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}

	var teams []domain.Team
	index := make(map[string]int)
	for rows.Next() {
		var team domain.Team
		var synced string
		if err := rows.Scan(&team.UpstreamID, &team.ServiceTypeID, &team.Name, &team.Position, &synced); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning team row: %w", err)
		}
		team.SyncedAt, _ = time.Parse(timeFormat, synced)
		index[team.UpstreamID] = len(teams)
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(teams) == 0 {
		return nil, nil
	}

	// A second query only after the first result set is closed: the pool has one connection.
	members, err := s.db.QueryContext(ctx,
		`SELECT team_id, person_id, name, email, status
		 FROM team_members WHERE tenant_id = ?
		 ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing team members: %w", err)
	}
	defer members.Close()

	for members.Next() {
		var teamID string
		var m domain.TeamMember
		if err := members.Scan(&teamID, &m.PersonID, &m.Name, &m.Email, &m.Status); err != nil {
			return nil, fmt.Errorf("scanning team member row: %w", err)
		}
		if i, ok := index[teamID]; ok {
			teams[i].Members = append(teams[i].Members, m)
		}
	}
	return teams, members.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func syncedAt(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeFormat)
}
