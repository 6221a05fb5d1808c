package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

var syncTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestUpsertPeople_IsTenantScoped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ann := domain.Person{UpstreamID: "42", FirstName: "Ann", LastName: "Lee", Email: "ann@example.org", SyncedAt: syncTime}
	if err := store.UpsertPeople(ctx, "t-1", []domain.Person{ann}); err != nil {
		t.Fatalf("UpsertPeople failed: %v", err)
	}
	if err := store.UpsertPeople(ctx, "t-2", []domain.Person{{UpstreamID: "42", FirstName: "Bob", SyncedAt: syncTime}}); err != nil {
		t.Fatalf("UpsertPeople failed: %v", err)
	}

	got, err := store.ListPeople(ctx, "t-1")
	if err != nil {
		t.Fatalf("ListPeople failed: %v", err)
	}
	if diff := cmp.Diff([]domain.Person{ann}, got); diff != "" {
		t.Errorf("ListPeople mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsertPeople_RefreshesExistingRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := domain.Person{UpstreamID: "42", FirstName: "Ann", LastName: "Lee", SyncedAt: syncTime}
	if err := store.UpsertPeople(ctx, "t-1", []domain.Person{p}); err != nil {
		t.Fatalf("UpsertPeople failed: %v", err)
	}
	p.Email = "ann.lee@example.org"
	if err := store.UpsertPeople(ctx, "t-1", []domain.Person{p}); err != nil {
		t.Fatalf("UpsertPeople failed: %v", err)
	}

	got, err := store.ListPeople(ctx, "t-1")
	if err != nil {
		t.Fatalf("ListPeople failed: %v", err)
	}
	if len(got) != 1 || got[0].Email != "ann.lee@example.org" {
		t.Errorf("ListPeople = %+v, want one refreshed row", got)
	}
}

func TestSongsByTheme(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	scheduled := time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)
	songs := []domain.Song{
		{UpstreamID: "1", Title: "O Holy Night", Themes: []string{"Christmas", "Worship"}, LastScheduledAt: &scheduled, SyncedAt: syncTime},
		{UpstreamID: "2", Title: "Christ Arose", Themes: []string{"Easter"}, SyncedAt: syncTime},
		{UpstreamID: "3", Title: "Away in a Manger", CCLINumber: "27005", Themes: []string{"christmas"}, SyncedAt: syncTime},
		{UpstreamID: "4", Title: "Untagged", SyncedAt: syncTime},
	}
	if err := store.UpsertSongs(ctx, "t-1", songs); err != nil {
		t.Fatalf("UpsertSongs failed: %v", err)
	}

	got, err := store.SongsByTheme(ctx, "t-1", "Christmas")
	if err != nil {
		t.Fatalf("SongsByTheme failed: %v", err)
	}
	want := []domain.Song{songs[2], songs[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SongsByTheme mismatch (-want +got):\n%s", diff)
	}

	other, err := store.SongsByTheme(ctx, "t-2", "Christmas")
	if err != nil {
		t.Fatalf("SongsByTheme failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("other tenant sees %d songs, want 0", len(other))
	}
}

func TestReplaceTeams(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := []domain.Team{{UpstreamID: "9", Name: "Old Team", SyncedAt: syncTime}}
	if err := store.ReplaceTeams(ctx, "t-1", old); err != nil {
		t.Fatalf("ReplaceTeams failed: %v", err)
	}

	teams := []domain.Team{
		{
			UpstreamID:    "3",
			ServiceTypeID: "1",
			Name:          "Band",
			Position:      "Vocals",
			SyncedAt:      syncTime,
			Members: []domain.TeamMember{
				{PersonID: "42", Name: "Ann Lee", Email: "ann@example.org", Status: "active"},
				{PersonID: "43", Name: "Bob Ray", Status: "active"},
			},
		},
		{UpstreamID: "4", ServiceTypeID: "1", Name: "Audio", SyncedAt: syncTime},
	}
	if err := store.ReplaceTeams(ctx, "t-1", teams); err != nil {
		t.Fatalf("ReplaceTeams failed: %v", err)
	}

	got, err := store.ListTeams(ctx, "t-1")
	if err != nil {
		t.Fatalf("ListTeams failed: %v", err)
	}
	want := []domain.Team{teams[1], teams[0]}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("ListTeams mismatch (-want +got):\n%s", diff)
	}
}

func TestListTeams_Empty(t *testing.T) {
	store := newTestStore(t)

	got, err := store.ListTeams(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("ListTeams failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d teams, want 0", len(got))
	}
}
