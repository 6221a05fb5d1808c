package planningcenter_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/neomorfeo/rosterlink/internal/adapter/planningcenter"
	"github.com/neomorfeo/rosterlink/internal/domain"
	"github.com/neomorfeo/rosterlink/internal/ratelimit"
)

var testCreds = domain.Credentials{ClientID: "app-id", ClientSecret: "app-secret"}

func newClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*planningcenter.Config)) *planningcenter.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := planningcenter.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.HTTPClient = srv.Client()
	for _, m := range mutate {
		m(&cfg)
	}

	c, err := planningcenter.New(cfg, testCreds)
	if err != nil {
		t.Fatalf("planningcenter.New() error = %v", err)
	}
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		t.Errorf("write response: %v", err)
	}
}

func TestClient_SendsCredentialsAndUserAgent(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "app-id" || pass != "app-secret" {
			t.Errorf("basic auth = %q/%q (ok=%v)", user, pass, ok)
		}
		if got := r.Header.Get("User-Agent"); got != planningcenter.DefaultUserAgent {
			t.Errorf("User-Agent = %q, want %q", got, planningcenter.DefaultUserAgent)
		}
		writeJSON(t, w, http.StatusOK, `{"data":[]}`)
	})

	if _, err := c.ListServiceTypes(context.Background()); err != nil {
		t.Fatalf("ListServiceTypes() error = %v", err)
	}
}

func TestClient_ListPeoplePassesQueryThrough(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/people/v2/people" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("where[search_name_or_email]"); got != "ann" {
			t.Errorf("where[search_name_or_email] = %q, want ann", got)
		}
		writeJSON(t, w, http.StatusOK, `{
			"data": [{
				"id": "42",
				"type": "Person",
				"attributes": {
					"first_name": "Ann",
					"last_name": "Lee",
					"status": "active",
					"email_addresses": [{"address": "ann@example.org", "primary": true}]
				}
			}],
			"meta": {"total_count": 1, "count": 1}
		}`)
	})

	got, err := c.ListPeople(context.Background(), domain.QueryParams{"where[search_name_or_email]": "ann"})
	if err != nil {
		t.Fatalf("ListPeople() error = %v", err)
	}

	want := domain.Collection[domain.PersonAttributes]{
		Data: []domain.Resource[domain.PersonAttributes]{{
			ID:   "42",
			Type: "Person",
			Attributes: domain.PersonAttributes{
				FirstName:      "Ann",
				LastName:       "Lee",
				Status:         "active",
				EmailAddresses: []domain.EmailAddress{{Address: "ann@example.org", Primary: true}},
			},
		}},
		Meta: domain.CollectionMeta{TotalCount: 1, Count: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListPeople() mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_SearchSongsUsesSearchFilter(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/services/v2/songs" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("where[search]"); got != "grace" {
			t.Errorf("where[search] = %q, want grace", got)
		}
		writeJSON(t, w, http.StatusOK, `{"data":[{"id":"7","type":"Song","attributes":{"title":"Amazing Grace","ccli_number":22025,"themes":"Grace, Hope"}}]}`)
	})

	got, err := c.SearchSongs(context.Background(), "grace")
	if err != nil {
		t.Fatalf("SearchSongs() error = %v", err)
	}
	if len(got.Data) != 1 {
		t.Fatalf("len(Data) = %d, want 1", len(got.Data))
	}
	attrs := got.Data[0].Attributes
	if attrs.CCLINumber == nil || *attrs.CCLINumber != 22025 {
		t.Errorf("CCLINumber = %v, want 22025", attrs.CCLINumber)
	}
	if diff := cmp.Diff(domain.Themes{"Grace", "Hope"}, attrs.Themes); diff != "" {
		t.Errorf("Themes mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_ServicePaths(t *testing.T) {
	var paths []string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/services/v2/service_types/1/plans/9" {
			writeJSON(t, w, http.StatusOK, `{"data":{"id":"9","type":"Plan","attributes":{"title":"Easter"}}}`)
			return
		}
		writeJSON(t, w, http.StatusOK, `{"data":[]}`)
	})
	ctx := context.Background()

	if _, err := c.ListPlans(ctx, "1", nil); err != nil {
		t.Fatalf("ListPlans() error = %v", err)
	}
	plan, err := c.GetPlan(ctx, "1", "9")
	if err != nil {
		t.Fatalf("GetPlan() error = %v", err)
	}
	if plan.Attributes.Title != "Easter" {
		t.Errorf("plan title = %q, want Easter", plan.Attributes.Title)
	}
	if _, err := c.ListTeams(ctx, "1"); err != nil {
		t.Fatalf("ListTeams() error = %v", err)
	}
	if _, err := c.ListTeamMembers(ctx, "1", "3"); err != nil {
		t.Fatalf("ListTeamMembers() error = %v", err)
	}
	if _, err := c.ListBlockouts(ctx, "42", nil); err != nil {
		t.Fatalf("ListBlockouts() error = %v", err)
	}

	want := []string{
		"/services/v2/service_types/1/plans",
		"/services/v2/service_types/1/plans/9",
		"/services/v2/service_types/1/teams",
		"/services/v2/service_types/1/teams/3/people",
		"/services/v2/people/42/blockouts",
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_CreatePlanPersonSendsJSONAPIBody(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/services/v2/plans/9/team_members" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		data := body["data"].(map[string]any)
		attrs := data["attributes"].(map[string]any)
		if attrs["status"] != "U" || attrs["team_position_name"] != "Vocals" {
			t.Errorf("attributes = %v", attrs)
		}
		rels := data["relationships"].(map[string]any)
		person := rels["person"].(map[string]any)["data"].(map[string]any)
		if person["id"] != "42" || person["type"] != "Person" {
			t.Errorf("person relationship = %v", person)
		}
		team := rels["team"].(map[string]any)["data"].(map[string]any)
		if team["id"] != "3" {
			t.Errorf("team relationship = %v", team)
		}
		writeJSON(t, w, http.StatusCreated, `{"data":{"id":"901","type":"PlanPerson","attributes":{"status":"U","team_position_name":"Vocals"}}}`)
	})

	got, err := c.CreatePlanPerson(context.Background(), "9", domain.PlanPersonInput{
		PersonID: "42",
		TeamID:   "3",
		Position: "Vocals",
	})
	if err != nil {
		t.Fatalf("CreatePlanPerson() error = %v", err)
	}
	if got.ID != "901" {
		t.Errorf("ID = %q, want 901", got.ID)
	}
}

func TestClient_UpdatePlanPerson(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/services/v2/plans/9/team_members/901" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		writeJSON(t, w, http.StatusOK, `{"data":{"id":"901","type":"PlanPerson","attributes":{"status":"C"}}}`)
	})

	got, err := c.UpdatePlanPerson(context.Background(), "9", "901", domain.PlanPersonInput{Status: "C"})
	if err != nil {
		t.Fatalf("UpdatePlanPerson() error = %v", err)
	}
	if got.Attributes.Status != "C" {
		t.Errorf("Status = %q, want C", got.Attributes.Status)
	}
}

func TestClient_MapsHTTPFailures(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, `{"errors":[{"status":"404","title":"Not Found","detail":"Person 99 not found"}]}`)
	})

	_, err := c.GetPerson(context.Background(), "99")

	var derr *domain.Error
	if !errors.As(err, &derr) {
		t.Fatalf("error = %v, want *domain.Error", err)
	}
	if derr.Kind != domain.KindUpstreamFailure || derr.Status != http.StatusNotFound {
		t.Errorf("got kind=%q status=%d, want upstream_failure/404", derr.Kind, derr.Status)
	}
	if want := "upstream returned 404 Not Found: Person 99 not found"; derr.Message != want {
		t.Errorf("Message = %q, want %q", derr.Message, want)
	}
}

func TestClient_MalformedBodyIsUpstreamFailure(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"data": [`)
	})

	_, err := c.ListSongs(context.Background(), nil)
	if !errors.Is(err, domain.ErrUpstreamFailure) {
		t.Fatalf("error = %v, want upstream failure", err)
	}
}

func TestClient_TestConnection(t *testing.T) {
	t.Run("organization object", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/people/v2" {
				t.Errorf("path = %q", r.URL.Path)
			}
			writeJSON(t, w, http.StatusOK, `{"data":{"id":"org-1","type":"Organization","attributes":{"name":"Grace Church"}}}`)
		})

		got := c.TestConnection(context.Background())
		want := domain.ConnectionTestResult{Success: true, RemoteOrgID: "org-1", RemoteOrgName: "Grace Church"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("TestConnection() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("rejected credentials", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusUnauthorized, `{"errors":[{"status":"401","title":"Unauthorized"}]}`)
		})

		got := c.TestConnection(context.Background())
		if got.Success {
			t.Fatal("Success = true, want false")
		}
		if got.Error == "" {
			t.Error("Error is empty")
		}
	})

	t.Run("malformed response", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusOK, `{"meta":{}}`)
		})

		if got := c.TestConnection(context.Background()); got.Success {
			t.Error("Success = true, want false")
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		cfg := planningcenter.DefaultConfig()
		cfg.BaseURL = srv.URL
		c, err := planningcenter.New(cfg, testCreds)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if got := c.TestConnection(context.Background()); got.Success || got.Error == "" {
			t.Errorf("TestConnection() = %+v, want failure with message", got)
		}
	})
}

func TestClient_GatesEveryRequestThroughLimiter(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(t, w, http.StatusOK, `{"data":[]}`)
	}, func(cfg *planningcenter.Config) {
		cfg.RateLimit = ratelimit.Config{Capacity: 2, Interval: time.Hour, FireImmediately: true}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	for range 2 {
		if _, err := c.ListServiceTypes(ctx); err != nil {
			t.Fatalf("ListServiceTypes() error = %v", err)
		}
	}
	if _, err := c.ListServiceTypes(ctx); err == nil {
		t.Fatal("third call within the interval expected error")
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("upstream hits = %d, want 2", got)
	}
}

func TestClient_RateLimitExceededIsDistinct(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	// The wait returns immediately without time passing, so the retry finds
	// the bucket still empty.
	after := func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- now
		return ch
	}

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"data":[]}`)
	}, func(cfg *planningcenter.Config) {
		cfg.RateLimit = ratelimit.Config{Capacity: 1, Interval: time.Minute, FireImmediately: true}
		cfg.LimiterOptions = []ratelimit.Option{ratelimit.WithClock(clock, after)}
	})

	if _, err := c.ListSongs(context.Background(), nil); err != nil {
		t.Fatalf("first ListSongs() error = %v", err)
	}
	_, err := c.ListSongs(context.Background(), nil)
	if !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Fatalf("error = %v, want rate limit exceeded", err)
	}
	if errors.Is(err, domain.ErrUpstreamFailure) {
		t.Error("rate limit error must not classify as upstream failure")
	}
}

func TestClient_DeadlineWhileWaitingForTokenIsRateLimit(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(t, w, http.StatusOK, `{"data":[]}`)
	}, func(cfg *planningcenter.Config) {
		cfg.RateLimit = ratelimit.Config{Capacity: 1, Interval: time.Hour, FireImmediately: true}
	})

	if _, err := c.ListPeople(context.Background(), nil); err != nil {
		t.Fatalf("first ListPeople() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.ListPeople(ctx, nil)
	if got := domain.KindOf(err); got != domain.KindRateLimitExceeded {
		t.Fatalf("kind = %q (err = %v), want %q", got, err, domain.KindRateLimitExceeded)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want the context error kept as cause", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1", got)
	}
}

func TestClient_UpstreamTimeoutStaysUpstreamFailure(t *testing.T) {
	release := make(chan struct{})
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.ListPeople(ctx, nil)
	if got := domain.KindOf(err); got != domain.KindUpstreamFailure {
		t.Fatalf("kind = %q (err = %v), want %q", got, err, domain.KindUpstreamFailure)
	}
}

func TestNewFactory_BuildsIndependentLimiters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"data":[]}`)
	}))
	t.Cleanup(srv.Close)

	cfg := planningcenter.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RateLimit = ratelimit.Config{Capacity: 1, Interval: time.Hour, FireImmediately: true}
	factory := planningcenter.NewFactory(cfg)

	for i := range 2 {
		up, err := factory(testCreds)
		if err != nil {
			t.Fatalf("factory() error = %v", err)
		}
		if _, err := up.ListServiceTypes(context.Background()); err != nil {
			t.Fatalf("client %d: ListServiceTypes() error = %v", i, err)
		}
	}
}

func TestNew_RejectsInvalidRateLimit(t *testing.T) {
	cfg := planningcenter.DefaultConfig()
	cfg.RateLimit.Capacity = 0

	if _, err := planningcenter.New(cfg, testCreds); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("New() error = %v, want configuration error", err)
	}
}
