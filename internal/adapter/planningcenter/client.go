// Package planningcenter is the typed HTTP client for the Planning Center
// JSON:API. Every request is gated by a rate limiter owned by the client.
package planningcenter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/neomorfeo/rosterlink/internal/domain"
	"github.com/neomorfeo/rosterlink/internal/ratelimit"
)

const (
	DefaultBaseURL   = "https://api.planningcenteronline.com"
	DefaultUserAgent = "PlanningCenterMCP/1.0"

	defaultTimeout = 30 * time.Second
)

// Compile-time check: Client implements domain.Upstream.
var _ domain.Upstream = (*Client)(nil)

// Config holds settings shared by every client built by a factory.
type Config struct {
	BaseURL   string
	UserAgent string
	RateLimit ratelimit.Config
	// HTTPClient is shared across clients. Defaults to an otelhttp-instrumented client.
	HTTPClient *http.Client
	// LimiterOptions are applied to each client's bucket.
	LimiterOptions []ratelimit.Option
}

// DefaultConfig returns the production endpoint and documented rate limits.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: DefaultUserAgent,
		RateLimit: ratelimit.DefaultConfig(),
	}
}

// NewHTTPClient returns an HTTP client whose transport records a span per request.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

// NewFactory returns a domain.ClientFactory that builds one client, with its
// own limiter, per credential pair.
func NewFactory(cfg Config) domain.ClientFactory {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient(defaultTimeout)
	}
	return func(creds domain.Credentials) (domain.Upstream, error) {
		return New(cfg, creds)
	}
}

// Client talks to the upstream on behalf of one credential pair.
type Client struct {
	baseURL   string
	userAgent string
	creds     domain.Credentials
	http      *http.Client
	limiter   *ratelimit.Bucket
}

// New creates a client. The limiter is created here and never shared.
func New(cfg Config, creds domain.Credentials) (*Client, error) {
	limiter, err := ratelimit.New(cfg.RateLimit, cfg.LimiterOptions...)
	if err != nil {
		return nil, domain.Wrap(domain.KindConfiguration, "invalid upstream rate limit", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient(defaultTimeout)
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		creds:     creds,
		http:      cfg.HTTPClient,
		limiter:   limiter,
	}, nil
}

// TestConnection reads the organization root. Any failure is reported in the
// result, never returned.
func (c *Client) TestConnection(ctx context.Context) domain.ConnectionTestResult {
	var doc struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/people/v2", nil, nil, &doc); err != nil {
		return domain.ConnectionTestResult{Error: err.Error()}
	}

	org, err := firstResource[organizationAttributes](doc.Data)
	if err != nil {
		return domain.ConnectionTestResult{Error: "malformed upstream response: " + err.Error()}
	}
	return domain.ConnectionTestResult{
		Success:       true,
		RemoteOrgID:   org.ID,
		RemoteOrgName: org.Attributes.Name,
	}
}

func (c *Client) ListPeople(ctx context.Context, params domain.QueryParams) (domain.Collection[domain.PersonAttributes], error) {
	return getCollection[domain.PersonAttributes](ctx, c, "/people/v2/people", params)
}

func (c *Client) GetPerson(ctx context.Context, id string) (domain.Resource[domain.PersonAttributes], error) {
	return getResource[domain.PersonAttributes](ctx, c, "/people/v2/people/"+url.PathEscape(id), nil)
}

func (c *Client) ListBlockouts(ctx context.Context, personID string, params domain.QueryParams) (domain.Collection[domain.BlockoutAttributes], error) {
	return getCollection[domain.BlockoutAttributes](ctx, c, "/services/v2/people/"+url.PathEscape(personID)+"/blockouts", params)
}

func (c *Client) ListServiceTypes(ctx context.Context) (domain.Collection[domain.ServiceTypeAttributes], error) {
	return getCollection[domain.ServiceTypeAttributes](ctx, c, "/services/v2/service_types", nil)
}

func (c *Client) ListPlans(ctx context.Context, serviceTypeID string, params domain.QueryParams) (domain.Collection[domain.PlanAttributes], error) {
	return getCollection[domain.PlanAttributes](ctx, c, serviceTypePath(serviceTypeID)+"/plans", params)
}

func (c *Client) GetPlan(ctx context.Context, serviceTypeID, planID string) (domain.Resource[domain.PlanAttributes], error) {
	return getResource[domain.PlanAttributes](ctx, c, serviceTypePath(serviceTypeID)+"/plans/"+url.PathEscape(planID), nil)
}

func (c *Client) ListTeams(ctx context.Context, serviceTypeID string) (domain.Collection[domain.TeamAttributes], error) {
	return getCollection[domain.TeamAttributes](ctx, c, serviceTypePath(serviceTypeID)+"/teams", nil)
}

func (c *Client) ListTeamMembers(ctx context.Context, serviceTypeID, teamID string) (domain.Collection[domain.TeamMemberAttributes], error) {
	return getCollection[domain.TeamMemberAttributes](ctx, c, serviceTypePath(serviceTypeID)+"/teams/"+url.PathEscape(teamID)+"/people", nil)
}

func (c *Client) ListSongs(ctx context.Context, params domain.QueryParams) (domain.Collection[domain.SongAttributes], error) {
	return getCollection[domain.SongAttributes](ctx, c, "/services/v2/songs", params)
}

func (c *Client) SearchSongs(ctx context.Context, query string) (domain.Collection[domain.SongAttributes], error) {
	return c.ListSongs(ctx, domain.QueryParams{"where[search]": query})
}

// CreatePlanPerson schedules a person on a plan for a team position.
func (c *Client) CreatePlanPerson(ctx context.Context, planID string, in domain.PlanPersonInput) (domain.Resource[domain.PlanPersonAttributes], error) {
	var doc struct {
		Data domain.Resource[domain.PlanPersonAttributes] `json:"data"`
	}
	err := c.do(ctx, http.MethodPost, planPeoplePath(planID), nil, planPersonBody(in), &doc)
	return doc.Data, err
}

// UpdatePlanPerson changes an existing assignment.
func (c *Client) UpdatePlanPerson(ctx context.Context, planID, planPersonID string, in domain.PlanPersonInput) (domain.Resource[domain.PlanPersonAttributes], error) {
	var doc struct {
		Data domain.Resource[domain.PlanPersonAttributes] `json:"data"`
	}
	path := planPeoplePath(planID) + "/" + url.PathEscape(planPersonID)
	err := c.do(ctx, http.MethodPatch, path, nil, planPersonBody(in), &doc)
	return doc.Data, err
}

// do runs one request through the limiter. A token spent on a failed request
// is not refunded. Any failure before the request is sent belongs to the
// limiter and reports as rate_limit_exceeded, never as an upstream failure.
func (c *Client) do(ctx context.Context, method, path string, params domain.QueryParams, body, out any) error {
	sent := false
	err := c.limiter.Execute(ctx, func(ctx context.Context) error {
		sent = true
		return c.send(ctx, method, path, params, body, out)
	})
	switch {
	case err == nil:
		return nil
	case sent:
		return err
	case errors.Is(err, ratelimit.ErrExceeded):
		return domain.Wrap(domain.KindRateLimitExceeded, "Rate limit exceeded", err)
	default:
		return domain.Wrap(domain.KindRateLimitExceeded, "Rate limit exceeded: gave up waiting for a token", err)
	}
}

func (c *Client) send(ctx context.Context, method, path string, params domain.QueryParams, body, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		u += "?" + q.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return domain.Wrap(domain.KindInternal, "encoding upstream request", err)
		}
		reqBody = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return domain.Wrap(domain.KindInternal, "building upstream request", err)
	}
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		return domain.NewUpstreamError(status, "upstream request failed: "+err.Error(), err)
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewUpstreamError(http.StatusBadGateway, "reading upstream response", err)
	}
	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, payload)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return domain.NewUpstreamError(http.StatusBadGateway, "malformed upstream response", err)
	}
	return nil
}

// errorDocument is a JSON:API error response.
type errorDocument struct {
	Errors []struct {
		Status string `json:"status"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func statusError(status int, payload []byte) error {
	message := fmt.Sprintf("upstream returned %d %s", status, http.StatusText(status))

	var doc errorDocument
	if err := json.Unmarshal(payload, &doc); err == nil && len(doc.Errors) > 0 {
		e := doc.Errors[0]
		switch {
		case e.Detail != "":
			message += ": " + e.Detail
		case e.Title != "":
			message += ": " + e.Title
		}
	}
	return domain.NewUpstreamError(status, message, nil)
}

type organizationAttributes struct {
	Name string `json:"name"`
}

// firstResource decodes a primary data member that is either one resource or
// an array of them.
func firstResource[A any](data json.RawMessage) (domain.Resource[A], error) {
	var res domain.Resource[A]
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return res, errors.New("missing data")
	}
	if trimmed[0] == '[' {
		var list []domain.Resource[A]
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return res, err
		}
		if len(list) == 0 {
			return res, nil
		}
		return list[0], nil
	}
	err := json.Unmarshal(trimmed, &res)
	return res, err
}

func getCollection[A any](ctx context.Context, c *Client, path string, params domain.QueryParams) (domain.Collection[A], error) {
	var out domain.Collection[A]
	err := c.do(ctx, http.MethodGet, path, params, nil, &out)
	return out, err
}

func getResource[A any](ctx context.Context, c *Client, path string, params domain.QueryParams) (domain.Resource[A], error) {
	var doc struct {
		Data domain.Resource[A] `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, path, params, nil, &doc)
	return doc.Data, err
}

func serviceTypePath(id string) string {
	return "/services/v2/service_types/" + url.PathEscape(id)
}

func planPeoplePath(planID string) string {
	return "/services/v2/plans/" + url.PathEscape(planID) + "/team_members"
}

type relationshipBody struct {
	Data domain.ResourceIdentifier `json:"data"`
}

type planPersonDocument struct {
	Data struct {
		Type          string                      `json:"type"`
		Attributes    domain.PlanPersonAttributes `json:"attributes"`
		Relationships map[string]relationshipBody `json:"relationships,omitempty"`
	} `json:"data"`
}

func planPersonBody(in domain.PlanPersonInput) planPersonDocument {
	status := in.Status
	if status == "" {
		status = "U"
	}

	var doc planPersonDocument
	doc.Data.Type = "PlanPerson"
	doc.Data.Attributes = domain.PlanPersonAttributes{
		Status:           status,
		TeamPositionName: in.Position,
	}
	doc.Data.Relationships = map[string]relationshipBody{}
	if in.PersonID != "" {
		doc.Data.Relationships["person"] = relationshipBody{Data: domain.ResourceIdentifier{Type: "Person", ID: in.PersonID}}
	}
	if in.TeamID != "" {
		doc.Data.Relationships["team"] = relationshipBody{Data: domain.ResourceIdentifier{Type: "Team", ID: in.TeamID}}
	}
	return doc
}
