package domain

import (
	"context"
	"encoding/json"
	"strings"
)

// QueryParams are passed through to the upstream as query-string parameters,
// e.g. {"where[search_name_or_email]": "ann", "per_page": "25"}.
type QueryParams map[string]string

// Resource is a JSON:API resource object with typed attributes.
type Resource[A any] struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	Attributes    A                       `json:"attributes"`
	Relationships map[string]Relationship `json:"relationships,omitempty"`
}

// Relationship is a JSON:API relationship. Data is either a single resource
// identifier, an array of them, or null.
type Relationship struct {
	Data json.RawMessage `json:"data"`
}

// ResourceIdentifier is a JSON:API {type, id} pair.
type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RelatedID returns the id of a to-one relationship, or "" when absent.
func (r Resource[A]) RelatedID(name string) string {
	rel, ok := r.Relationships[name]
	if !ok || len(rel.Data) == 0 {
		return ""
	}
	var ident ResourceIdentifier
	if err := json.Unmarshal(rel.Data, &ident); err != nil {
		return ""
	}
	return ident.ID
}

// Collection is a JSON:API document whose primary data is an array.
type Collection[A any] struct {
	Data []Resource[A] `json:"data"`
	Meta CollectionMeta `json:"meta"`
}

// CollectionMeta carries the upstream's pagination counters.
type CollectionMeta struct {
	TotalCount int `json:"total_count"`
	Count      int `json:"count"`
}

// PersonAttributes are the attributes of an upstream person.
type PersonAttributes struct {
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Name           string         `json:"name"`
	Status         string         `json:"status"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
	EmailAddresses []EmailAddress `json:"email_addresses"`
	PhoneNumbers   []PhoneNumber  `json:"phone_numbers"`
}

// EmailAddress is an embedded person email.
type EmailAddress struct {
	Address string `json:"address"`
	Primary bool   `json:"primary"`
}

// PhoneNumber is an embedded person phone number.
type PhoneNumber struct {
	Number  string `json:"number"`
	Primary bool   `json:"primary"`
}

// ServiceTypeAttributes are the attributes of an upstream service type.
type ServiceTypeAttributes struct {
	Name string `json:"name"`
}

// PlanAttributes are the attributes of an upstream plan (one scheduled service).
type PlanAttributes struct {
	Title           string `json:"title"`
	SeriesTitle     string `json:"series_title"`
	SortDate        string `json:"sort_date"`
	Dates           string `json:"dates"`
	ItemsCount      int    `json:"items_count"`
	PlanPeopleCount int    `json:"plan_people_count"`
}

// TeamAttributes are the attributes of an upstream team.
type TeamAttributes struct {
	Name     string `json:"name"`
	Position string `json:"position"`
}

// TeamMemberAttributes are the attributes of a person listed under a team.
type TeamMemberAttributes struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// BlockoutAttributes are the attributes of a person's blockout (unavailability).
type BlockoutAttributes struct {
	Description string `json:"description"`
	Reason      string `json:"reason"`
	StartsAt    string `json:"starts_at"`
	EndsAt      string `json:"ends_at"`
}

// SongAttributes are the attributes of an upstream song.
type SongAttributes struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	CCLINumber      *int   `json:"ccli_number"`
	Themes          Themes `json:"themes"`
	LastScheduledAt string `json:"last_scheduled_at"`
}

// Themes accepts either a comma-separated string or an array of strings.
type Themes []string

func (t *Themes) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = normalizeThemes(list)
		return nil
	}
	var joined *string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	if joined == nil {
		*t = nil
		return nil
	}
	*t = normalizeThemes(strings.Split(*joined, ","))
	return nil
}

func normalizeThemes(in []string) Themes {
	var out Themes
	for _, theme := range in {
		if theme = strings.TrimSpace(theme); theme != "" {
			out = append(out, theme)
		}
	}
	return out
}

// PlanPersonAttributes are the attributes of a person scheduled on a plan.
type PlanPersonAttributes struct {
	Name             string `json:"name,omitempty"`
	Status           string `json:"status,omitempty"`
	TeamPositionName string `json:"team_position_name,omitempty"`
}

// PlanPersonInput describes a team/role assignment written to the upstream.
type PlanPersonInput struct {
	PersonID string
	TeamID   string
	Position string
	// Status is the upstream confirmation status; "U" (unconfirmed) when empty.
	Status string
}

// ConnectionTestResult reports whether a credential pair can reach the upstream.
type ConnectionTestResult struct {
	Success       bool
	RemoteOrgID   string
	RemoteOrgName string
	Error         string
}

// Upstream is the typed client for the third-party scheduling API. Every
// network operation is gated by the client's own rate limiter.
type Upstream interface {
	// TestConnection never fails; it reports failure through the result.
	TestConnection(ctx context.Context) ConnectionTestResult

	ListPeople(ctx context.Context, params QueryParams) (Collection[PersonAttributes], error)
	GetPerson(ctx context.Context, id string) (Resource[PersonAttributes], error)
	ListBlockouts(ctx context.Context, personID string, params QueryParams) (Collection[BlockoutAttributes], error)

	ListServiceTypes(ctx context.Context) (Collection[ServiceTypeAttributes], error)
	ListPlans(ctx context.Context, serviceTypeID string, params QueryParams) (Collection[PlanAttributes], error)
	GetPlan(ctx context.Context, serviceTypeID, planID string) (Resource[PlanAttributes], error)
	ListTeams(ctx context.Context, serviceTypeID string) (Collection[TeamAttributes], error)
	ListTeamMembers(ctx context.Context, serviceTypeID, teamID string) (Collection[TeamMemberAttributes], error)

	ListSongs(ctx context.Context, params QueryParams) (Collection[SongAttributes], error)
	SearchSongs(ctx context.Context, query string) (Collection[SongAttributes], error)

	CreatePlanPerson(ctx context.Context, planID string, in PlanPersonInput) (Resource[PlanPersonAttributes], error)
	UpdatePlanPerson(ctx context.Context, planID, planPersonID string, in PlanPersonInput) (Resource[PlanPersonAttributes], error)
}
