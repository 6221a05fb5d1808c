package commands

import (
	"context"
	"fmt"

	"github.com/neomorfeo/rosterlink/internal/app"
	"github.com/neomorfeo/rosterlink/internal/domain"
)

type searchPeopleParams struct {
	Query       string `json:"query,omitempty" validate:"required_without_all=Email PhoneNumber" jsonschema:"search by name or general query"`
	Email       string `json:"email,omitempty" validate:"required_without_all=Query PhoneNumber" jsonschema:"search by email address"`
	PhoneNumber string `json:"phoneNumber,omitempty" validate:"required_without_all=Query Email" jsonschema:"search by phone number"`
}

// where picks the upstream search filter. query takes precedence over email,
// email over phone number.
func (p searchPeopleParams) where() domain.QueryParams {
	switch {
	case p.Query != "":
		return domain.QueryParams{"where[search_name_or_email]": p.Query}
	case p.Email != "":
		return domain.QueryParams{"where[search_email]": p.Email}
	default:
		return domain.QueryParams{"where[search_phone_number]": p.PhoneNumber}
	}
}

type getPersonDetailsParams struct {
	PersonID string `json:"personId" validate:"required" jsonschema:"Planning Center person ID"`
}

// PersonView is a person as returned to the client.
type PersonView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Status string `json:"status,omitempty"`
}

// PersonDetails adds record timestamps to PersonView.
type PersonDetails struct {
	PersonView
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// PeopleResult is the result of searchPeople.
type PeopleResult struct {
	People []PersonView `json:"people"`
}

func personView(p domain.Person) PersonView {
	return PersonView{
		ID:     p.UpstreamID,
		Name:   p.FullName(),
		Email:  p.Email,
		Phone:  p.Phone,
		Status: p.Status,
	}
}

func (c *catalog) searchPeople(ctx context.Context, call *app.Call, p searchPeopleParams) (any, error) {
	up, err := call.Upstream(ctx)
	if err != nil {
		return nil, err
	}

	found, err := up.ListPeople(ctx, p.where())
	if err != nil {
		return nil, err
	}

	now := c.now()
	people := make([]domain.Person, 0, len(found.Data))
	result := PeopleResult{People: make([]PersonView, 0, len(found.Data))}
	for _, r := range found.Data {
		person := domain.PersonFromResource(r, now)
		people = append(people, person)
		result.People = append(result.People, personView(person))
	}

	if err := c.records.UpsertPeople(ctx, call.Tenant.TenantID, people); err != nil {
		return nil, fmt.Errorf("caching people: %w", err)
	}
	return result, nil
}

func (c *catalog) getPersonDetails(ctx context.Context, call *app.Call, p getPersonDetailsParams) (any, error) {
	up, err := call.Upstream(ctx)
	if err != nil {
		return nil, err
	}

	r, err := up.GetPerson(ctx, p.PersonID)
	if err != nil {
		return nil, err
	}

	return PersonDetails{
		PersonView: personView(domain.PersonFromResource(r, c.now())),
		CreatedAt:  r.Attributes.CreatedAt,
		UpdatedAt:  r.Attributes.UpdatedAt,
	}, nil
}
