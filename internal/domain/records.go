package domain

import (
	"strconv"
	"time"
)

// Person is a cached upstream person, keyed by (tenant, UpstreamID).
type Person struct {
	UpstreamID string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Status     string
	SyncedAt   time.Time
}

// FullName joins first and last name.
func (p Person) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Song is a cached upstream song, keyed by (tenant, UpstreamID).
type Song struct {
	UpstreamID      string
	Title           string
	Author          string
	CCLINumber      string
	Themes          []string
	LastScheduledAt *time.Time
	SyncedAt        time.Time
}

// Team is a cached upstream team with its members.
type Team struct {
	UpstreamID    string
	ServiceTypeID string
	Name          string
	Position      string
	Members       []TeamMember
	SyncedAt      time.Time
}

// TeamMember is a person's membership in a cached team.
type TeamMember struct {
	PersonID string
	Name     string
	Email    string
	Status   string
}

// PersonFromResource maps an upstream person to its cached form.
func PersonFromResource(r Resource[PersonAttributes], syncedAt time.Time) Person {
	return Person{
		UpstreamID: r.ID,
		FirstName:  r.Attributes.FirstName,
		LastName:   r.Attributes.LastName,
		Email:      primaryEmail(r.Attributes.EmailAddresses),
		Phone:      primaryPhone(r.Attributes.PhoneNumbers),
		Status:     r.Attributes.Status,
		SyncedAt:   syncedAt,
	}
}

// SongFromResource maps an upstream song to its cached form.
func SongFromResource(r Resource[SongAttributes], syncedAt time.Time) Song {
	s := Song{
		UpstreamID: r.ID,
		Title:      r.Attributes.Title,
		Author:     r.Attributes.Author,
		Themes:     []string(r.Attributes.Themes),
		SyncedAt:   syncedAt,
	}
	if r.Attributes.CCLINumber != nil {
		s.CCLINumber = strconv.Itoa(*r.Attributes.CCLINumber)
	}
	if t, err := time.Parse(time.RFC3339, r.Attributes.LastScheduledAt); err == nil {
		s.LastScheduledAt = &t
	}
	return s
}

// TeamFromResource maps an upstream team and its member listing to its cached form.
func TeamFromResource(r Resource[TeamAttributes], serviceTypeID string, members []Resource[TeamMemberAttributes], syncedAt time.Time) Team {
	t := Team{
		UpstreamID:    r.ID,
		ServiceTypeID: serviceTypeID,
		Name:          r.Attributes.Name,
		Position:      r.Attributes.Position,
		SyncedAt:      syncedAt,
	}
	for _, m := range members {
		t.Members = append(t.Members, TeamMember{
			PersonID: m.ID,
			Name:     m.Attributes.Name,
			Email:    m.Attributes.Email,
			Status:   m.Attributes.Status,
		})
	}
	return t
}

func primaryEmail(list []EmailAddress) string {
	for _, e := range list {
		if e.Primary {
			return e.Address
		}
	}
	if len(list) > 0 {
		return list[0].Address
	}
	return ""
}

func primaryPhone(list []PhoneNumber) string {
	for _, p := range list {
		if p.Primary {
			return p.Number
		}
	}
	if len(list) > 0 {
		return list[0].Number
	}
	return ""
}
