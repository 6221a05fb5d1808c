package commands

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/neomorfeo/rosterlink/internal/app"
	"github.com/neomorfeo/rosterlink/internal/domain"
)

type assignment struct {
	PersonID     string `json:"personId" validate:"required" jsonschema:"Planning Center person ID"`
	TeamID       string `json:"teamId" validate:"required" jsonschema:"Planning Center team ID"`
	Position     string `json:"position" validate:"required" jsonschema:"position or role name"`
	PlanPersonID string `json:"planPersonId,omitempty" jsonschema:"existing plan person to update instead of creating one"`
}

type scheduleTeamParams struct {
	ServiceDate string       `json:"serviceDate" validate:"required,datetime=2006-01-02" jsonschema:"date of the service (YYYY-MM-DD)"`
	PlanID      string       `json:"planId,omitempty" jsonschema:"plan to schedule; looked up by service date when omitted"`
	Assignments []assignment `json:"assignments" validate:"required,min=1,dive" jsonschema:"team assignments"`
}

type checkAvailabilityParams struct {
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02" jsonschema:"first day to check (YYYY-MM-DD)"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02" jsonschema:"last day to check (YYYY-MM-DD)"`
	TeamID    string `json:"teamId,omitempty" jsonschema:"only check members of this team"`
}

func (p checkAvailabilityParams) Validate() error {
	// Both dates share one layout, so lexical order is chronological.
	if p.EndDate < p.StartDate {
		return domain.NewInvalidParametersError("endDate must not be before startDate", "endDate")
	}
	return nil
}

type suggestTeamMembersParams struct {
	ServiceDate string `json:"serviceDate" validate:"required,datetime=2006-01-02" jsonschema:"date of the service (YYYY-MM-DD)"`
	Position    string `json:"position" validate:"required" jsonschema:"position or role to fill"`
}

// AssignmentResult reports the outcome of one scheduling write.
type AssignmentResult struct {
	PersonID     string `json:"personId"`
	TeamID       string `json:"teamId"`
	Position     string `json:"position"`
	PlanPersonID string `json:"planPersonId,omitempty"`
	Status       string `json:"status,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ScheduleResult is the result of scheduleTeam.
type ScheduleResult struct {
	ServiceDate string             `json:"serviceDate"`
	PlanID      string             `json:"planId"`
	Scheduled   int                `json:"scheduled"`
	Failed      int                `json:"failed"`
	Assignments []AssignmentResult `json:"assignments"`
}

// MemberView is a team member as returned to the client.
type MemberView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Status string `json:"status,omitempty"`
	Team   string `json:"team,omitempty"`
}

// BlockoutView is one period a person is unavailable.
type BlockoutView struct {
	Reason   string `json:"reason,omitempty"`
	StartsAt string `json:"startsAt"`
	EndsAt   string `json:"endsAt"`
}

// UnavailableMember is a member with blockouts in the requested window.
type UnavailableMember struct {
	MemberView
	Blockouts []BlockoutView `json:"blockouts"`
}

// AvailabilityResult is the result of checkAvailability.
type AvailabilityResult struct {
	StartDate   string              `json:"startDate"`
	EndDate     string              `json:"endDate"`
	TeamID      string              `json:"teamId,omitempty"`
	Available   []MemberView        `json:"available"`
	Unavailable []UnavailableMember `json:"unavailable"`
}

// SuggestionResult is the result of suggestTeamMembers.
type SuggestionResult struct {
	ServiceDate string              `json:"serviceDate"`
	Position    string              `json:"position"`
	Suggestions []MemberView        `json:"suggestions"`
	Unavailable []UnavailableMember `json:"unavailable"`
}

// TeamView is a team with its members.
type TeamView struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Position string       `json:"position,omitempty"`
	Members  []MemberView `json:"members"`
}

// TeamsResult is the result of getTeamMembers.
type TeamsResult struct {
	Teams  []TeamView `json:"teams"`
	Source string     `json:"source"`
}

func (c *catalog) scheduleTeam(ctx context.Context, call *app.Call, p scheduleTeamParams) (any, error) {
	up, err := call.Upstream(ctx)
	if err != nil {
		return nil, err
	}

	planID := p.PlanID
	if planID == "" {
		planID, err = planOn(ctx, up, p.ServiceDate)
		if err != nil {
			return nil, err
		}
	}

	result := ScheduleResult{ServiceDate: p.ServiceDate, PlanID: planID}
	var firstErr error
	for _, a := range p.Assignments {
		in := domain.PlanPersonInput{PersonID: a.PersonID, TeamID: a.TeamID, Position: a.Position}
		out := AssignmentResult{PersonID: a.PersonID, TeamID: a.TeamID, Position: a.Position}

		var (
			written domain.Resource[domain.PlanPersonAttributes]
			err     error
		)
		if a.PlanPersonID != "" {
			written, err = up.UpdatePlanPerson(ctx, planID, a.PlanPersonID, in)
		} else {
			written, err = up.CreatePlanPerson(ctx, planID, in)
		}
		if err != nil {
			out.Error = err.Error()
			result.Failed++
			if firstErr == nil {
				firstErr = err
			}
		} else {
			out.PlanPersonID = written.ID
			out.Status = written.Attributes.Status
			result.Scheduled++
		}
		result.Assignments = append(result.Assignments, out)
	}

	if result.Scheduled == 0 {
		return nil, firstErr
	}
	return result, nil
}

// planOn finds the plan whose sort date falls on date (YYYY-MM-DD).
func planOn(ctx context.Context, up domain.Upstream, date string) (string, error) {
	serviceTypes, err := up.ListServiceTypes(ctx)
	if err != nil {
		return "", err
	}
	for _, st := range serviceTypes.Data {
		plans, err := up.ListPlans(ctx, st.ID, domain.QueryParams{
			"filter":   "after",
			"after":    date,
			"order":    "sort_date",
			"per_page": "25",
		})
		if err != nil {
			return "", err
		}
		for _, plan := range plans.Data {
			if strings.HasPrefix(plan.Attributes.SortDate, date) {
				return plan.ID, nil
			}
		}
	}
	return "", domain.NewInvalidParametersError(
		fmt.Sprintf("no service plan found on %s; pass planId", date), "serviceDate")
}

func (c *catalog) checkAvailability(ctx context.Context, call *app.Call, p checkAvailabilityParams) (any, error) {
	teams, _, err := c.teams(ctx, call)
	if err != nil {
		return nil, err
	}
	if p.TeamID != "" {
		teams = slices.DeleteFunc(teams, func(t domain.Team) bool { return t.UpstreamID != p.TeamID })
		if len(teams) == 0 {
			return nil, domain.NewInvalidParametersError(fmt.Sprintf("unknown team %s", p.TeamID), "teamId")
		}
	}

	from, to := dayWindow(p.StartDate, p.EndDate)
	available, unavailable, err := partition(ctx, call, uniqueMembers(teams), from, to)
	if err != nil {
		return nil, err
	}
	return AvailabilityResult{
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		TeamID:      p.TeamID,
		Available:   available,
		Unavailable: unavailable,
	}, nil
}

// suggestTeamMembers proposes members of teams matching the position who
// have no blockout on the service date. When no team matches, every member
// is a candidate.
func (c *catalog) suggestTeamMembers(ctx context.Context, call *app.Call, p suggestTeamMembersParams) (any, error) {
	teams, _, err := c.teams(ctx, call)
	if err != nil {
		return nil, err
	}

	matching := slices.DeleteFunc(slices.Clone(teams), func(t domain.Team) bool {
		return !strings.EqualFold(t.Position, p.Position) && !strings.EqualFold(t.Name, p.Position)
	})
	if len(matching) == 0 {
		matching = teams
	}

	from, to := dayWindow(p.ServiceDate, p.ServiceDate)
	available, unavailable, err := partition(ctx, call, uniqueMembers(matching), from, to)
	if err != nil {
		return nil, err
	}
	return SuggestionResult{
		ServiceDate: p.ServiceDate,
		Position:    p.Position,
		Suggestions: available,
		Unavailable: unavailable,
	}, nil
}

func (c *catalog) getTeamMembers(ctx context.Context, call *app.Call, _ struct{}) (any, error) {
	teams, source, err := c.teams(ctx, call)
	if err != nil {
		return nil, err
	}

	result := TeamsResult{Source: source, Teams: make([]TeamView, 0, len(teams))}
	for _, t := range teams {
		view := TeamView{ID: t.UpstreamID, Name: t.Name, Position: t.Position, Members: make([]MemberView, 0, len(t.Members))}
		for _, m := range t.Members {
			view.Members = append(view.Members, MemberView{ID: m.PersonID, Name: m.Name, Email: m.Email, Status: m.Status})
		}
		result.Teams = append(result.Teams, view)
	}
	return result, nil
}

// dayWindow returns [start 00:00 UTC, the day after end 00:00 UTC). Dates are
// already validated.
func dayWindow(start, end string) (time.Time, time.Time) {
	from, _ := time.Parse(dateLayout, start)
	to, _ := time.Parse(dateLayout, end)
	return from, to.AddDate(0, 0, 1)
}

// uniqueMembers flattens teams into members, keeping the first team a
// person appears in, sorted by name.
func uniqueMembers(teams []domain.Team) []MemberView {
	seen := make(map[string]bool)
	var out []MemberView
	for _, t := range teams {
		for _, m := range t.Members {
			if seen[m.PersonID] {
				continue
			}
			seen[m.PersonID] = true
			out = append(out, MemberView{ID: m.PersonID, Name: m.Name, Email: m.Email, Status: m.Status, Team: t.Name})
		}
	}
	slices.SortFunc(out, func(a, b MemberView) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// partition splits members by whether any of their blockouts overlaps [from, to).
func partition(ctx context.Context, call *app.Call, members []MemberView, from, to time.Time) ([]MemberView, []UnavailableMember, error) {
	available := []MemberView{}
	unavailable := []UnavailableMember{}
	if len(members) == 0 {
		return available, unavailable, nil
	}

	up, err := call.Upstream(ctx)
	if err != nil {
		return nil, nil, err
	}

	for _, m := range members {
		blockouts, err := up.ListBlockouts(ctx, m.ID, domain.QueryParams{"per_page": "100"})
		if err != nil {
			return nil, nil, err
		}

		var overlapping []BlockoutView
		for _, b := range blockouts.Data {
			if overlaps(b.Attributes, from, to) {
				overlapping = append(overlapping, BlockoutView{
					Reason:   cmp.Or(b.Attributes.Reason, b.Attributes.Description),
					StartsAt: b.Attributes.StartsAt,
					EndsAt:   b.Attributes.EndsAt,
				})
			}
		}
		if len(overlapping) > 0 {
			unavailable = append(unavailable, UnavailableMember{MemberView: m, Blockouts: overlapping})
			continue
		}
		available = append(available, m)
	}
	return available, unavailable, nil
}

// overlaps treats a blockout with unreadable bounds as overlapping.
func overlaps(b domain.BlockoutAttributes, from, to time.Time) bool {
	starts, err := time.Parse(time.RFC3339, b.StartsAt)
	if err != nil {
		return true
	}
	ends, err := time.Parse(time.RFC3339, b.EndsAt)
	if err != nil {
		return true
	}
	return starts.Before(to) && ends.After(from)
}
