package commands

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/neomorfeo/rosterlink/internal/app"
	"github.com/neomorfeo/rosterlink/internal/domain"
)

const defaultServiceLimit = 10

type getUpcomingServicesParams struct {
	Limit int `json:"limit,omitempty" validate:"omitempty,min=1,max=100" jsonschema:"maximum number of services to return (default 10)"`
}

type getServiceDetailsParams struct {
	ServiceID     string `json:"serviceId" validate:"required" jsonschema:"Planning Center service plan ID"`
	ServiceTypeID string `json:"serviceTypeId,omitempty" jsonschema:"service type the plan belongs to; every type is searched when omitted"`
}

// ServiceView is a scheduled service plan.
type ServiceView struct {
	ID            string `json:"id"`
	Title         string `json:"title,omitempty"`
	SeriesTitle   string `json:"seriesTitle,omitempty"`
	Date          string `json:"date"`
	ServiceTypeID string `json:"serviceTypeId"`
	ServiceType   string `json:"serviceType"`
}

// ServicesResult is the result of getUpcomingServices.
type ServicesResult struct {
	Services []ServiceView `json:"services"`
}

// ServiceDetails is the result of getServiceDetails.
type ServiceDetails struct {
	ServiceView
	Dates           string `json:"dates,omitempty"`
	ItemsCount      int    `json:"itemsCount"`
	PlanPeopleCount int    `json:"planPeopleCount"`
}

func serviceView(plan domain.Resource[domain.PlanAttributes], st domain.Resource[domain.ServiceTypeAttributes]) ServiceView {
	return ServiceView{
		ID:            plan.ID,
		Title:         plan.Attributes.Title,
		SeriesTitle:   plan.Attributes.SeriesTitle,
		Date:          plan.Attributes.SortDate,
		ServiceTypeID: st.ID,
		ServiceType:   st.Attributes.Name,
	}
}

// getUpcomingServices merges future plans of every service type, ordered by
// date. Results are kept in the query cache per tenant and limit.
func (c *catalog) getUpcomingServices(ctx context.Context, call *app.Call, p getUpcomingServicesParams) (any, error) {
	limit := p.Limit
	if limit == 0 {
		limit = defaultServiceLimit
	}

	key := fmt.Sprintf("%s:getUpcomingServices:%d", call.Tenant.TenantID, limit)
	if c.queries != nil {
		if v, ok := c.queries.Get(key); ok {
			if result, ok := v.(ServicesResult); ok {
				return result, nil
			}
		}
	}

	up, err := call.Upstream(ctx)
	if err != nil {
		return nil, err
	}

	serviceTypes, err := up.ListServiceTypes(ctx)
	if err != nil {
		return nil, err
	}

	services := []ServiceView{}
	for _, st := range serviceTypes.Data {
		plans, err := up.ListPlans(ctx, st.ID, domain.QueryParams{
			"filter":   "future",
			"order":    "sort_date",
			"per_page": strconv.Itoa(limit),
		})
		if err != nil {
			return nil, err
		}
		for _, plan := range plans.Data {
			services = append(services, serviceView(plan, st))
		}
	}

	slices.SortStableFunc(services, func(a, b ServiceView) int {
		return compareDates(a.Date, b.Date)
	})
	if len(services) > limit {
		services = services[:limit]
	}

	result := ServicesResult{Services: services}
	if c.queries != nil {
		c.queries.Add(key, result)
	}
	return result, nil
}

// compareDates orders RFC 3339 timestamps chronologically. Unparseable
// values sort after parseable ones.
func compareDates(a, b string) int {
	ta, errA := time.Parse(time.RFC3339, a)
	tb, errB := time.Parse(time.RFC3339, b)
	switch {
	case errA == nil && errB == nil:
		return ta.Compare(tb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return cmp.Compare(a, b)
}

func (c *catalog) getServiceDetails(ctx context.Context, call *app.Call, p getServiceDetailsParams) (any, error) {
	up, err := call.Upstream(ctx)
	if err != nil {
		return nil, err
	}

	serviceTypes, err := up.ListServiceTypes(ctx)
	if err != nil {
		return nil, err
	}

	for _, st := range serviceTypes.Data {
		if p.ServiceTypeID != "" && st.ID != p.ServiceTypeID {
			continue
		}
		plan, err := up.GetPlan(ctx, st.ID, p.ServiceID)
		if err != nil {
			var de *domain.Error
			if asUpstream(err, &de) && de.Status == http.StatusNotFound {
				continue
			}
			return nil, err
		}
		return ServiceDetails{
			ServiceView:     serviceView(plan, st),
			Dates:           plan.Attributes.Dates,
			ItemsCount:      plan.Attributes.ItemsCount,
			PlanPeopleCount: plan.Attributes.PlanPeopleCount,
		}, nil
	}

	return nil, domain.NewUpstreamError(http.StatusNotFound,
		fmt.Sprintf("Service %s not found", p.ServiceID), nil)
}
