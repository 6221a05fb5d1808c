package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/rosterlink/internal/app"
	"github.com/neomorfeo/rosterlink/internal/domain"
)

// Deps wires the handlers to the application layer.
type Deps struct {
	Dispatcher  domain.Dispatcher
	Connections *app.ConnectionService
	// CommandTimeout bounds every request; zero means no deadline.
	CommandTimeout time.Duration
}

// TenantHeaders carries the caller identity set by the authentication proxy.
type TenantHeaders struct {
	TenantID string `header:"X-Tenant-ID" required:"true" minLength:"1" doc:"Organization the caller belongs to"`
	UserID   string `header:"X-User-ID" required:"true" minLength:"1" doc:"Authenticated user"`
	Role     string `header:"X-User-Role" required:"true" enum:"ADMIN,LEADER,MEMBER" doc:"Caller role within the organization"`
}

func (h TenantHeaders) tenant() domain.TenantContext {
	return domain.TenantContext{
		TenantID: h.TenantID,
		UserID:   h.UserID,
		Role:     domain.Role(h.Role),
	}
}

// --- Commands ---

// CommandBody is a command request. Tool is the legacy alias for Name;
// when both are set, Name wins.
type CommandBody struct {
	Name       string         `json:"name,omitempty" doc:"Command to run; empty runs help"`
	Tool       string         `json:"tool,omitempty" doc:"Deprecated alias for name"`
	Parameters map[string]any `json:"parameters,omitempty" doc:"Command parameters"`
	Content    string         `json:"content,omitempty" doc:"Free text from the chat client"`
}

func (b CommandBody) command() domain.Command {
	name := b.Name
	if name == "" {
		name = b.Tool
	}
	return domain.Command{Name: name, Parameters: b.Parameters, Content: b.Content}
}

type RunCommandInput struct {
	TenantHeaders
	Body CommandBody
}

type RunCommandOutput struct {
	Body domain.Envelope
}

type ListCommandsOutput struct {
	Body struct {
		Commands []domain.CommandInfo `json:"commands" doc:"Registered commands and their parameters"`
	}
}

// --- Connection ---

type ConnectionInput struct {
	TenantHeaders
}

type ConnectInput struct {
	TenantHeaders
	Body struct {
		ClientID     string `json:"clientId" minLength:"1" doc:"Personal access token application id"`
		ClientSecret string `json:"clientSecret" minLength:"1" doc:"Personal access token secret"`
	}
}

type ConnectionOutput struct {
	Body app.ConnectionView
}

type TestConnectionOutput struct {
	Body app.TestReport
}

type SyncOutput struct {
	Body struct {
		Scheduled bool `json:"scheduled" doc:"Whether a sync job was enqueued"`
	}
}

// Register adds the command and connection routes to the Huma API.
func Register(api huma.API, deps Deps) {
	withDeadline := func(ctx context.Context) (context.Context, context.CancelFunc) {
		if deps.CommandTimeout <= 0 {
			return context.WithCancel(ctx)
		}
		return context.WithTimeout(ctx, deps.CommandTimeout)
	}

	huma.Register(api, huma.Operation{
		OperationID: "run-command",
		Method:      http.MethodPost,
		Path:        "/api/v1/commands",
		Summary:     "Dispatch a command",
		Description: "Always answers 200; failures are reported inside the envelope.",
		Tags:        []string{"Commands"},
	}, func(ctx context.Context, input *RunCommandInput) (*RunCommandOutput, error) {
		ctx, cancel := withDeadline(ctx)
		defer cancel()
		env := deps.Dispatcher.Dispatch(ctx, input.tenant(), input.Body.command())
		return &RunCommandOutput{Body: env}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-commands",
		Method:      http.MethodGet,
		Path:        "/api/v1/commands",
		Summary:     "List available commands",
		Tags:        []string{"Commands"},
	}, func(_ context.Context, _ *struct{}) (*ListCommandsOutput, error) {
		out := &ListCommandsOutput{}
		out.Body.Commands = deps.Dispatcher.Commands()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-connection",
		Method:      http.MethodGet,
		Path:        "/api/v1/connection",
		Summary:     "Get the Planning Center connection status",
		Tags:        []string{"Connection"},
	}, func(ctx context.Context, input *ConnectionInput) (*ConnectionOutput, error) {
		ctx, cancel := withDeadline(ctx)
		defer cancel()
		view, err := deps.Connections.Status(ctx, input.tenant())
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ConnectionOutput{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "connect",
		Method:      http.MethodPut,
		Path:        "/api/v1/connection",
		Summary:     "Connect Planning Center with a credential pair",
		Tags:        []string{"Connection"},
	}, func(ctx context.Context, input *ConnectInput) (*ConnectionOutput, error) {
		ctx, cancel := withDeadline(ctx)
		defer cancel()
		view, err := deps.Connections.Connect(ctx, input.tenant(), input.Body.ClientID, input.Body.ClientSecret)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ConnectionOutput{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "disconnect",
		Method:      http.MethodDelete,
		Path:        "/api/v1/connection",
		Summary:     "Disconnect Planning Center",
		Tags:        []string{"Connection"},
	}, func(ctx context.Context, input *ConnectionInput) (*ConnectionOutput, error) {
		ctx, cancel := withDeadline(ctx)
		defer cancel()
		view, err := deps.Connections.Disconnect(ctx, input.tenant())
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ConnectionOutput{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "test-connection",
		Method:      http.MethodPost,
		Path:        "/api/v1/connection/test",
		Summary:     "Test the stored credentials against Planning Center",
		Tags:        []string{"Connection"},
	}, func(ctx context.Context, input *ConnectionInput) (*TestConnectionOutput, error) {
		ctx, cancel := withDeadline(ctx)
		defer cancel()
		report, err := deps.Connections.Test(ctx, input.tenant())
		if err != nil {
			return nil, toHumaError(err)
		}
		return &TestConnectionOutput{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "request-sync",
		Method:        http.MethodPost,
		Path:          "/api/v1/connection/sync",
		Summary:       "Schedule a background sync",
		Tags:          []string{"Connection"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *ConnectionInput) (*SyncOutput, error) {
		ctx, cancel := withDeadline(ctx)
		defer cancel()
		if err := deps.Connections.RequestSync(ctx, input.tenant()); err != nil {
			return nil, toHumaError(err)
		}
		out := &SyncOutput{}
		out.Body.Scheduled = true
		return out, nil
	})
}

// statusFor maps an error kind to the HTTP status of the connection endpoints.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotConnected:
		return http.StatusNotFound
	case domain.KindConnectionInactive:
		return http.StatusConflict
	case domain.KindInvalidParameters:
		return http.StatusUnprocessableEntity
	case domain.KindInvalidCredentials:
		return http.StatusBadRequest
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case domain.KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error409Conflict(trErr.Error())
	}

	var derr *domain.Error
	if !errors.As(err, &derr) || derr.Kind == domain.KindInternal {
		return huma.Error500InternalServerError("internal server error")
	}
	status := statusFor(derr.Kind)

	details := make([]error, 0, len(derr.Fields))
	for _, f := range derr.Fields {
		details = append(details, &huma.ErrorDetail{
			Message:  "invalid parameter",
			Location: "body." + f,
		})
	}
	return huma.NewError(status, derr.Message, details...)
}
