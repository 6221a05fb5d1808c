package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

// Compile-time check: Dispatch implements domain.Dispatcher.
var _ domain.Dispatcher = (*Dispatch)(nil)

// Dispatch routes commands through validation, role checks and connection
// resolution to their handlers. It never returns a raw error; every outcome
// is an Envelope.
type Dispatch struct {
	registry *Registry
	resolver domain.UpstreamResolver
	logger   *slog.Logger
	newID    func() string
	now      domain.Clock
}

// NewDispatch creates a dispatcher over registry.
func NewDispatch(registry *Registry, resolver domain.UpstreamResolver, logger *slog.Logger) *Dispatch {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatch{
		registry: registry,
		resolver: resolver,
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Commands describes the registered commands.
func (d *Dispatch) Commands() []domain.CommandInfo {
	return d.registry.Commands()
}

// Dispatch executes cmd for the tenant in tc.
func (d *Dispatch) Dispatch(ctx context.Context, tc domain.TenantContext, cmd domain.Command) domain.Envelope {
	start := d.now()
	requestID := d.newID()

	name := cmd.Name
	if name == "" {
		name = HelpCommand
	}

	result, err := d.execute(ctx, tc, name, cmd.Parameters)

	env := domain.Envelope{
		Success: err == nil,
		Command: name,
		Meta: &domain.EnvelopeMeta{
			RequestID:  requestID,
			DurationMS: d.now().Sub(start).Milliseconds(),
		},
	}
	if err == nil {
		env.Result = result
	} else {
		env.Error = err.Error()
		env.ErrorKind = domain.KindOf(err)
		var de *domain.Error
		if errors.As(err, &de) && de.Kind == domain.KindInvalidParameters {
			env.MissingFields = de.Fields
		}
		if env.ErrorKind == domain.KindUnknownCommand {
			env.AvailableTools = d.registry.Names()
		}
	}

	d.log(ctx, tc, cmd.Content, env, err)
	return env
}

func (d *Dispatch) execute(ctx context.Context, tc domain.TenantContext, name string, raw map[string]any) (_ any, err error) {
	def, ok := d.registry.Lookup(name)
	if !ok {
		return nil, domain.NewUnknownCommandError(name)
	}

	params, err := def.bind(raw)
	if err != nil {
		return nil, err
	}

	if len(def.roles) > 0 {
		if err := requireRole(tc, def.roles...); err != nil {
			return nil, err
		}
	}

	call := NewCall(tc, d.resolver)
	if def.needsUpstream {
		if _, err := call.Upstream(ctx); err != nil {
			return nil, err
		}
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "command handler panicked",
				"command", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = domain.Wrap(domain.KindInternal, "internal error while running "+name, fmt.Errorf("panic: %v", r))
		}
	}()

	return def.run(ctx, call, params)
}

func (d *Dispatch) log(ctx context.Context, tc domain.TenantContext, content string, env domain.Envelope, err error) {
	attrs := []any{
		"command", env.Command,
		"tenant_id", tc.TenantID,
		"user_id", tc.UserID,
		"request_id", env.Meta.RequestID,
		"success", env.Success,
		"duration_ms", env.Meta.DurationMS,
	}
	if content != "" {
		attrs = append(attrs, "content", content)
	}
	if err == nil {
		d.logger.InfoContext(ctx, "command dispatched", attrs...)
		return
	}

	attrs = append(attrs, "error_kind", env.ErrorKind, "error", err)
	if env.ErrorKind == domain.KindInternal {
		d.logger.ErrorContext(ctx, "command failed", attrs...)
		return
	}
	d.logger.WarnContext(ctx, "command failed", attrs...)
}
