package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

// HelpCommand is the built-in introspection command. It never needs a connection.
const HelpCommand = "help"

// Handler runs one command against its validated parameters.
type Handler[P any] func(ctx context.Context, call *Call, params P) (any, error)

// Validatable is implemented by parameter structs with cross-field rules
// that struct tags cannot express.
type Validatable interface {
	Validate() error
}

// Call is the per-dispatch execution context handed to a handler.
type Call struct {
	Tenant domain.TenantContext

	resolver domain.UpstreamResolver

	mu       sync.Mutex
	upstream domain.Upstream
	err      error
	resolved bool
}

// NewCall creates a call context that resolves the tenant's upstream on demand.
func NewCall(tc domain.TenantContext, resolver domain.UpstreamResolver) *Call {
	return &Call{Tenant: tc, resolver: resolver}
}

// Upstream resolves the tenant's upstream client at most once per call.
func (c *Call) Upstream(ctx context.Context) (domain.Upstream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.resolved {
		if c.resolver == nil {
			c.err = domain.Wrap(domain.KindInternal, "no upstream resolver configured", nil)
		} else {
			c.upstream, c.err = c.resolver.Resolve(ctx, c.Tenant.TenantID)
		}
		c.resolved = true
	}
	return c.upstream, c.err
}

// Definition binds a command name to its parameter shape and handler.
type Definition struct {
	name          string
	description   string
	needsUpstream bool
	roles         []domain.Role
	schema        *jsonschema.Schema
	params        []domain.ParameterInfo

	bind func(raw map[string]any) (any, error)
	run  func(ctx context.Context, call *Call, params any) (any, error)
}

// Option configures a Definition.
type Option func(*Definition)

// NeedsUpstream marks a command that always calls the upstream. Its
// connection is resolved before the handler runs.
func NeedsUpstream() Option {
	return func(d *Definition) { d.needsUpstream = true }
}

// AllowRoles restricts a command to callers holding one of roles.
func AllowRoles(roles ...domain.Role) Option {
	return func(d *Definition) { d.roles = roles }
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Define builds a command definition. P must be a struct; its json tags name
// the parameters, validate tags constrain them and jsonschema tags describe them.
func Define[P any](name, description string, handler Handler[P], opts ...Option) Definition {
	schema, err := jsonschema.For[P](nil)
	if err != nil {
		panic(fmt.Sprintf("command %s: deriving parameter schema: %v", name, err))
	}

	d := Definition{
		name:        name,
		description: description,
		schema:      schema,
		params:      parameterInfo(schema),
		bind: func(raw map[string]any) (any, error) {
			return bindParams[P](raw)
		},
		run: func(ctx context.Context, call *Call, params any) (any, error) {
			return handler(ctx, call, params.(P))
		},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Name returns the command name.
func (d Definition) Name() string { return d.name }

// Info describes the command for discovery.
func (d Definition) Info() domain.CommandInfo {
	return domain.CommandInfo{
		Name:               d.name,
		Description:        d.description,
		RequiresConnection: d.needsUpstream,
		Roles:              d.roles,
		Parameters:         d.params,
	}
}

func bindParams[P any](raw map[string]any) (P, error) {
	var params P
	if raw == nil {
		raw = map[string]any{}
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return params, domain.NewInvalidParametersError("parameters are not valid JSON")
	}
	if err := json.Unmarshal(data, &params); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return params, domain.NewInvalidParametersError(
				fmt.Sprintf("parameter %s must be %s", typeErr.Field, typeErr.Type.Kind()), typeErr.Field)
		}
		return params, domain.NewInvalidParametersError("invalid parameters: " + err.Error())
	}

	if err := validate.Struct(params); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return params, validationError(verrs)
		}
		return params, domain.NewInvalidParametersError("invalid parameters: " + err.Error())
	}

	if v, ok := any(params).(Validatable); ok {
		if err := v.Validate(); err != nil {
			if domain.KindOf(err) == domain.KindInvalidParameters {
				return params, err
			}
			return params, domain.NewInvalidParametersError(err.Error())
		}
	}
	return params, nil
}

func validationError(verrs validator.ValidationErrors) error {
	var (
		fields  []string
		missing []string
		other   []string
	)
	for _, fe := range verrs {
		field := fieldPath(fe)
		fields = append(fields, field)
		switch fe.Tag() {
		case "required":
			missing = append(missing, field)
		case "required_without_all":
			// Reported on every alternative; one message covers them all.
			if len(missing) == 0 || !strings.HasPrefix(missing[len(missing)-1], "one of") {
				alts := append([]string{field}, lowerFirstAll(strings.Fields(fe.Param()))...)
				missing = append(missing, "one of "+strings.Join(alts, ", "))
			}
		default:
			other = append(other, describe(field, fe))
		}
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required parameter: "+strings.Join(missing, "; "))
	}
	parts = append(parts, other...)
	return domain.NewInvalidParametersError(strings.Join(parts, "; "), fields...)
}

// fieldPath strips the parameter struct's type name from the namespace,
// e.g. "scheduleTeamParams.assignments[0].personId" -> "assignments[0].personId".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date formatted as %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be an email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}

// validator params for required_without_all carry Go field names.
func lowerFirstAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		if n != "" {
			out[i] = strings.ToLower(n[:1]) + n[1:]
		}
	}
	return out
}

func parameterInfo(schema *jsonschema.Schema) []domain.ParameterInfo {
	if schema == nil || len(schema.Properties) == 0 {
		return nil
	}

	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]domain.ParameterInfo, 0, len(names))
	for _, name := range names {
		prop := schema.Properties[name]
		out = append(out, domain.ParameterInfo{
			Name:        name,
			Type:        schemaType(prop),
			Required:    slices.Contains(schema.Required, name),
			Description: prop.Description,
		})
	}
	return out
}

func schemaType(s *jsonschema.Schema) string {
	if s.Type != "" {
		return s.Type
	}
	for _, t := range s.Types {
		if t != "null" {
			return t
		}
	}
	return "any"
}

// Registry is the immutable set of commands known to the dispatcher.
type Registry struct {
	defs  map[string]Definition
	names []string
}

// NewRegistry builds a registry from defs. Names must be unique and may not
// shadow the built-in help command.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs)+1)}
	for _, d := range defs {
		switch {
		case d.name == "":
			return nil, domain.Wrap(domain.KindConfiguration, "command name is empty", nil)
		case d.name == HelpCommand:
			return nil, domain.Wrap(domain.KindConfiguration, "command name help is reserved", nil)
		case d.run == nil:
			return nil, domain.Wrap(domain.KindConfiguration, fmt.Sprintf("command %s has no handler", d.name), nil)
		}
		if _, dup := r.defs[d.name]; dup {
			return nil, domain.Wrap(domain.KindConfiguration, fmt.Sprintf("command %s registered twice", d.name), nil)
		}
		r.defs[d.name] = d
		r.names = append(r.names, d.name)
	}

	r.defs[HelpCommand] = Define[struct{}](HelpCommand, "List the available commands and their parameters.", r.help)
	r.names = append(r.names, HelpCommand)
	slices.Sort(r.names)
	return r, nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns every registered command name, sorted.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Commands describes every registered command, sorted by name.
func (r *Registry) Commands() []domain.CommandInfo {
	out := make([]domain.CommandInfo, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.defs[name].Info())
	}
	return out
}

// Schema returns the JSON schema of a command's parameters.
func (r *Registry) Schema(name string) (*jsonschema.Schema, bool) {
	d, ok := r.defs[name]
	if !ok {
		return nil, false
	}
	return d.schema, true
}

// HelpResult is the result of the help command.
type HelpResult struct {
	Commands []domain.CommandInfo `json:"commands"`
}

func (r *Registry) help(_ context.Context, _ *Call, _ struct{}) (any, error) {
	return HelpResult{Commands: r.Commands()}, nil
}
