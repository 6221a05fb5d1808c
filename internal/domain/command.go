package domain

import "slices"

// Role is the caller's role within its organization.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleLeader Role = "LEADER"
	RoleMember Role = "MEMBER"
)

// TenantContext identifies who issued a command. It is supplied by the
// authentication layer and scopes every credential lookup and cached write.
type TenantContext struct {
	TenantID string
	UserID   string
	Role     Role
}

// HasRole reports whether the caller holds one of roles.
func (tc TenantContext) HasRole(roles ...Role) bool {
	return slices.Contains(roles, tc.Role)
}

// Command is a named, parameterized request for the dispatcher.
type Command struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	// Content is free text from the chat client. Dispatch logs it and
	// otherwise ignores it; a command without a name runs help.
	Content string `json:"content,omitempty"`
}

// Envelope is the uniform response shape returned by dispatch regardless of
// which command ran. Exactly one of Result or Error is populated.
type Envelope struct {
	Success        bool          `json:"success"`
	Command        string        `json:"command,omitempty"`
	Result         any           `json:"result,omitempty"`
	Error          string        `json:"error,omitempty"`
	ErrorKind      Kind          `json:"errorKind,omitempty"`
	MissingFields  []string      `json:"missingFields,omitempty"`
	AvailableTools []string      `json:"availableTools,omitempty"`
	Meta           *EnvelopeMeta `json:"meta,omitempty"`
}

// EnvelopeMeta carries per-dispatch diagnostics.
type EnvelopeMeta struct {
	RequestID  string `json:"requestId"`
	DurationMS int64  `json:"durationMs"`
}

// CommandInfo describes a registered command for discovery.
type CommandInfo struct {
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	RequiresConnection bool            `json:"requiresConnection"`
	Roles              []Role          `json:"roles,omitempty"`
	Parameters         []ParameterInfo `json:"parameters,omitempty"`
}

// ParameterInfo describes one command parameter.
type ParameterInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}
