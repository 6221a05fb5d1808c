package domain

import "time"

// ConnectionStatus represents the health of a tenant's upstream connection.
type ConnectionStatus string

const (
	StatusActive       ConnectionStatus = "ACTIVE"
	StatusError        ConnectionStatus = "ERROR"
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
)

// ConnectionEvent represents an action that triggers a status transition.
type ConnectionEvent string

const (
	EventConnect       ConnectionEvent = "connect"
	EventTestSucceeded ConnectionEvent = "test_succeeded"
	EventTestFailed    ConnectionEvent = "test_failed"
	EventDisconnect    ConnectionEvent = "disconnect"
)

// Transition defines a valid status change: an event moves a connection from Src to Dst.
type Transition struct {
	Event ConnectionEvent
	Src   ConnectionStatus
	Dst   ConnectionStatus
}

// Transitions defines all valid status changes of a tenant connection.
// This is domain knowledge consumed by the FSM adapter.
var Transitions = []Transition{
	{Event: EventConnect, Src: StatusActive, Dst: StatusActive},
	{Event: EventConnect, Src: StatusError, Dst: StatusActive},
	{Event: EventConnect, Src: StatusDisconnected, Dst: StatusActive},
	{Event: EventTestSucceeded, Src: StatusActive, Dst: StatusActive},
	{Event: EventTestSucceeded, Src: StatusError, Dst: StatusActive},
	{Event: EventTestFailed, Src: StatusActive, Dst: StatusError},
	{Event: EventTestFailed, Src: StatusError, Dst: StatusError},
	{Event: EventDisconnect, Src: StatusActive, Dst: StatusDisconnected},
	{Event: EventDisconnect, Src: StatusError, Dst: StatusDisconnected},
}

// TenantConnection holds a tenant's encrypted upstream credentials and the
// outcome of the most recent test or sync.
type TenantConnection struct {
	TenantID              string
	EncryptedClientID     string
	EncryptedClientSecret string
	Status                ConnectionStatus
	RemoteOrgID           string
	RemoteOrgName         string
	LastErrorAt           *time.Time
	LastErrorMessage      string
	LastTestedAt          *time.Time
	LastSyncAt            *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewTenantConnection creates an active connection from freshly encrypted credentials.
func NewTenantConnection(tenantID, encryptedClientID, encryptedClientSecret string) TenantConnection {
	now := time.Now().UTC()
	return TenantConnection{
		TenantID:              tenantID,
		EncryptedClientID:     encryptedClientID,
		EncryptedClientSecret: encryptedClientSecret,
		Status:                StatusActive,
		LastTestedAt:          &now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// TestOutcome is the result of a connection test or sync attempt, recorded
// against the connection by the resolver.
type TestOutcome struct {
	Success       bool
	Message       string
	RemoteOrgID   string
	RemoteOrgName string
	// Sync marks outcomes produced by a full sync rather than a bare test.
	Sync bool
	At   time.Time
}

// Credentials is a decrypted upstream credential pair. It must never be
// persisted or logged.
type Credentials struct {
	ClientID     string
	ClientSecret string
}
