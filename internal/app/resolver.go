package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

// Compile-time check: Resolver implements domain.UpstreamResolver.
var _ domain.UpstreamResolver = (*Resolver)(nil)

// Resolver turns a tenant's stored connection into a ready upstream client.
// It is the only reader of encrypted credentials.
type Resolver struct {
	repo      domain.ConnectionRepository
	vault     domain.CredentialVault
	factory   domain.ClientFactory
	validator domain.TransitionValidator
	now       domain.Clock
}

// NewResolver creates a resolver with the given adapters.
func NewResolver(repo domain.ConnectionRepository, vault domain.CredentialVault, factory domain.ClientFactory, validator domain.TransitionValidator) *Resolver {
	return &Resolver{
		repo:      repo,
		vault:     vault,
		factory:   factory,
		validator: validator,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Resolve builds a client for the tenant's ACTIVE connection. The returned
// client owns a fresh rate limiter. Resolve has no side effects.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (domain.Upstream, error) {
	conn, err := r.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if conn.Status != domain.StatusActive {
		return nil, &domain.Error{
			Kind:    domain.KindConnectionInactive,
			Message: fmt.Sprintf("Planning Center connection is not active (status %s)", conn.Status),
		}
	}

	creds, err := r.Credentials(conn)
	if err != nil {
		return nil, err
	}

	return r.factory(creds)
}

// Credentials decrypts the connection's stored credential pair. Any failure
// is reported as connection_corrupted.
func (r *Resolver) Credentials(conn domain.TenantConnection) (domain.Credentials, error) {
	clientID, err := r.vault.Decrypt(conn.EncryptedClientID)
	if err != nil {
		return domain.Credentials{}, corrupted(err)
	}
	secret, err := r.vault.Decrypt(conn.EncryptedClientSecret)
	if err != nil {
		return domain.Credentials{}, corrupted(err)
	}
	return domain.Credentials{ClientID: clientID, ClientSecret: secret}, nil
}

// RecordTestResult applies the outcome of a connection test or sync to the
// stored connection and returns the updated record.
func (r *Resolver) RecordTestResult(ctx context.Context, tenantID string, outcome domain.TestOutcome) (domain.TenantConnection, error) {
	conn, err := r.load(ctx, tenantID)
	if err != nil {
		return domain.TenantConnection{}, err
	}

	event := domain.EventTestSucceeded
	if !outcome.Success {
		event = domain.EventTestFailed
	}

	status, err := r.validator.Apply(ctx, conn.Status, event)
	if err != nil {
		var trErr *domain.TransitionError
		if errors.As(err, &trErr) {
			return domain.TenantConnection{}, &domain.Error{
				Kind:    domain.KindConnectionInactive,
				Message: fmt.Sprintf("cannot record a test result for a %s connection", conn.Status),
				Cause:   err,
			}
		}
		return domain.TenantConnection{}, fmt.Errorf("applying %q: %w", event, err)
	}

	at := outcome.At
	if at.IsZero() {
		at = r.now()
	}

	conn.Status = status
	conn.LastTestedAt = &at
	if outcome.Success {
		conn.LastErrorAt = nil
		conn.LastErrorMessage = ""
		if outcome.RemoteOrgID != "" {
			conn.RemoteOrgID = outcome.RemoteOrgID
		}
		if outcome.RemoteOrgName != "" {
			conn.RemoteOrgName = outcome.RemoteOrgName
		}
		if outcome.Sync {
			conn.LastSyncAt = &at
		}
	} else {
		conn.LastErrorAt = &at
		conn.LastErrorMessage = outcome.Message
	}

	if err := r.repo.Update(ctx, conn); err != nil {
		return domain.TenantConnection{}, fmt.Errorf("updating tenant connection: %w", err)
	}
	return conn, nil
}

// load maps a missing row to not_connected.
func (r *Resolver) load(ctx context.Context, tenantID string) (domain.TenantConnection, error) {
	conn, err := r.repo.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrConnectionNotFound) {
			return domain.TenantConnection{}, &domain.Error{
				Kind:    domain.KindNotConnected,
				Message: "Planning Center not connected",
				Cause:   err,
			}
		}
		return domain.TenantConnection{}, fmt.Errorf("loading tenant connection: %w", err)
	}
	return conn, nil
}

func corrupted(err error) error {
	return &domain.Error{
		Kind:    domain.KindConnectionCorrupted,
		Message: "stored Planning Center credentials could not be decrypted",
		Cause:   err,
	}
}
