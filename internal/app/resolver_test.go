package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/neomorfeo/rosterlink/internal/app"
	"github.com/neomorfeo/rosterlink/internal/app/apptest"
	"github.com/neomorfeo/rosterlink/internal/domain"
)

func newResolver(t *testing.T, conns ...domain.TenantConnection) (*app.Resolver, *apptest.Repo, *[]domain.Credentials) {
	t.Helper()
	repo := apptest.NewRepo(conns...)
	var seen []domain.Credentials
	factory := apptest.Factory(&apptest.Upstream{}, &seen)
	return app.NewResolver(repo, apptest.Vault{}, factory, apptest.Transitions{}), repo, &seen
}

func TestResolve_NoConnection(t *testing.T) {
	r, _, _ := newResolver(t)

	_, err := r.Resolve(context.Background(), "t1")
	if !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected not_connected, got %v", err)
	}
	if err.Error() != "Planning Center not connected" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestResolve_Inactive(t *testing.T) {
	for _, status := range []domain.ConnectionStatus{domain.StatusError, domain.StatusDisconnected} {
		t.Run(string(status), func(t *testing.T) {
			conn := apptest.ActiveConnection("t1", "id", "secret")
			conn.Status = status
			r, _, seen := newResolver(t, conn)

			_, err := r.Resolve(context.Background(), "t1")
			if !errors.Is(err, domain.ErrConnectionInactive) {
				t.Fatalf("expected connection_inactive, got %v", err)
			}
			if errors.Is(err, domain.ErrNotConnected) {
				t.Error("inactive must be distinguishable from not connected")
			}
			if len(*seen) != 0 {
				t.Error("no client may be built for an inactive connection")
			}
		})
	}
}

func TestResolve_Corrupted(t *testing.T) {
	conn := apptest.ActiveConnection("t1", "id", "secret")
	conn.EncryptedClientSecret = "garbage"
	r, _, _ := newResolver(t, conn)

	_, err := r.Resolve(context.Background(), "t1")
	if domain.KindOf(err) != domain.KindConnectionCorrupted {
		t.Fatalf("kind = %q, want %q", domain.KindOf(err), domain.KindConnectionCorrupted)
	}
	if !errors.Is(err, domain.ErrDecryptionFailure) {
		t.Error("cause should keep the decryption failure")
	}
}

func TestResolve_Active(t *testing.T) {
	r, _, seen := newResolver(t, apptest.ActiveConnection("t1", "app-id", "app-secret"))

	up, err := r.Resolve(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if up == nil {
		t.Fatal("expected an upstream")
	}
	want := []domain.Credentials{{ClientID: "app-id", ClientSecret: "app-secret"}}
	if diff := cmp.Diff(want, *seen); diff != "" {
		t.Errorf("credentials mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_RepositoryFailure(t *testing.T) {
	r, repo, _ := newResolver(t)
	repo.Err = errors.New("disk gone")

	_, err := r.Resolve(context.Background(), "t1")
	if err == nil || errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected a storage error, got %v", err)
	}
}

func TestRecordTestResult_Failure(t *testing.T) {
	r, repo, _ := newResolver(t, apptest.ActiveConnection("t1", "id", "secret"))

	conn, err := r.RecordTestResult(context.Background(), "t1", domain.TestOutcome{Message: "401 Unauthorized"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.Status != domain.StatusError {
		t.Errorf("Status = %q, want %q", conn.Status, domain.StatusError)
	}
	if conn.LastErrorAt == nil || conn.LastErrorMessage != "401 Unauthorized" {
		t.Errorf("last error = %v %q", conn.LastErrorAt, conn.LastErrorMessage)
	}

	stored, _ := repo.Get(context.Background(), "t1")
	if stored.Status != domain.StatusError {
		t.Errorf("stored Status = %q", stored.Status)
	}
}

func TestRecordTestResult_RecoveryClearsError(t *testing.T) {
	conn := apptest.ActiveConnection("t1", "id", "secret")
	conn.Status = domain.StatusError
	conn.LastErrorMessage = "boom"
	r, _, _ := newResolver(t, conn)

	got, err := r.RecordTestResult(context.Background(), "t1", domain.TestOutcome{
		Success:       true,
		RemoteOrgID:   "42",
		RemoteOrgName: "Grace Church",
		Sync:          true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.StatusActive {
		t.Errorf("Status = %q, want %q", got.Status, domain.StatusActive)
	}
	if got.LastErrorAt != nil || got.LastErrorMessage != "" {
		t.Error("success should clear the last error")
	}
	if got.RemoteOrgName != "Grace Church" || got.RemoteOrgID != "42" {
		t.Errorf("remote org = %q %q", got.RemoteOrgID, got.RemoteOrgName)
	}
	if got.LastSyncAt == nil {
		t.Error("sync outcome should set LastSyncAt")
	}
}

func TestRecordTestResult_Disconnected(t *testing.T) {
	conn := apptest.ActiveConnection("t1", "id", "secret")
	conn.Status = domain.StatusDisconnected
	r, _, _ := newResolver(t, conn)

	_, err := r.RecordTestResult(context.Background(), "t1", domain.TestOutcome{Success: true})
	if !errors.Is(err, domain.ErrConnectionInactive) {
		t.Fatalf("expected connection_inactive, got %v", err)
	}
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Error("cause should be the transition error")
	}
}

func TestRecordTestResult_NoConnection(t *testing.T) {
	r, _, _ := newResolver(t)

	_, err := r.RecordTestResult(context.Background(), "t1", domain.TestOutcome{})
	if !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected not_connected, got %v", err)
	}
}
