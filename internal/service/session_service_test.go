package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"verifiedid/issuer/internal/model"
	"verifiedid/issuer/internal/repository"
)

func newTestSessions(t *testing.T, opts ...repository.MemoryOption) (SessionService, repository.StateStore) {
	t.Helper()
	store := repository.NewMemoryStateStore(100, opts...)
	return NewSessionService(store, 15*time.Minute, zap.NewNop()), store
}

func TestSessionService_CreateThenPoll(t *testing.T) {
	ctx := context.Background()
	sessions, _ := newTestSessions(t)

	id, err := sessions.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := sessions.Status(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got == nil || got.Status != model.StatusRequestCreated || got.Message != "Waiting for QR code to be scanned" {
		t.Fatalf("unexpected initial session %+v", got)
	}

	other, _ := sessions.Create(ctx)
	if other == id {
		t.Fatalf("expected fresh correlation ids")
	}
}

func TestSessionService_CallbackTransitions(t *testing.T) {
	cases := []struct {
		name        string
		status      model.RequestStatus
		detail      string
		wantMessage string
	}{
		{"retrieved", model.StatusRequestRetrieved, "", "QR Code is scanned. Waiting for issuance to complete..."},
		{"successful", model.StatusIssuanceSuccessful, "", "Credential successfully issued"},
		{"error", model.StatusIssuanceError, "boom", "boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			sessions, _ := newTestSessions(t)
			id, _ := sessions.Create(ctx)

			if err := sessions.ApplyCallback(ctx, id, tc.status, tc.detail); err != nil {
				t.Fatalf("apply: %v", err)
			}
			got, _ := sessions.Status(ctx, id)
			if got.Status != tc.status || got.Message != tc.wantMessage {
				t.Fatalf("unexpected session %+v", got)
			}
		})
	}
}

func TestSessionService_UnknownCorrelationIsNotCreated(t *testing.T) {
	ctx := context.Background()
	sessions, _ := newTestSessions(t)

	err := sessions.ApplyCallback(ctx, "not-a-known-id", model.StatusRequestRetrieved, "")
	if !errors.Is(err, ErrUnknownCorrelation) {
		t.Fatalf("expected ErrUnknownCorrelation, got %v", err)
	}
	if got, _ := sessions.Status(ctx, "not-a-known-id"); got != nil {
		t.Fatalf("callback must not create a session, got %+v", got)
	}
}

func TestSessionService_UnsupportedStatus(t *testing.T) {
	ctx := context.Background()
	sessions, _ := newTestSessions(t)
	id, _ := sessions.Create(ctx)

	for _, status := range []model.RequestStatus{"presentation_verified", model.StatusRequestCreated, ""} {
		if err := sessions.ApplyCallback(ctx, id, status, ""); !errors.Is(err, ErrUnsupportedStatus) {
			t.Fatalf("status %q: expected ErrUnsupportedStatus, got %v", status, err)
		}
	}
	got, _ := sessions.Status(ctx, id)
	if got.Status != model.StatusRequestCreated {
		t.Fatalf("unsupported status must not mutate the session, got %+v", got)
	}
}

func TestSessionService_RejectsRegression(t *testing.T) {
	ctx := context.Background()
	sessions, _ := newTestSessions(t)
	id, _ := sessions.Create(ctx)

	if err := sessions.ApplyCallback(ctx, id, model.StatusIssuanceSuccessful, ""); err != nil {
		t.Fatalf("apply success: %v", err)
	}
	if err := sessions.ApplyCallback(ctx, id, model.StatusRequestRetrieved, ""); !errors.Is(err, ErrStatusRegression) {
		t.Fatalf("expected ErrStatusRegression, got %v", err)
	}
	if err := sessions.ApplyCallback(ctx, id, model.StatusIssuanceError, "late"); !errors.Is(err, ErrStatusRegression) {
		t.Fatalf("expected terminal status to be final, got %v", err)
	}
	// an identical duplicate is accepted
	if err := sessions.ApplyCallback(ctx, id, model.StatusIssuanceSuccessful, ""); err != nil {
		t.Fatalf("duplicate callback: %v", err)
	}

	got, _ := sessions.Status(ctx, id)
	if got.Status != model.StatusIssuanceSuccessful {
		t.Fatalf("unexpected session %+v", got)
	}
}

func TestSessionService_DuplicateRetrievedThenError(t *testing.T) {
	ctx := context.Background()
	sessions, _ := newTestSessions(t)
	id, _ := sessions.Create(ctx)

	for i := 0; i < 2; i++ {
		if err := sessions.ApplyCallback(ctx, id, model.StatusRequestRetrieved, ""); err != nil {
			t.Fatalf("retrieved #%d: %v", i, err)
		}
	}
	if err := sessions.ApplyCallback(ctx, id, model.StatusIssuanceError, "boom"); err != nil {
		t.Fatalf("error callback: %v", err)
	}
	got, _ := sessions.Status(ctx, id)
	if got.Status != model.StatusIssuanceError || got.Message != "boom" {
		t.Fatalf("unexpected session %+v", got)
	}
}

func TestSessionService_ExpiredSessionIsAbsent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	sessions, _ := newTestSessions(t, repository.WithClock(clock))
	id, _ := sessions.Create(ctx)

	mu.Lock()
	now = now.Add(16 * time.Minute)
	mu.Unlock()

	if got, err := sessions.Status(ctx, id); err != nil || got != nil {
		t.Fatalf("expected expired session to be absent, got (%+v, %v)", got, err)
	}
	if err := sessions.ApplyCallback(ctx, id, model.StatusRequestRetrieved, ""); !errors.Is(err, ErrUnknownCorrelation) {
		t.Fatalf("expected ErrUnknownCorrelation after expiry, got %v", err)
	}
}

func TestSessionService_CannotReadFixedKeys(t *testing.T) {
	ctx := context.Background()
	sessions, store := newTestSessions(t)
	_ = store.Set(ctx, accessTokenKey, []byte("secret-token"), time.Minute)

	if got, err := sessions.Status(ctx, accessTokenKey); err != nil || got != nil {
		t.Fatalf("expected token key to be outside the session keyspace, got (%+v, %v)", got, err)
	}
}

func TestSessionService_ConcurrentCallbacks(t *testing.T) {
	ctx := context.Background()
	sessions, _ := newTestSessions(t)
	id, _ := sessions.Create(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := model.StatusRequestRetrieved
			if i%2 == 0 {
				status = model.StatusIssuanceSuccessful
			}
			_ = sessions.ApplyCallback(ctx, id, status, "")
		}(i)
	}
	wg.Wait()

	got, _ := sessions.Status(ctx, id)
	if got.Status != model.StatusIssuanceSuccessful {
		t.Fatalf("expected the terminal status to win, got %+v", got)
	}
}
