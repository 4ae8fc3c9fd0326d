package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
	"github.com/ErlanBelekov/channel-gate/internal/infrastructure/sqlite"
)

func openRepo(t *testing.T) (*sqlite.SessionRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	db, err := sqlite.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	repo := sqlite.NewSessionRepository(db)
	t.Cleanup(func() { _ = repo.Close() })
	return repo, path
}

func session(id string, userID int64, createdAt time.Time) *domain.InviteSession {
	return &domain.InviteSession{
		ID:        id,
		UserID:    userID,
		LinkToken: "https://t.me/+" + id,
		Flow:      domain.FlowPaymentProof,
		State:     domain.InviteActive,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(time.Hour),
	}
}

func TestSessionRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo, _ := openRepo(t)
	created := time.Date(2025, 4, 29, 22, 15, 0, 0, time.UTC)

	if err := repo.Create(ctx, session("s1", 42, created)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, "s1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.UserID != 42 || got.Flow != domain.FlowPaymentProof || got.State != domain.InviteActive {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(created) || got.TTL() != time.Hour {
		t.Errorf("timestamps = %v / %v", got.CreatedAt, got.TTL())
	}
	if got.EndedAt != nil {
		t.Errorf("EndedAt = %v, want nil", got.EndedAt)
	}
}

func TestSessionRepository_FinishKeepsFirstTerminalState(t *testing.T) {
	ctx := context.Background()
	repo, _ := openRepo(t)
	base := time.Date(2025, 4, 30, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := repo.Create(ctx, session(id, int64(i+1), base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	if err := repo.Finish(ctx, "b", domain.InviteExpired, base.Add(time.Hour)); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := repo.Finish(ctx, "b", domain.InviteJoined, base.Add(2*time.Hour)); err != nil {
		t.Fatalf("second Finish: %v", err)
	}
	if err := repo.Finish(ctx, "c", domain.InviteJoined, base.Add(time.Minute)); err != nil {
		t.Fatalf("Finish c: %v", err)
	}

	b, _ := repo.GetByID(ctx, "b")
	if b.State != domain.InviteExpired {
		t.Errorf("b state = %s, want expired", b.State)
	}
	if b.EndedAt == nil || !b.EndedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("b EndedAt = %v", b.EndedAt)
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != "a" {
		t.Errorf("ListActive returned %d sessions, want only a", len(active))
	}

	joined, err := repo.ListJoinedUserIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(joined) != 1 || joined[0] != 3 {
		t.Errorf("ListJoinedUserIDs = %v, want [3]", joined)
	}
}

func TestSessionRepository_FinishUnknown(t *testing.T) {
	repo, _ := openRepo(t)
	err := repo.Finish(context.Background(), "nope", domain.InviteRevoked, time.Now())
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionRepository_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	repo, path := openRepo(t)
	if err := repo.Create(ctx, session("persist", 7, time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	_ = repo.Close()

	db, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened := sqlite.NewSessionRepository(db)
	defer reopened.Close()

	active, err := reopened.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != "persist" {
		t.Errorf("ListActive after reopen = %d sessions", len(active))
	}
}
