//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
	"github.com/ErlanBelekov/channel-gate/internal/infrastructure/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// openRepo migrates into a throwaway schema of the database named by
// TEST_DATABASE_URL (postgres:// form) and drops it afterwards.
func openRepo(t *testing.T) *postgres.SessionRepository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(admin.Close)

	schema := "gate_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
	})

	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("TEST_DATABASE_URL must be a URL: %v", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	pool, err := postgres.NewPool(ctx, u.String())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	return postgres.NewSessionRepository(pool)
}

func session(id string, userID int64, createdAt time.Time) *domain.InviteSession {
	return &domain.InviteSession{
		ID:        id,
		UserID:    userID,
		LinkToken: "https://t.me/+" + id,
		Flow:      domain.FlowInteractive,
		State:     domain.InviteActive,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(24 * time.Hour),
	}
}

func TestSessionRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	created := time.Date(2025, 4, 29, 22, 15, 0, 0, time.UTC)

	if err := repo.Create(ctx, session("s1", 42, created)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, session("s1", 42, created)); err == nil {
		t.Error("duplicate id accepted")
	}

	got, err := repo.GetByID(ctx, "s1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.UserID != 42 || got.Flow != domain.FlowInteractive || got.State != domain.InviteActive {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(created) || got.TTL() != 24*time.Hour {
		t.Errorf("timestamps = %v / %v", got.CreatedAt, got.TTL())
	}
	if got.EndedAt != nil {
		t.Errorf("EndedAt = %v, want nil", got.EndedAt)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("GetByID(missing) err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionRepository_FinishKeepsFirstTerminalState(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	base := time.Date(2025, 4, 30, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d"} {
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
	if err := repo.Finish(ctx, "d", domain.InviteRevoked, base.Add(time.Minute)); err != nil {
		t.Fatalf("Finish d: %v", err)
	}

	b, err := repo.GetByID(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
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

func TestSessionRepository_ListActiveOrderedByCreation(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	// Inserted out of order on purpose.
	for _, s := range []*domain.InviteSession{
		session("late", 1, base.Add(2*time.Minute)),
		session("early", 2, base),
		session("middle", 3, base.Add(time.Minute)),
	} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, s := range active {
		ids = append(ids, s.ID)
	}
	if strings.Join(ids, ",") != "early,middle,late" {
		t.Errorf("ListActive order = %v", ids)
	}
}

func TestSessionRepository_JoinedUsersAreDistinct(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	base := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"j1", "j2", "j3"} {
		user := int64(50)
		if i == 2 {
			user = 40
		}
		if err := repo.Create(ctx, session(id, user, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
		if err := repo.Finish(ctx, id, domain.InviteJoined, base.Add(time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	joined, err := repo.ListJoinedUserIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(joined) != 2 || joined[0] != 40 || joined[1] != 50 {
		t.Errorf("ListJoinedUserIDs = %v, want [40 50]", joined)
	}
}

func TestSessionRepository_FinishUnknown(t *testing.T) {
	repo := openRepo(t)
	err := repo.Finish(context.Background(), "nope", domain.InviteRevoked, time.Now())
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionRepository_Ping(t *testing.T) {
	repo := openRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
