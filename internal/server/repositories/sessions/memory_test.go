package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/identkit/identkit/internal/common"
	"github.com/identkit/identkit/internal/server/models"
)

func newSession(userID, token string, expiresAt time.Time) *models.Session {
	return &models.Session{UserID: userID, Token: token, ExpiresAt: expiresAt}
}

func TestMemory_Rotate_InvalidatesOldToken(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	if err := repo.Create(ctx, newSession("u1", "old", now.Add(time.Hour))); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	rotated, err := repo.Rotate(ctx, "u1", "old", "new", now.Add(2*time.Hour), now)
	if err != nil {
		t.Fatalf("Rotate error: %v", err)
	}
	if rotated.Token != "new" {
		t.Fatalf("unexpected rotated session: %+v", rotated)
	}

	if _, err := repo.Find(ctx, "u1", "old"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("old token still resolves: %v", err)
	}
	if _, err := repo.Find(ctx, "u1", "new"); err != nil {
		t.Fatalf("new token does not resolve: %v", err)
	}
}

func TestMemory_Rotate_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	if err := repo.Create(ctx, newSession("u1", "stale", now.Add(time.Hour))); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, _ := common.MakeRandHexString(8)
			_, errs[i] = repo.Rotate(ctx, "u1", "stale", tok, now.Add(2*time.Hour), now)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, common.ErrorNotFound) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("want exactly one winner, got %d", winners)
	}
}

func TestMemory_Rotate_RefusesExpired(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	if err := repo.Create(ctx, newSession("u1", "dead", now.Add(-time.Minute))); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	_, err := repo.Rotate(ctx, "u1", "dead", "new", now.Add(time.Hour), now)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound for expired session, got %v", err)
	}
}

func TestMemory_DeleteExpired(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	_ = repo.Create(ctx, newSession("u1", "live", now.Add(time.Hour)))
	_ = repo.Create(ctx, newSession("u1", "dead", now.Add(-time.Minute)))
	_ = repo.Create(ctx, newSession("u2", "dead-other", now.Add(-time.Minute)))

	if err := repo.DeleteExpired(ctx, "u1", now); err != nil {
		t.Fatalf("DeleteExpired error: %v", err)
	}

	if _, err := repo.Find(ctx, "u1", "live"); err != nil {
		t.Fatalf("live session purged: %v", err)
	}
	if _, err := repo.Find(ctx, "u1", "dead"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expired session survived: %v", err)
	}
	// purge is scoped to the user
	if _, err := repo.Find(ctx, "u2", "dead-other"); err != nil {
		t.Fatalf("other user's session purged: %v", err)
	}
}

func TestMemory_DeleteIdempotent(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()

	_ = repo.Create(ctx, newSession("u1", "tok", time.Now().Add(time.Hour)))
	if err := repo.Delete(ctx, "u1", "tok"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := repo.Delete(ctx, "u1", "tok"); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
	// deleting with the wrong owner is also a no-op
	_ = repo.Create(ctx, newSession("u1", "tok2", time.Now().Add(time.Hour)))
	if err := repo.Delete(ctx, "u2", "tok2"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := repo.Find(ctx, "u1", "tok2"); err != nil {
		t.Fatalf("session deleted by non-owner: %v", err)
	}
}

func TestMemory_DeleteAll(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	_ = repo.Create(ctx, newSession("u1", "a", now.Add(time.Hour)))
	_ = repo.Create(ctx, newSession("u1", "b", now.Add(time.Hour)))
	_ = repo.Create(ctx, newSession("u2", "c", now.Add(time.Hour)))

	if err := repo.DeleteAll(ctx, "u1"); err != nil {
		t.Fatalf("DeleteAll error: %v", err)
	}
	if _, err := repo.FindByToken(ctx, "a"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("session survived DeleteAll: %v", err)
	}
	if _, err := repo.FindByToken(ctx, "c"); err != nil {
		t.Fatalf("other user's session removed: %v", err)
	}
}
