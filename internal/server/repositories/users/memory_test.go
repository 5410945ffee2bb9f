package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/identkit/identkit/internal/common"
	"github.com/identkit/identkit/internal/server/models"
)

func newUser(id, username, email string) *models.User {
	return &models.User{ID: id, Username: username, Email: email, PasswordHash: "h"}
}

func TestMemory_CreateAndFind(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()

	u := newUser("u1", "username", "test@test.com")
	u.VerificationToken = "vt-1"
	if _, err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	for _, f := range []Filter{
		{ID: "u1"},
		{Username: "username"},
		{Email: "test@test.com"},
		{VerificationToken: "vt-1"},
		{Username: "username", Email: "test@test.com"},
	} {
		got, err := repo.Find(ctx, f)
		if err != nil {
			t.Fatalf("Find(%+v) error: %v", f, err)
		}
		if got.ID != "u1" {
			t.Fatalf("Find(%+v): got %q", f, got.ID)
		}
	}

	if _, err := repo.Find(ctx, Filter{Email: "other@test.com"}); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
	if _, err := repo.Find(ctx, Filter{}); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("empty filter must match nothing, got %v", err)
	}
}

func TestMemory_UniqueConstraints(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, newUser("u1", "username", "test@test.com")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	_, err := repo.Create(ctx, newUser("u2", "username", "other@test.com"))
	var ce *common.ConstraintError
	if !errors.As(err, &ce) || ce.Field != "username" {
		t.Fatalf("want username constraint, got %v", err)
	}

	_, err = repo.Create(ctx, newUser("u3", "otheruser", "test@test.com"))
	if !errors.As(err, &ce) || ce.Field != "email" {
		t.Fatalf("want email constraint, got %v", err)
	}
}

func TestMemory_UpdateClearsTokens(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()

	u := newUser("u1", "username", "test@test.com")
	u.RecoveryToken = "rt-1"
	u.RecoveryRequestedAt = time.Now()
	if _, err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	empty := ""
	var zero time.Time
	err := repo.Update(ctx, Filter{RecoveryToken: "rt-1"}, Patch{
		RecoveryToken:       &empty,
		RecoveryRequestedAt: &zero,
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}

	got, err := repo.Find(ctx, Filter{ID: "u1"})
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if got.RecoveryToken != "" || !got.RecoveryRequestedAt.IsZero() {
		t.Fatalf("recovery fields not cleared: %+v", got)
	}

	if _, err := repo.Find(ctx, Filter{RecoveryToken: "rt-1"}); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("consumed token still matches: %v", err)
	}
}

func TestMemory_UpdateUniqueViolation(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, newUser("u1", "username", "test@test.com")); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, err := repo.Create(ctx, newUser("u2", "otheruser", "other@test.com")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	taken := "test@test.com"
	err := repo.Update(ctx, Filter{ID: "u2"}, Patch{Email: &taken})
	var ce *common.ConstraintError
	if !errors.As(err, &ce) || ce.Field != "email" {
		t.Fatalf("want email constraint, got %v", err)
	}
}

func TestMemory_UpdateRejectedPatchLeavesRecordUntouched(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, newUser("u1", "username", "test@test.com")); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, err := repo.Create(ctx, newUser("u2", "otheruser", "other@test.com")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	freeName := "freshname"
	takenEmail := "test@test.com"
	err := repo.Update(ctx, Filter{ID: "u2"}, Patch{Username: &freeName, Email: &takenEmail})
	var ce *common.ConstraintError
	if !errors.As(err, &ce) || ce.Field != "email" {
		t.Fatalf("want email constraint, got %v", err)
	}

	u, err := repo.Find(ctx, Filter{ID: "u2"})
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if u.Username != "otheruser" || u.Email != "other@test.com" {
		t.Fatalf("record half-applied: %q %q", u.Username, u.Email)
	}
}

func TestMemory_DeleteIdempotent(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, newUser("u1", "username", "test@test.com")); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := repo.Delete(ctx, Filter{ID: "u1"}); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := repo.Delete(ctx, Filter{ID: "u1"}); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}

	ok, err := repo.Exists(ctx, Filter{ID: "u1"})
	if err != nil || ok {
		t.Fatalf("user still exists after delete: ok=%v err=%v", ok, err)
	}
}
