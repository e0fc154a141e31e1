package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"resturant.app/internal/auth"
)

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx auth.Store) error {
		if err := tx.Users().Create(ctx, &auth.User{Email: "a@example.com"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.Users().FindByEmail(ctx, "a@example.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("user leaked out of rolled back tx: %v", err)
	}
}

func TestInTxJoinsOuterTransaction(t *testing.T) {
	ctx := context.Background()
	s := New()
	err := s.InTx(ctx, func(tx auth.Store) error {
		return tx.InTx(ctx, func(inner auth.Store) error {
			return inner.Users().Create(ctx, &auth.User{Email: "b@example.com"})
		})
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if _, err := s.Users().FindByEmail(ctx, "B@EXAMPLE.COM"); err != nil {
		t.Fatalf("expected committed user: %v", err)
	}
}

func TestUserEmailUniqueCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Users().Create(ctx, &auth.User{Email: "c@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Users().Create(ctx, &auth.User{Email: "C@Example.com"}); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRevokeIsConditional(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()
	tok := &auth.RefreshToken{ID: "t1", UserID: "u1", TokenHash: "h1", JwtID: "j1", CreatedOn: now, ExpiresOn: now.Add(time.Hour)}
	if err := s.RefreshTokens().Create(ctx, tok); err != nil {
		t.Fatalf("create: %v", err)
	}
	ok, err := s.RefreshTokens().Revoke(ctx, "t1", now, "1.2.3.4", "t2")
	if err != nil || !ok {
		t.Fatalf("first revoke ok=%v err=%v", ok, err)
	}
	ok, err = s.RefreshTokens().Revoke(ctx, "t1", now, "5.6.7.8", "t3")
	if err != nil || ok {
		t.Fatalf("second revoke ok=%v err=%v", ok, err)
	}
	got, _ := s.RefreshTokens().Find(ctx, "t1")
	if got.RevokedByIP != "1.2.3.4" || got.ReplacedByTokenID != "t2" {
		t.Fatalf("first revocation overwritten: %+v", got)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 2; i++ {
		if err := Seed(ctx, s); err != nil {
			t.Fatalf("seed #%d: %v", i, err)
		}
	}
	perms, _ := s.Permissions().List(ctx)
	if len(perms) != len(SeedPermissions) {
		t.Fatalf("expected %d permissions, got %d", len(SeedPermissions), len(perms))
	}
	user, err := s.Roles().FindByName(ctx, "user")
	if err != nil {
		t.Fatalf("user role: %v", err)
	}
	linked, _ := s.Permissions().ForRole(ctx, user.ID)
	if len(linked) != 1 || linked[0].Code != "VIEW_ORDERS" {
		t.Fatalf("unexpected user permissions: %+v", linked)
	}
	admin, _ := s.Roles().FindByName(ctx, AdminRole)
	linked, _ = s.Permissions().ForRole(ctx, admin.ID)
	if len(linked) != len(SeedPermissions) {
		t.Fatalf("admin should hold every permission, got %d", len(linked))
	}
}

func TestDeletePermissionReferencedConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := Seed(ctx, s); err != nil {
		t.Fatal(err)
	}
	perms, _ := s.Permissions().List(ctx)
	if err := s.Permissions().Delete(ctx, perms[0].ID); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
