package core_test

import (
	"context"
	"errors"
	"testing"

	"sitecontent/internal/core"
	"sitecontent/pkg/domain"
)

func TestCreateUserHashesPassword(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "admin", "admin@example.com", "correct horse")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, leaked := user["passwordHash"]; leaked {
		t.Fatalf("password hash exposed: %v", user)
	}
	if user.String("role") != "admin" {
		t.Fatalf("expected default role admin, got %q", user.String("role"))
	}
	stored := svc.Store().ExportState().Collections[domain.CollectionUsers][0]
	if hash := stored.String("passwordHash"); hash == "" || hash == "correct horse" {
		t.Fatalf("password not hashed: %q", hash)
	}

	if _, err := svc.CreateUser(ctx, "ADMIN", "", "another password"); !domain.IsValidation(err) {
		t.Fatalf("expected duplicate username rejection, got %v", err)
	}
	if _, err := svc.CreateUser(ctx, "short", "", "123"); !domain.IsValidation(err) {
		t.Fatalf("expected short password rejection, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc := core.NewInMemoryService()
	ctx := context.Background()
	if ok, _ := svc.HasUsers(ctx); ok {
		t.Fatalf("expected no users")
	}
	if _, err := svc.CreateUser(ctx, "editor", "ed@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "ed@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("authenticate by email: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "editor", "wrong"); !errors.Is(err, core.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody", "s3cret-pass"); !errors.Is(err, core.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
}

func TestUploadKey(t *testing.T) {
	cases := map[string]string{
		"/uploads/a.png":        "uploads/a.png",
		"/images/uploads/b.jpg": "uploads/b.jpg",
	}
	for in, want := range cases {
		got, ok := core.UploadKey(in)
		if !ok || got != want {
			t.Fatalf("UploadKey(%q) = %q, %v", in, got, ok)
		}
	}
	for _, in := range []string{"/images/logo.png", "/uploads/", "/uploads/../secret"} {
		if _, ok := core.UploadKey(in); ok {
			t.Fatalf("expected %q rejected", in)
		}
	}
}
