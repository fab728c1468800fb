package models

import "testing"

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}
}

func TestBeforeCreateHooksGenerateIDs(t *testing.T) {
	user := &User{}
	if err := user.BeforeCreate(nil); err != nil {
		t.Fatalf("user before create: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected user ID to be generated")
	}

	enrollment := &MFAEnrollment{}
	if err := enrollment.BeforeCreate(nil); err != nil {
		t.Fatalf("enrollment before create: %v", err)
	}
	if enrollment.ID == "" {
		t.Fatal("expected enrollment ID to be generated")
	}

	token := &RefreshToken{}
	if err := token.BeforeCreate(nil); err != nil {
		t.Fatalf("refresh token before create: %v", err)
	}
	if token.ID == "" {
		t.Fatal("expected refresh token ID to be generated")
	}

	event := &SecurityEvent{}
	if err := event.BeforeCreate(nil); err != nil {
		t.Fatalf("security event before create: %v", err)
	}
	if event.ID == "" {
		t.Fatal("expected security event ID to be generated")
	}
}

func TestBeforeCreatePreservesExistingID(t *testing.T) {
	token := &RefreshToken{ID: "fixed"}
	if err := token.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if token.ID != "fixed" {
		t.Fatalf("expected ID to be preserved, got %s", token.ID)
	}
}

func TestRoleValidity(t *testing.T) {
	for _, role := range Roles() {
		if !role.Valid() {
			t.Fatalf("expected role %q to be valid", role)
		}
	}

	for _, role := range []Role{"", "root", "ADMIN", "superuser"} {
		if role.Valid() {
			t.Fatalf("expected role %q to be invalid", role)
		}
	}
}
