package engine

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestAuthenticateGrantsOnCorrectKey(t *testing.T) {
	s := NewSessions("hunter2", "")
	if s.IsAuthenticated("u1") {
		t.Fatal("session should start unauthenticated")
	}
	if err := s.Authenticate("u1", "hunter2"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !s.IsAuthenticated("u1") {
		t.Fatal("session should be authenticated after key match")
	}
}

func TestAuthenticateRejectsWrongKey(t *testing.T) {
	s := NewSessions("hunter2", "")
	if err := s.Authenticate("u1", "wrong"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("err = %v, want ErrInvalidKey", err)
	}
	if s.IsAuthenticated("u1") {
		t.Fatal("failed authentication must not grant access")
	}
}

func TestAuthenticateRejectsWhenNoKeyConfigured(t *testing.T) {
	s := NewSessions("", "")
	if err := s.Authenticate("u1", ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("err = %v, want ErrInvalidKey", err)
	}
}

func TestSessionsPersistAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	s := NewSessions("hunter2", path)
	if err := s.Authenticate("u1", "hunter2"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	s.Grant("u2")

	restored := NewSessions("hunter2", path)
	if err := restored.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !restored.IsAuthenticated("u1") || !restored.IsAuthenticated("u2") {
		t.Fatal("granted sessions should survive restart")
	}
	if restored.IsAuthenticated("u3") {
		t.Fatal("unknown session should stay unauthenticated")
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	s := NewSessions("hunter2", filepath.Join(t.TempDir(), "absent.json"))
	if err := s.Load(); err != nil {
		t.Fatalf("load of missing file: %v", err)
	}
}
