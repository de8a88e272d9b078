package auth

import (
	"testing"

	"github.com/lanshare/lanshare/internal/config"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("sekrit")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "" || hash == "sekrit" {
		t.Errorf("hash looks wrong: %q", hash)
	}

	if _, err := HashPassword(""); err == nil {
		t.Error("empty password accepted")
	}
}

func TestVerifierEnabled(t *testing.T) {
	hash, err := HashPassword("sekrit")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cfg  config.AuthConfig
		want bool
	}{
		{"off", config.AuthConfig{}, false},
		{"enabled without hash", config.AuthConfig{Enabled: true}, false},
		{"hash without enabled", config.AuthConfig{PasswordHash: hash}, false},
		{"on", config.AuthConfig{Enabled: true, Username: "u", PasswordHash: hash}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewVerifier(tt.cfg).Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}

	var nilVerifier *Verifier
	if nilVerifier.Enabled() {
		t.Error("nil verifier reports enabled")
	}
}

func TestVerify(t *testing.T) {
	hash, err := HashPassword("sekrit")
	if err != nil {
		t.Fatal(err)
	}
	v := NewVerifier(config.AuthConfig{Enabled: true, Username: "alice", PasswordHash: hash})

	if !v.Verify("alice", "sekrit") {
		t.Error("correct credentials rejected")
	}
	if v.Verify("alice", "wrong") {
		t.Error("wrong password accepted")
	}
	if v.Verify("bob", "sekrit") {
		t.Error("wrong username accepted")
	}

	disabled := NewVerifier(config.AuthConfig{})
	if !disabled.Verify("anyone", "anything") {
		t.Error("disabled verifier rejected a request")
	}
}
