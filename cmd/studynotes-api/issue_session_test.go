package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/auth"
	"github.com/spf13/viper"
)

func TestIssueSessionProducesValidatableCookie(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("tauth.signing_secret", "dev-secret")
	viper.Set("tauth.issuer", "tauth")
	viper.Set("tauth.cookie_name", "app_session")

	cmd := newIssueSessionCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--user-id", "google:42", "--email", "ada@example.com", "--role", "admin"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("issue-session failed: %v", err)
	}

	firstLine := strings.SplitN(out.String(), "\n", 2)[0]
	name, token, found := strings.Cut(firstLine, "=")
	if !found || name != "app_session" || token == "" {
		t.Fatalf("unexpected output %q", out.String())
	}

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte("dev-secret"),
		CookieName:    "app_session",
	})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	request := httptest.NewRequest(http.MethodGet, "/notes", http.NoBody)
	request.AddCookie(&http.Cookie{Name: name, Value: token})
	claims, err := validator.ValidateRequest(request)
	if err != nil {
		t.Fatalf("issued token rejected: %v", err)
	}
	if claims.UserID != "google:42" || claims.UserEmail != "ada@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if len(claims.UserRoles) != 1 || claims.UserRoles[0] != "admin" {
		t.Fatalf("unexpected roles %v", claims.UserRoles)
	}
}

func TestIssueSessionRequiresSecret(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newIssueSessionCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--user-id", "someone"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
}
