package storage

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
)

const testSigningSecret = "storage-secret"

type steppingClock struct {
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	return c.now
}

func newTestSigner(t *testing.T, clock *steppingClock) *URLSigner {
	t.Helper()
	signer, err := NewURLSigner(URLSignerConfig{
		SigningSecret: []byte(testSigningSecret),
		PublicBaseURL: "https://notes.example.com/",
		Clock:         clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to construct signer: %v", err)
	}
	return signer
}

func tokenFrom(t *testing.T, signedURL string) (string, string) {
	t.Helper()
	parsed, err := url.Parse(signedURL)
	if err != nil {
		t.Fatalf("failed to parse url: %v", err)
	}
	return parsed.Query().Get(TokenQueryParameter), parsed.Path
}

func TestIssueGetProducesDistinctUsableURLs(t *testing.T) {
	clock := &steppingClock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	signer := newTestSigner(t, clock)
	objectKey := "notes/user-1/1700000000000-algebra notes.pdf"

	first, err := signer.IssueGet(objectKey, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	clock.now = clock.now.Add(time.Second)
	second, err := signer.IssueGet(objectKey, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if first.URL == second.URL {
		t.Fatalf("expected fresh signature per issuance")
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Fatalf("expected second expiry after first: %v vs %v", first.ExpiresAt, second.ExpiresAt)
	}

	firstToken, firstPath := tokenFrom(t, first.URL)
	if firstPath != "/files/notes/user-1/1700000000000-algebra notes.pdf" {
		t.Fatalf("unexpected path %q", firstPath)
	}
	secondToken, _ := tokenFrom(t, second.URL)
	clock.now = clock.now.Add(30 * time.Minute)
	for _, token := range []string{firstToken, secondToken} {
		claims, err := signer.Verify(token, http.MethodGet, objectKey)
		if err != nil {
			t.Fatalf("expected token to resolve within its window: %v", err)
		}
		if claims.ObjectKey != objectKey {
			t.Fatalf("unexpected object key %q", claims.ObjectKey)
		}
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	clock := &steppingClock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	signer := newTestSigner(t, clock)

	issued, err := signer.IssueGet("notes/a.pdf", time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	token, _ := tokenFrom(t, issued.URL)

	clock.now = clock.now.Add(time.Hour + time.Second)
	if _, err := signer.Verify(token, http.MethodGet, "notes/a.pdf"); !errors.Is(err, ErrExpiredSignedToken) {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestVerifyRejectsMismatchedRequests(t *testing.T) {
	clock := &steppingClock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	signer := newTestSigner(t, clock)

	upload, err := signer.IssuePut("notes/a.pdf", "application/pdf", 0)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if upload.ExpiresAt.Sub(clock.now) != DefaultUploadTTL {
		t.Fatalf("expected default upload ttl, got %v", upload.ExpiresAt.Sub(clock.now))
	}
	token, _ := tokenFrom(t, upload.URL)

	testCases := []struct {
		name   string
		token  string
		method string
		key    string
		want   error
	}{
		{name: "wrong-method", token: token, method: http.MethodGet, key: "notes/a.pdf", want: ErrSignedTokenMismatch},
		{name: "wrong-key", token: token, method: http.MethodPut, key: "notes/b.pdf", want: ErrSignedTokenMismatch},
		{name: "tampered", token: token + "x", method: http.MethodPut, key: "notes/a.pdf", want: ErrInvalidSignedToken},
		{name: "empty", token: "", method: http.MethodPut, key: "notes/a.pdf", want: ErrInvalidSignedToken},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := signer.Verify(testCase.token, testCase.method, testCase.key); !errors.Is(err, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, err)
			}
		})
	}

	claims, err := signer.Verify(token, http.MethodPut, "/notes/a.pdf")
	if err != nil {
		t.Fatalf("expected normalized key to verify: %v", err)
	}
	if claims.ContentType != "application/pdf" {
		t.Fatalf("unexpected content type %q", claims.ContentType)
	}
}

func TestIssueRejectsEscapingKeys(t *testing.T) {
	clock := &steppingClock{now: time.Now()}
	signer := newTestSigner(t, clock)
	if _, err := signer.IssueGet("../etc/passwd", time.Minute); !errors.Is(err, ErrInvalidObjectKey) {
		t.Fatalf("expected invalid key error, got %v", err)
	}
}

func TestNewURLSignerValidatesConfig(t *testing.T) {
	if _, err := NewURLSigner(URLSignerConfig{PublicBaseURL: "http://x"}); !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
	if _, err := NewURLSigner(URLSignerConfig{SigningSecret: []byte("s"), PublicBaseURL: " "}); !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("expected missing base url error, got %v", err)
	}
	signer, err := NewURLSigner(URLSignerConfig{SigningSecret: []byte("s"), PublicBaseURL: "http://x/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	issued, err := signer.IssueGet("a.pdf", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(issued.URL, "http://x/files/a.pdf?token=") {
		t.Fatalf("unexpected url %q", issued.URL)
	}
}
