package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuthorizeRequestLogLevelFollowsSessionError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	testCases := []struct {
		name      string
		err       error
		wantLevel zapcore.Level
	}{
		{name: "expired", err: auth.ErrExpiredSessionToken, wantLevel: zapcore.InfoLevel},
		{name: "missing", err: auth.ErrMissingSessionToken, wantLevel: zapcore.InfoLevel},
		{name: "tampered", err: fmt.Errorf("%w: signature mismatch", auth.ErrInvalidSessionToken), wantLevel: zapcore.WarnLevel},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			ctx, _ := gin.CreateTestContext(recorder)
			ctx.Request = httptest.NewRequest(http.MethodGet, "/favourites", http.NoBody)
			core, logs := observer.New(zapcore.DebugLevel)
			handler := &httpHandler{
				sessions: stubSessionValidator{err: testCase.err},
				logger:   zap.New(core),
			}

			handler.authorizeRequest(ctx)

			if recorder.Code != http.StatusUnauthorized || !ctx.IsAborted() {
				t.Fatalf("expected aborted 401, got %d", recorder.Code)
			}
			entries := logs.FilterMessage("session validation failed").All()
			if len(entries) != 1 {
				t.Fatalf("expected one validation log entry, got %d", len(entries))
			}
			if entries[0].Level != testCase.wantLevel {
				t.Fatalf("expected %s, got %s", testCase.wantLevel, entries[0].Level)
			}
			if logged, ok := entries[0].ContextMap()["error"].(string); !ok || logged != testCase.err.Error() {
				t.Fatalf("expected error field %q, got %v", testCase.err, entries[0].ContextMap())
			}
		})
	}
}

func TestAuthorizeRequestStoresCanonicalUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/notes", http.NoBody)

	handler := &httpHandler{
		sessions: stubSessionValidator{claims: auth.SessionClaims{UserID: "google:7"}},
		resolver: stubUserResolver{userID: "7"},
		logger:   zap.NewNop(),
	}

	handler.authorizeRequest(ctx)

	if ctx.IsAborted() {
		t.Fatalf("expected request to proceed, got status %d", recorder.Code)
	}
	if ctx.GetString(userIDContextKey) != "7" {
		t.Fatalf("unexpected user id %q", ctx.GetString(userIDContextKey))
	}
}

func TestAuthorizeRequestRejectsUnresolvableIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/notes", http.NoBody)

	handler := &httpHandler{
		sessions: stubSessionValidator{},
		resolver: stubUserResolver{err: users.ErrInvalidIdentity},
		logger:   zap.NewNop(),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", recorder.Code)
	}
}

type stubSessionValidator struct {
	claims auth.SessionClaims
	err    error
}

func (s stubSessionValidator) ValidateRequest(*http.Request) (auth.SessionClaims, error) {
	return s.claims, s.err
}

type stubUserResolver struct {
	userID string
	err    error
}

func (s stubUserResolver) ResolveCanonicalUserID(context.Context, auth.SessionClaims) (string, error) {
	return s.userID, s.err
}
