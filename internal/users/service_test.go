package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/auth"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&Identity{}, &User{}); err != nil {
		t.Fatalf("failed to migrate user schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestResolveCanonicalUserIDStripsProviderPrefix(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	claims := auth.SessionClaims{
		UserID:          "google:12345",
		UserEmail:       "Student@Example.com",
		UserDisplayName: "Example Student",
		UserAvatarURL:   "https://example.com/avatar.png",
	}
	userID, err := service.ResolveCanonicalUserID(ctx, claims)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if userID != "12345" {
		t.Fatalf("expected canonical user id without provider prefix, got %q", userID)
	}

	// second call should hit cache and not create a duplicate record.
	userID, err = service.ResolveCanonicalUserID(ctx, claims)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if userID != "12345" {
		t.Fatalf("expected canonical user id to remain stable, got %q", userID)
	}

	var users int64
	if err := db.Model(&User{}).Count(&users).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if users != 1 {
		t.Fatalf("expected a single user row, got %d", users)
	}

	profile, err := service.GetProfile(ctx, userID)
	if err != nil {
		t.Fatalf("get profile failed: %v", err)
	}
	if profile.Email != "student@example.com" || profile.Role != RoleStudent || profile.StudentID != nil {
		t.Fatalf("unexpected new profile %#v", profile)
	}
}

func TestResolveCanonicalUserIDRejectsEmptyClaims(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.ResolveCanonicalUserID(context.Background(), auth.SessionClaims{}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected invalid identity, got %v", err)
	}
}

func TestResolveCanonicalUserIDAssignsRoleFromClaims(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	userID, err := service.ResolveCanonicalUserID(ctx, auth.SessionClaims{UserID: "admin-1", UserRoles: []string{"user", "Admin"}})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	profile, err := service.GetProfile(ctx, userID)
	if err != nil {
		t.Fatalf("get profile failed: %v", err)
	}
	if profile.Role != RoleAdmin {
		t.Fatalf("expected admin role, got %s", profile.Role)
	}
}

func TestUpdateProfile(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	first, err := service.ResolveCanonicalUserID(ctx, auth.SessionClaims{UserID: "first"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	second, err := service.ResolveCanonicalUserID(ctx, auth.SessionClaims{UserID: "second"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	updated, err := service.UpdateProfile(ctx, first, ProfileInput{StudentID: " 21CSE042 ", Branch: "CSE", Semester: 5})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.StudentID == nil || *updated.StudentID != "21cse042" || updated.Branch != "cse" || updated.Semester != 5 {
		t.Fatalf("unexpected profile %#v", updated)
	}

	if _, err := service.UpdateProfile(ctx, first, ProfileInput{StudentID: "21cse042", Branch: "ece", Semester: 6}); err != nil {
		t.Fatalf("re-saving own student id failed: %v", err)
	}
	if _, err := service.UpdateProfile(ctx, second, ProfileInput{StudentID: "21CSE042", Branch: "cse", Semester: 5}); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict for taken student id, got %v", err)
	}
	if _, err := service.UpdateProfile(ctx, "ghost", ProfileInput{StudentID: "ghost01", Branch: "cse", Semester: 1}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found for unknown user, got %v", err)
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	service, _ := newTestService(t)
	testCases := []struct {
		name  string
		input ProfileInput
	}{
		{name: "short-student-id", input: ProfileInput{StudentID: "abc", Branch: "cse", Semester: 1}},
		{name: "long-student-id", input: ProfileInput{StudentID: "abcdefghijklm", Branch: "cse", Semester: 1}},
		{name: "unknown-branch", input: ProfileInput{StudentID: "abcdef", Branch: "ee", Semester: 1}},
		{name: "semester-zero", input: ProfileInput{StudentID: "abcdef", Branch: "cse", Semester: 0}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := service.UpdateProfile(context.Background(), "anyone", testCase.input); !errors.Is(err, apperrors.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestResolveCanonicalUserIDSharesUserAcrossProviders(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	for _, userID := range []string{"google:ada", "github:ada"} {
		resolved, err := service.ResolveCanonicalUserID(ctx, auth.SessionClaims{UserID: userID})
		if err != nil {
			t.Fatalf("resolve %s failed: %v", userID, err)
		}
		if resolved != "ada" {
			t.Fatalf("expected canonical id ada, got %q", resolved)
		}
	}

	var identities, users int64
	db.Model(&Identity{}).Count(&identities)
	db.Model(&User{}).Count(&users)
	if identities != 2 || users != 1 {
		t.Fatalf("expected 2 identities and 1 user, got %d and %d", identities, users)
	}
}

func TestResolveCanonicalUserIDRefreshesStoredIdentity(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()
	if _, err := service.ResolveCanonicalUserID(ctx, auth.SessionClaims{UserID: "google:ada", UserEmail: "old@example.com"}); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}

	fresh, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	if _, err := fresh.ResolveCanonicalUserID(ctx, auth.SessionClaims{UserID: "google:ada", UserEmail: "new@example.com"}); err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}

	var identity Identity
	if err := db.Where("provider = ? AND subject = ?", "google", "ada").Take(&identity).Error; err != nil {
		t.Fatalf("identity lookup failed: %v", err)
	}
	if identity.Email != "new@example.com" {
		t.Fatalf("expected refreshed email, got %q", identity.Email)
	}
}
