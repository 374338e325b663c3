package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	minStudentIDLength = 6
	maxStudentIDLength = 12
	minSemester        = 1
	maxSemester        = 8
	defaultProvider    = "default"

	opResolveUser   = "users.resolve_user"
	opGetProfile    = "users.get_profile"
	opUpdateProfile = "users.update_profile"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

var profileBranches = map[string]struct{}{
	"cse":   {},
	"ece":   {},
	"mech":  {},
	"civil": {},
	"eee":   {},
}

// ServiceConfig describes the dependencies required for user identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages canonical user identifiers, provider-specific identities and student profiles.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// ResolveCanonicalUserID maps session claims to the canonical user id, registering the
// identity and its user row the first time a provider subject signs in.
func (s *Service) ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (string, error) {
	key, ok := identityKeyFromClaims(claims)
	if !ok {
		return "", ErrInvalidIdentity
	}
	if userID, found := s.cache.Load(key.String()); found {
		return userID.(string), nil
	}

	var identity Identity
	lookup := s.db.WithContext(ctx).
		Where("provider = ? AND subject = ?", key.provider, key.subject).
		Take(&identity)
	switch {
	case errors.Is(lookup.Error, gorm.ErrRecordNotFound):
		identity = s.identityFromClaims(key, claims)
		if err := s.register(ctx, identity, roleFromClaims(claims)); err != nil {
			s.logger.Error("user registration failed",
				zap.String("operation", opResolveUser),
				zap.String("identity", key.String()),
				zap.Error(err))
			return "", apperrors.New(apperrors.KindInternal, opResolveUser, "create_failed", err)
		}
	case lookup.Error != nil:
		return "", apperrors.New(apperrors.KindInternal, opResolveUser, "query_failed", lookup.Error)
	default:
		s.touch(ctx, identity, claims)
	}

	s.cache.Store(key.String(), identity.UserID)
	return identity.UserID, nil
}

func (s *Service) identityFromClaims(key identityKey, claims auth.SessionClaims) Identity {
	return Identity{
		Provider:    key.provider,
		Subject:     key.subject,
		UserID:      key.subject,
		Email:       normalize(claims.UserEmail),
		DisplayName: normalize(claims.UserDisplayName),
		AvatarURL:   normalize(claims.UserAvatarURL),
		LastSeenAt:  s.now(),
	}
}

// register stores the identity and, unless another provider already created it, the user row.
func (s *Service) register(ctx context.Context, identity Identity, role Role) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&identity).Error; err != nil {
			return err
		}
		user := User{
			UserID:      identity.UserID,
			Email:       strings.ToLower(identity.Email),
			DisplayName: identity.DisplayName,
			AvatarURL:   identity.AvatarURL,
			Role:        role,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error
	})
}

// touch records the sign-in and picks up profile fields TAuth changed since the last one.
func (s *Service) touch(ctx context.Context, identity Identity, claims auth.SessionClaims) {
	changes := map[string]interface{}{"last_seen_at": s.now()}
	for column, pair := range map[string][2]string{
		"user_email":        {normalize(claims.UserEmail), identity.Email},
		"user_display_name": {normalize(claims.UserDisplayName), identity.DisplayName},
		"user_avatar_url":   {normalize(claims.UserAvatarURL), identity.AvatarURL},
	} {
		if incoming, stored := pair[0], pair[1]; incoming != "" && incoming != stored {
			changes[column] = incoming
		}
	}
	err := s.db.WithContext(ctx).Model(&Identity{}).
		Where("provider = ? AND subject = ?", identity.Provider, identity.Subject).
		Updates(changes).Error
	if err != nil {
		s.logger.Warn("identity refresh failed", zap.String("user_id", identity.UserID), zap.Error(err))
	}
}

// GetProfile returns the user row for userID.
func (s *Service) GetProfile(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperrors.New(apperrors.KindNotFound, opGetProfile, "user_not_found", err).WithMessage("User not found")
	}
	if err != nil {
		return User{}, apperrors.New(apperrors.KindInternal, opGetProfile, "query_failed", err)
	}
	return user, nil
}

// UpdateProfile stores the student id, branch and semester of userID.
func (s *Service) UpdateProfile(ctx context.Context, userID string, input ProfileInput) (User, error) {
	profile, err := validateProfile(input)
	if err != nil {
		return User{}, apperrors.New(apperrors.KindValidation, opUpdateProfile, "invalid_input", err).WithMessage(err.Error())
	}
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return User{}, err
	}

	var taken int64
	err = s.db.WithContext(ctx).Model(&User{}).
		Where("student_id = ? AND user_id <> ?", profile.StudentID, userID).
		Count(&taken).Error
	if err != nil {
		return User{}, apperrors.New(apperrors.KindInternal, opUpdateProfile, "query_failed", err)
	}
	if taken > 0 {
		return User{}, apperrors.New(apperrors.KindConflict, opUpdateProfile, "student_id_taken", nil).WithMessage("Student ID already exists")
	}

	err = s.db.WithContext(ctx).Model(&User{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"student_id": profile.StudentID,
			"branch":     profile.Branch,
			"semester":   profile.Semester,
			"updated_at": s.now().UTC(),
		}).Error
	if err != nil {
		s.logger.Error("profile update failed",
			zap.String("operation", opUpdateProfile),
			zap.String("user_id", userID),
			zap.Error(err))
		return User{}, apperrors.New(apperrors.KindInternal, opUpdateProfile, "update_failed", err)
	}
	return s.GetProfile(ctx, userID)
}

func validateProfile(input ProfileInput) (ProfileInput, error) {
	profile := ProfileInput{
		StudentID: strings.ToLower(normalize(input.StudentID)),
		Branch:    strings.ToLower(normalize(input.Branch)),
		Semester:  input.Semester,
	}
	if length := len(profile.StudentID); length < minStudentIDLength || length > maxStudentIDLength {
		return ProfileInput{}, fmt.Errorf("student id must be %d to %d characters", minStudentIDLength, maxStudentIDLength)
	}
	if _, ok := profileBranches[profile.Branch]; !ok {
		return ProfileInput{}, fmt.Errorf("unsupported branch %q", profile.Branch)
	}
	if profile.Semester < minSemester || profile.Semester > maxSemester {
		return ProfileInput{}, fmt.Errorf("semester must be between %d and %d", minSemester, maxSemester)
	}
	return profile, nil
}

func roleFromClaims(claims auth.SessionClaims) Role {
	switch {
	case claims.HasRole(string(RoleAdmin)):
		return RoleAdmin
	case claims.HasRole(string(RoleManager)):
		return RoleManager
	default:
		return RoleStudent
	}
}

type identityKey struct {
	provider string
	subject  string
}

func (k identityKey) String() string {
	return k.provider + ":" + k.subject
}

// identityKeyFromClaims reads "provider:subject" user ids, falling back to the token
// subject and then the email under the default provider.
func identityKeyFromClaims(claims auth.SessionClaims) (identityKey, bool) {
	userID := normalize(claims.UserID)
	if provider, subject, found := strings.Cut(userID, ":"); found {
		if provider, subject = normalize(provider), normalize(subject); provider != "" && subject != "" {
			return identityKey{provider: provider, subject: subject}, true
		}
	}
	for _, candidate := range []string{claims.Subject, userID, claims.UserEmail} {
		if subject := normalize(candidate); subject != "" {
			return identityKey{provider: defaultProvider, subject: subject}, true
		}
	}
	return identityKey{}, false
}
