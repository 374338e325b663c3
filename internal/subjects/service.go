package subjects

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/cache"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// CacheNamespace prefixes every subjects listing key.
	CacheNamespace = "subjects"
	// DefaultCacheTTL bounds the lifetime of a cached subject listing.
	DefaultCacheTTL = 6000 * time.Second

	duplicateSubjectMessage = "Duplicate subject exists"

	opServiceNew     = "subjects.service.new"
	opListSubjects   = "subjects.list_subjects"
	opCreateSubject  = "subjects.create_subject"
	reasonMissingDB  = "missing_database"
	reasonInvalid    = "invalid_input"
	reasonDuplicate  = "duplicate_subject"
	reasonQueryError = "query_failed"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingCache    = errors.New("cache store is required")
)

// ServiceConfig wires the subjects service.
type ServiceConfig struct {
	Database *gorm.DB
	Cache    cache.Store
	CacheTTL time.Duration
	NewID    func() (uuid.UUID, error)
	Logger   *zap.Logger
}

// Service lists and creates subjects.
type Service struct {
	db       *gorm.DB
	listings *cache.ReadThrough[Subject]
	newID    func() (uuid.UUID, error)
	logger   *zap.Logger
}

// NewService validates cfg and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperrors.New(apperrors.KindInternal, opServiceNew, reasonMissingDB, errMissingDatabase)
	}
	if cfg.Cache == nil {
		return nil, apperrors.New(apperrors.KindInternal, opServiceNew, "missing_cache", errMissingCache)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewV7
	}

	listings, err := cache.NewReadThrough[Subject](cache.ReadThroughConfig{
		Store:  cfg.Cache,
		Keys:   cache.NewKeyBuilder(CacheNamespace, dimensionBranch, dimensionTerm),
		TTL:    ttl,
		Logger: logger.Named("subjects_cache"),
	})
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, opServiceNew, "cache_setup_failed", err)
	}
	return &Service{db: cfg.Database, listings: listings, newID: newID, logger: logger}, nil
}

// ListSubjects returns subjects matching filter ordered by code, served through the cache.
func (s *Service) ListSubjects(ctx context.Context, filter ListFilter) ([]Subject, error) {
	normalized, err := normalizeFilter(filter)
	if err != nil {
		return nil, apperrors.New(apperrors.KindValidation, opListSubjects, reasonInvalid, err)
	}
	return s.listings.GetList(ctx, normalized.cacheFilter(), func(ctx context.Context) ([]Subject, error) {
		query := s.db.WithContext(ctx).Model(&Subject{})
		if normalized.Branch != "" {
			query = query.Where("branch = ?", normalized.Branch)
		}
		if normalized.Semester > 0 {
			query = query.Where("semester = ?", normalized.Semester)
		}
		var records []Subject
		if err := query.Order("code ASC, subject_id ASC").Find(&records).Error; err != nil {
			s.logError(opListSubjects, reasonQueryError, err)
			return nil, apperrors.New(apperrors.KindInternal, opListSubjects, reasonQueryError, err)
		}
		return records, nil
	})
}

// CreateSubject persists a subject. A second subject with the same branch, semester and code is a conflict.
func (s *Service) CreateSubject(ctx context.Context, input CreateInput) (Subject, error) {
	subject, err := validateCreateInput(input)
	if err != nil {
		return Subject{}, apperrors.New(apperrors.KindValidation, opCreateSubject, reasonInvalid, err).WithMessage(err.Error())
	}
	identifier, err := s.newID()
	if err != nil {
		s.logError(opCreateSubject, "id_generation_failed", err)
		return Subject{}, apperrors.New(apperrors.KindInternal, opCreateSubject, "id_generation_failed", err)
	}
	subject.SubjectID = identifier.String()

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&subject)
	if result.Error != nil {
		s.logError(opCreateSubject, "insert_failed", result.Error, zap.String("code", subject.Code))
		return Subject{}, apperrors.New(apperrors.KindInternal, opCreateSubject, "insert_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Subject{}, apperrors.New(apperrors.KindConflict, opCreateSubject, reasonDuplicate, nil).WithMessage(duplicateSubjectMessage)
	}

	filter := ListFilter{Branch: subject.Branch, Semester: subject.Semester}
	if err := s.listings.InvalidateCovering(ctx, filter.cacheFilter()); err != nil {
		s.logger.Warn("subjects cache invalidation failed", zap.String("subject_id", subject.SubjectID), zap.Error(err))
	}
	return subject, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	s.logger.Error("subjects service error", append(attrs, fields...)...)
}
