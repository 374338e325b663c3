package notes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/cache"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/storage"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// CacheNamespace prefixes every notes listing key.
	CacheNamespace = "notes"
	// DefaultCacheTTL bounds the lifetime of a cached listing.
	DefaultCacheTTL = time.Hour

	dimensionBranch   = "branch"
	dimensionSemester = "semester"
	dimensionSubject  = "subject"

	defaultContentType = "application/octet-stream"
	maxTitleLength     = 300
	maxFileNameLength  = 200

	fieldNoteID    = "note_id"
	fieldUserID    = "user_id"
	fieldFileKey   = "file_key"
	queryNoteID    = "note_id = ?"
	queryOwnedNote = "notes.note_id = ? AND notes.created_by = ?"
	orderNewest    = "notes.created_at_s DESC, notes.note_id DESC"

	selectNoteWithAuthor = "notes.*, COALESCE(users.display_name, '') AS author_name, COALESCE(users.email, '') AS author_email"
	joinNoteAuthor       = "LEFT JOIN users ON users.user_id = notes.created_by"
)

const (
	opServiceNew      = "notes.service.new"
	opListNotes       = "notes.list_notes"
	opGetNote         = "notes.get_note"
	opCreateNote      = "notes.create_note"
	opUpdateNote      = "notes.update_note"
	opDeleteNote      = "notes.delete_note"
	opRecordView      = "notes.record_view"
	opRecordDownload  = "notes.record_download"
	opIssueUploadURL  = "notes.issue_upload_url"
	reasonMissingDB   = "missing_database"
	reasonQueryFailed = "query_failed"
	reasonNotFound    = "note_not_found"
	reasonSignFailed  = "sign_failed"
	reasonInvalid     = "invalid_input"
)

var (
	errMissingDatabase    = errors.New("database handle is required")
	errMissingCacheStore  = errors.New("cache store is required")
	errMissingObjectStore = errors.New("object store is required")
	errMissingURLIssuer   = errors.New("url issuer is required")
	errMissingIDProvider  = errors.New("id provider is required")
	errMissingViewer      = errors.New("viewer identifier is required")
	noOpLogger            = zap.NewNop()
	unsafeFileNameChars   = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// ObjectStore persists uploaded documents.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadSeekCloser, error)
	Stat(ctx context.Context, key string) (storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// URLIssuer issues time-bounded object URLs.
type URLIssuer interface {
	IssueGet(objectKey string, ttl time.Duration) (storage.SignedURL, error)
	IssuePut(objectKey, contentType string, ttl time.Duration) (storage.SignedURL, error)
}

// TextExtractor pulls text from supported document types.
type TextExtractor interface {
	Supports(contentType string) bool
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// Summarizer condenses extracted text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// ServiceConfig wires the notes service.
type ServiceConfig struct {
	Database    *gorm.DB
	Cache       cache.Store
	CacheTTL    time.Duration
	Objects     ObjectStore
	URLs        URLIssuer
	Extractor   TextExtractor
	Summarizer  Summarizer
	DownloadTTL time.Duration
	UploadTTL   time.Duration
	Clock       func() time.Time
	IDProvider  IDProvider
	Logger      *zap.Logger
}

// Service implements note listing, mutation, favourites and summaries.
type Service struct {
	db          *gorm.DB
	listings    *cache.ReadThrough[Note]
	objects     ObjectStore
	urls        URLIssuer
	extractor   TextExtractor
	summarizer  Summarizer
	downloadTTL time.Duration
	uploadTTL   time.Duration
	clock       func() time.Time
	idProvider  IDProvider
	logger      *zap.Logger
}

// NewService validates cfg and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperrors.New(apperrors.KindInternal, opServiceNew, reasonMissingDB, errMissingDatabase)
	}
	if cfg.Cache == nil {
		return nil, apperrors.New(apperrors.KindInternal, opServiceNew, "missing_cache", errMissingCacheStore)
	}
	if cfg.Objects == nil {
		return nil, apperrors.New(apperrors.KindInternal, opServiceNew, "missing_object_store", errMissingObjectStore)
	}
	if cfg.URLs == nil {
		return nil, apperrors.New(apperrors.KindInternal, opServiceNew, "missing_url_issuer", errMissingURLIssuer)
	}
	if cfg.IDProvider == nil {
		return nil, apperrors.New(apperrors.KindInternal, opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	downloadTTL := cfg.DownloadTTL
	if downloadTTL <= 0 {
		downloadTTL = storage.DefaultDownloadTTL
	}
	uploadTTL := cfg.UploadTTL
	if uploadTTL <= 0 {
		uploadTTL = storage.DefaultUploadTTL
	}

	listings, err := cache.NewReadThrough[Note](cache.ReadThroughConfig{
		Store:  cfg.Cache,
		Keys:   cache.NewKeyBuilder(CacheNamespace, dimensionBranch, dimensionSemester, dimensionSubject),
		TTL:    cacheTTL,
		Logger: logger.Named("notes_cache"),
	})
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, opServiceNew, "cache_setup_failed", err)
	}

	return &Service{
		db:          cfg.Database,
		listings:    listings,
		objects:     cfg.Objects,
		urls:        cfg.URLs,
		extractor:   cfg.Extractor,
		summarizer:  cfg.Summarizer,
		downloadTTL: downloadTTL,
		uploadTTL:   uploadTTL,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		logger:      logger,
	}, nil
}

// ListNotes returns notes matching filter with the viewer's favourite flags and fresh download URLs.
// The listing itself is served from the cache; favourites and URLs never are.
func (s *Service) ListNotes(ctx context.Context, filter ListFilter, viewerID UserID) ([]NoteView, error) {
	if s.db == nil || s.listings == nil {
		return nil, s.fail(apperrors.KindInternal, opListNotes, reasonMissingDB, errMissingDatabase)
	}
	if viewerID == "" {
		return nil, s.fail(apperrors.KindUnauthorized, opListNotes, "missing_viewer", errMissingViewer)
	}
	normalized, err := normalizeListFilter(filter)
	if err != nil {
		return nil, s.fail(apperrors.KindValidation, opListNotes, reasonInvalid, err)
	}

	records, err := s.listings.GetList(ctx, normalized.cacheFilter(), func(ctx context.Context) ([]Note, error) {
		return s.queryNotes(ctx, normalized)
	})
	if err != nil {
		return nil, err
	}

	views, err := s.AttachFavoriteFlag(ctx, records, viewerID)
	if err != nil {
		return nil, err
	}
	if err := s.signDownloads(opListNotes, views); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Service) queryNotes(ctx context.Context, filter ListFilter) ([]Note, error) {
	query := s.notesWithAuthor(ctx)
	if filter.Branch != "" {
		query = query.Where("notes.branch = ?", filter.Branch)
	}
	if filter.Semester > 0 {
		query = query.Where("notes.semester = ?", filter.Semester)
	}
	if filter.Subject != "" {
		query = query.Where("notes.subject = ?", filter.Subject)
	}

	var rows []noteRow
	if err := query.Order(orderNewest).Find(&rows).Error; err != nil {
		return nil, s.fail(apperrors.KindInternal, opListNotes, reasonQueryFailed, err)
	}
	return notesFromRows(rows), nil
}

// notesWithAuthor starts a notes query that also reads the uploader's name and email.
func (s *Service) notesWithAuthor(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table("notes").Select(selectNoteWithAuthor).Joins(joinNoteAuthor)
}

// GetNoteDetail returns a note read live from the store with a freshly signed download URL.
func (s *Service) GetNoteDetail(ctx context.Context, noteID NoteID) (NoteView, error) {
	note, err := s.loadNote(ctx, opGetNote, noteID)
	if err != nil {
		return NoteView{}, err
	}
	views := []NoteView{{Note: note}}
	if err := s.signDownloads(opGetNote, views); err != nil {
		return NoteView{}, err
	}
	return views[0], nil
}

// CreateNote stores the document, persists the note and invalidates affected listings.
func (s *Service) CreateNote(ctx context.Context, input CreateInput) (NoteView, error) {
	if s.db == nil {
		return NoteView{}, s.fail(apperrors.KindInternal, opCreateNote, reasonMissingDB, errMissingDatabase)
	}
	if input.OwnerID == "" {
		return NoteView{}, s.fail(apperrors.KindUnauthorized, opCreateNote, "missing_owner", errMissingViewer)
	}
	note, err := validateCreateInput(input)
	if err != nil {
		return NoteView{}, s.fail(apperrors.KindValidation, opCreateNote, reasonInvalid, err)
	}

	noteID, err := s.idProvider.NewID()
	if err != nil {
		return NoteView{}, s.fail(apperrors.KindInternal, opCreateNote, "id_generation_failed", err)
	}

	content, storedNew, err := s.resolveDocument(ctx, input, &note)
	if err != nil {
		return NoteView{}, err
	}

	now := s.clock().UTC()
	note.NoteID = noteID
	note.CreatedBy = input.OwnerID.String()
	note.Status = StatusPending
	note.FileSizeLabel = humanize.Bytes(uint64(note.FileSize))
	note.ExtractedText = s.extractText(ctx, note.FileType, content)
	note.CreatedAtSeconds = now.Unix()
	note.UpdatedAtSeconds = now.Unix()

	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		// A duplicate key means the object belongs to another note and must stay.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return NoteView{}, errFileKeyInUse(note.FileKey)
		}
		if storedNew {
			if cleanupErr := s.objects.Delete(ctx, note.FileKey); cleanupErr != nil {
				s.logger.Warn("orphaned object cleanup failed", zap.String(fieldFileKey, note.FileKey), zap.Error(cleanupErr))
			}
		}
		return NoteView{}, s.fail(apperrors.KindInternal, opCreateNote, "insert_failed", err, zap.String(fieldNoteID, noteID))
	}

	s.invalidateListings(ctx, note)

	if stored, err := s.loadNote(ctx, opCreateNote, NoteID(noteID)); err == nil {
		note = stored
	}
	views := []NoteView{{Note: note}}
	if err := s.signDownloads(opCreateNote, views); err != nil {
		return NoteView{}, err
	}
	return views[0], nil
}

// resolveDocument stores inline content or loads a previously uploaded object.
// It reports whether a new object was written so failures can clean it up.
func (s *Service) resolveDocument(ctx context.Context, input CreateInput, note *Note) ([]byte, bool, error) {
	if len(input.Content) > 0 {
		key := s.objectKeyFor(input.OwnerID, note.FileName)
		written, err := s.objects.Put(ctx, key, bytes.NewReader(input.Content))
		if err != nil {
			return nil, false, s.fail(apperrors.KindUpstream, opCreateNote, "object_put_failed", err, zap.String(fieldFileKey, key))
		}
		note.FileKey = key
		note.FileSize = written
		return input.Content, true, nil
	}

	key, err := storage.CleanKey(input.FileKey)
	if err != nil || !strings.HasPrefix(key, ownerPrefix(input.OwnerID)) {
		return nil, false, s.fail(apperrors.KindValidation, opCreateNote, "invalid_file_key", fmt.Errorf("file key %q not owned by uploader", input.FileKey))
	}
	var attached int64
	if err := s.db.WithContext(ctx).Model(&Note{}).Where("file_key = ?", key).Count(&attached).Error; err != nil {
		return nil, false, s.fail(apperrors.KindInternal, opCreateNote, reasonQueryFailed, err, zap.String(fieldFileKey, key))
	}
	if attached > 0 {
		return nil, false, errFileKeyInUse(key)
	}
	info, err := s.objects.Stat(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, false, s.fail(apperrors.KindValidation, opCreateNote, "file_not_uploaded", fmt.Errorf("file %s has not been uploaded", key))
	}
	if err != nil {
		return nil, false, s.fail(apperrors.KindUpstream, opCreateNote, "object_stat_failed", err, zap.String(fieldFileKey, key))
	}
	reader, err := s.objects.Open(ctx, key)
	if err != nil {
		return nil, false, s.fail(apperrors.KindUpstream, opCreateNote, "object_open_failed", err, zap.String(fieldFileKey, key))
	}
	defer func() {
		_ = reader.Close()
	}()
	content, err := io.ReadAll(io.LimitReader(reader, info.Size))
	if err != nil {
		return nil, false, s.fail(apperrors.KindUpstream, opCreateNote, "object_read_failed", err, zap.String(fieldFileKey, key))
	}
	note.FileKey = key
	note.FileSize = int64(len(content))
	if note.FileName == "" {
		note.FileName = path.Base(key)
	}
	return content, false, nil
}

func (s *Service) extractText(ctx context.Context, contentType string, content []byte) string {
	if s.extractor == nil || len(content) == 0 || !s.extractor.Supports(contentType) {
		return ""
	}
	text, err := s.extractor.ExtractText(ctx, content)
	if err != nil {
		s.logger.Warn("text extraction failed", zap.String("content_type", contentType), zap.Error(err))
		return ""
	}
	return text
}

// UpdateNote applies metadata changes to a note owned by ownerID.
func (s *Service) UpdateNote(ctx context.Context, ownerID UserID, noteID NoteID, input UpdateInput) (NoteView, error) {
	existing, err := s.loadOwnedNote(ctx, opUpdateNote, ownerID, noteID)
	if err != nil {
		return NoteView{}, err
	}

	updated, err := applyUpdate(existing, input)
	if err != nil {
		return NoteView{}, s.fail(apperrors.KindValidation, opUpdateNote, reasonInvalid, err)
	}
	updated.UpdatedAtSeconds = s.clock().UTC().Unix()

	changes := map[string]interface{}{
		"title":        updated.Title,
		"description":  updated.Description,
		"branch":       updated.Branch,
		"semester":     updated.Semester,
		"subject":      updated.Subject,
		"updated_at_s": updated.UpdatedAtSeconds,
	}
	if err := s.db.WithContext(ctx).Model(&Note{}).Where(queryNoteID, existing.NoteID).Updates(changes).Error; err != nil {
		return NoteView{}, s.fail(apperrors.KindInternal, opUpdateNote, "update_failed", err, zap.String(fieldNoteID, existing.NoteID))
	}

	s.invalidateListings(ctx, existing)
	s.invalidateListings(ctx, updated)

	views := []NoteView{{Note: updated}}
	if err := s.signDownloads(opUpdateNote, views); err != nil {
		return NoteView{}, err
	}
	return views[0], nil
}

// DeleteNote removes a note owned by ownerID together with its object and favourites.
func (s *Service) DeleteNote(ctx context.Context, ownerID UserID, noteID NoteID) error {
	existing, err := s.loadOwnedNote(ctx, opDeleteNote, ownerID, noteID)
	if err != nil {
		return err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(queryNoteID, existing.NoteID).Delete(&Favorite{}).Error; err != nil {
			return err
		}
		return tx.Where(queryNoteID, existing.NoteID).Delete(&Note{}).Error
	})
	if txErr != nil {
		return s.fail(apperrors.KindInternal, opDeleteNote, "delete_failed", txErr, zap.String(fieldNoteID, existing.NoteID))
	}
	s.invalidateListings(ctx, existing)

	// The row is gone; a file left behind is an orphan, never a dangling reference.
	if err := s.objects.Delete(ctx, existing.FileKey); err != nil {
		s.logger.Warn("orphaned object after note delete",
			zap.String(fieldNoteID, existing.NoteID),
			zap.String(fieldFileKey, existing.FileKey),
			zap.Error(err))
	}
	return nil
}

// RecordView increments the view counter.
func (s *Service) RecordView(ctx context.Context, noteID NoteID) error {
	return s.incrementCounter(ctx, opRecordView, "views", noteID)
}

// RecordDownload increments the download counter.
func (s *Service) RecordDownload(ctx context.Context, noteID NoteID) error {
	return s.incrementCounter(ctx, opRecordDownload, "downloads", noteID)
}

// RecordDownloadByFileKey increments the download counter of the note owning fileKey.
func (s *Service) RecordDownloadByFileKey(ctx context.Context, fileKey string) error {
	if s.db == nil {
		return s.fail(apperrors.KindInternal, opRecordDownload, reasonMissingDB, errMissingDatabase)
	}
	result := s.db.WithContext(ctx).Model(&Note{}).
		Where("file_key = ?", fileKey).
		UpdateColumn("downloads", gorm.Expr("downloads + ?", 1))
	if result.Error != nil {
		return s.fail(apperrors.KindInternal, opRecordDownload, "update_failed", result.Error, zap.String(fieldFileKey, fileKey))
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.KindNotFound, opRecordDownload, reasonNotFound, nil)
	}
	return nil
}

func (s *Service) incrementCounter(ctx context.Context, operation, column string, noteID NoteID) error {
	if s.db == nil {
		return s.fail(apperrors.KindInternal, operation, reasonMissingDB, errMissingDatabase)
	}
	result := s.db.WithContext(ctx).Model(&Note{}).
		Where(queryNoteID, noteID.String()).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if result.Error != nil {
		return s.fail(apperrors.KindInternal, operation, "update_failed", result.Error, zap.String(fieldNoteID, noteID.String()))
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.KindNotFound, operation, reasonNotFound, nil)
	}
	return nil
}

// IssueUploadURL reserves an object key under ownerID's prefix and signs a short-lived PUT URL for it.
func (s *Service) IssueUploadURL(ctx context.Context, ownerID UserID, fileName, contentType string) (UploadTicket, error) {
	if ownerID == "" {
		return UploadTicket{}, s.fail(apperrors.KindUnauthorized, opIssueUploadURL, "missing_owner", errMissingViewer)
	}
	name := strings.TrimSpace(fileName)
	if name == "" {
		return UploadTicket{}, s.fail(apperrors.KindValidation, opIssueUploadURL, reasonInvalid, errors.New("file name is required"))
	}
	contentType = resolveContentType(name, contentType)
	if err := ctx.Err(); err != nil {
		return UploadTicket{}, err
	}

	key := s.objectKeyFor(ownerID, name)
	signed, err := s.urls.IssuePut(key, contentType, s.uploadTTL)
	if err != nil {
		return UploadTicket{}, s.fail(apperrors.KindUpstream, opIssueUploadURL, reasonSignFailed, err, zap.String(fieldFileKey, key))
	}
	return UploadTicket{FileKey: key, UploadURL: signed.URL, ExpiresAt: signed.ExpiresAt}, nil
}

func (s *Service) signDownloads(operation string, views []NoteView) error {
	for index := range views {
		signed, err := s.urls.IssueGet(views[index].FileKey, s.downloadTTL)
		if err != nil {
			return s.fail(apperrors.KindUpstream, operation, reasonSignFailed, err,
				zap.String(fieldNoteID, views[index].NoteID))
		}
		expiresAt := signed.ExpiresAt
		views[index].DownloadURL = signed.URL
		views[index].DownloadURLExpiresAt = &expiresAt
	}
	return nil
}

func (s *Service) invalidateListings(ctx context.Context, note Note) {
	filter := ListFilter{Branch: note.Branch, Semester: note.Semester, Subject: note.Subject}
	if err := s.listings.InvalidateCovering(ctx, filter.cacheFilter()); err != nil {
		s.logger.Warn("notes cache invalidation failed",
			zap.String(fieldNoteID, note.NoteID),
			zap.Error(err))
	}
}

func (s *Service) loadNote(ctx context.Context, operation string, noteID NoteID) (Note, error) {
	if s.db == nil {
		return Note{}, s.fail(apperrors.KindInternal, operation, reasonMissingDB, errMissingDatabase)
	}
	var row noteRow
	err := s.notesWithAuthor(ctx).Where("notes.note_id = ?", noteID.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, apperrors.New(apperrors.KindNotFound, operation, reasonNotFound, err).WithMessage("Note not found")
	}
	if err != nil {
		return Note{}, s.fail(apperrors.KindInternal, operation, reasonQueryFailed, err, zap.String(fieldNoteID, noteID.String()))
	}
	return row.withAuthor(), nil
}

func (s *Service) loadOwnedNote(ctx context.Context, operation string, ownerID UserID, noteID NoteID) (Note, error) {
	if s.db == nil {
		return Note{}, s.fail(apperrors.KindInternal, operation, reasonMissingDB, errMissingDatabase)
	}
	if ownerID == "" {
		return Note{}, s.fail(apperrors.KindUnauthorized, operation, "missing_owner", errMissingViewer)
	}
	var row noteRow
	err := s.notesWithAuthor(ctx).Where(queryOwnedNote, noteID.String(), ownerID.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, apperrors.New(apperrors.KindNotFound, operation, reasonNotFound, err).WithMessage("Note not found or not owned by user")
	}
	if err != nil {
		return Note{}, s.fail(apperrors.KindInternal, operation, reasonQueryFailed, err, zap.String(fieldNoteID, noteID.String()))
	}
	return row.withAuthor(), nil
}

func errFileKeyInUse(key string) error {
	return apperrors.New(apperrors.KindConflict, opCreateNote, "file_already_attached", fmt.Errorf("file %s already belongs to a note", key)).
		WithMessage("File is already attached to another note")
}

func (s *Service) objectKeyFor(ownerID UserID, fileName string) string {
	return fmt.Sprintf("%s%d-%s", ownerPrefix(ownerID), s.clock().UTC().UnixMilli(), sanitizeFileName(fileName))
}

func ownerPrefix(ownerID UserID) string {
	return "notes/" + sanitizeFileName(ownerID.String()) + "/"
}

func sanitizeFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	cleaned := strings.Trim(unsafeFileNameChars.ReplaceAllString(base, "-"), "-.")
	if cleaned == "" {
		cleaned = "file"
	}
	if len(cleaned) > maxFileNameLength {
		cleaned = cleaned[len(cleaned)-maxFileNameLength:]
	}
	return cleaned
}

func resolveContentType(fileName, contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType != "" {
		return contentType
	}
	if byExtension := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); byExtension != "" {
		return byExtension
	}
	return defaultContentType
}

// isGenericContentType reports types browsers send when they could not sniff the file.
func isGenericContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.TrimSpace(contentType) == ""
	}
	return mediaType == defaultContentType
}

func normalizeListFilter(filter ListFilter) (ListFilter, error) {
	normalized := ListFilter{
		Branch:   strings.ToLower(cache.FilterValue(filter.Branch)),
		Semester: filter.Semester,
		Subject:  cache.FilterValue(filter.Subject),
	}
	if normalized.Semester != 0 && (normalized.Semester < minSemester || normalized.Semester > maxSemester) {
		return ListFilter{}, fmt.Errorf("semester must be between %d and %d", minSemester, maxSemester)
	}
	return normalized, nil
}

func validateCreateInput(input CreateInput) (Note, error) {
	note := Note{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Branch:      strings.ToLower(strings.TrimSpace(input.Branch)),
		Semester:    input.Semester,
		Subject:     strings.TrimSpace(input.Subject),
		FileName:    strings.TrimSpace(input.FileName),
	}
	if note.Title == "" {
		return Note{}, errors.New("title is required")
	}
	if len(note.Title) > maxTitleLength {
		return Note{}, fmt.Errorf("title exceeds %d characters", maxTitleLength)
	}
	if note.Branch == "" {
		return Note{}, errors.New("branch is required")
	}
	if note.Subject == "" {
		return Note{}, errors.New("subject is required")
	}
	if note.Semester < minSemester || note.Semester > maxSemester {
		return Note{}, fmt.Errorf("semester must be between %d and %d", minSemester, maxSemester)
	}
	if len(input.Content) == 0 && strings.TrimSpace(input.FileKey) == "" {
		return Note{}, errors.New("file is required")
	}
	if len(input.Content) > 0 && note.FileName == "" {
		return Note{}, errors.New("file name is required")
	}
	name := note.FileName
	if name == "" {
		name = input.FileKey
	}
	contentType := input.ContentType
	if isGenericContentType(contentType) {
		contentType = ""
	}
	note.FileType = resolveContentType(name, contentType)
	return note, nil
}

func applyUpdate(existing Note, input UpdateInput) (Note, error) {
	updated := existing
	if input.Title != nil {
		updated.Title = strings.TrimSpace(*input.Title)
		if updated.Title == "" {
			return Note{}, errors.New("title must not be empty")
		}
		if len(updated.Title) > maxTitleLength {
			return Note{}, fmt.Errorf("title exceeds %d characters", maxTitleLength)
		}
	}
	if input.Description != nil {
		updated.Description = strings.TrimSpace(*input.Description)
	}
	if input.Branch != nil {
		updated.Branch = strings.ToLower(strings.TrimSpace(*input.Branch))
		if updated.Branch == "" {
			return Note{}, errors.New("branch must not be empty")
		}
	}
	if input.Semester != nil {
		if *input.Semester < minSemester || *input.Semester > maxSemester {
			return Note{}, fmt.Errorf("semester must be between %d and %d", minSemester, maxSemester)
		}
		updated.Semester = *input.Semester
	}
	if input.Subject != nil {
		updated.Subject = strings.TrimSpace(*input.Subject)
		if updated.Subject == "" {
			return Note{}, errors.New("subject must not be empty")
		}
	}
	return updated, nil
}

// fail builds the service error and logs server-side kinds.
func (s *Service) fail(kind apperrors.Kind, operation, reason string, cause error, fields ...zap.Field) error {
	if kind == apperrors.KindInternal || kind == apperrors.KindUpstream {
		s.logError(operation, reason, cause, fields...)
	}
	serviceErr := apperrors.New(kind, operation, reason, cause)
	if kind == apperrors.KindValidation && cause != nil {
		return serviceErr.WithMessage(cause.Error())
	}
	return serviceErr
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
