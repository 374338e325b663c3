package notes

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/apperrors"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

const (
	opAttachFavorite = "notes.attach_favorite_flag"
	opAddFavorite    = "notes.add_favorite"
	opRemoveFavorite = "notes.remove_favorite"
	opListFavorites  = "notes.list_favorites"
)

// AttachFavoriteFlag returns views of records marked with the viewer's favourites.
// It issues a single lookup for the whole page and never modifies records.
func (s *Service) AttachFavoriteFlag(ctx context.Context, records []Note, viewerID UserID) ([]NoteView, error) {
	views := make([]NoteView, len(records))
	for index := range records {
		views[index] = NoteView{Note: records[index]}
	}
	if len(records) == 0 || viewerID == "" {
		return views, nil
	}
	if s.db == nil {
		return nil, s.fail(apperrors.KindInternal, opAttachFavorite, reasonMissingDB, errMissingDatabase)
	}

	noteIDs := make([]string, 0, len(records))
	for _, record := range records {
		noteIDs = append(noteIDs, record.NoteID)
	}

	var favourited []string
	err := s.db.WithContext(ctx).Model(&Favorite{}).
		Where("user_id = ? AND note_id IN ?", viewerID.String(), noteIDs).
		Pluck("note_id", &favourited).Error
	if err != nil {
		return nil, s.fail(apperrors.KindInternal, opAttachFavorite, reasonQueryFailed, err, zap.String(fieldUserID, viewerID.String()))
	}

	marked := make(map[string]struct{}, len(favourited))
	for _, noteID := range favourited {
		marked[noteID] = struct{}{}
	}
	for index := range views {
		_, views[index].IsFavourite = marked[views[index].NoteID]
	}
	return views, nil
}

// AddFavorite records that userID favourited noteID.
// A second attempt for the same pair fails with a conflict and leaves one row.
func (s *Service) AddFavorite(ctx context.Context, userID UserID, noteID NoteID) error {
	if userID == "" {
		return s.fail(apperrors.KindUnauthorized, opAddFavorite, "missing_user", errMissingViewer)
	}
	if _, err := s.loadNote(ctx, opAddFavorite, noteID); err != nil {
		return err
	}

	favorite := Favorite{
		UserID:           userID.String(),
		NoteID:           noteID.String(),
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&favorite)
	if result.Error != nil {
		return s.fail(apperrors.KindInternal, opAddFavorite, "insert_failed", result.Error,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldNoteID, noteID.String()))
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.KindConflict, opAddFavorite, "already_favourited", nil).WithMessage("Note already favourited")
	}
	return nil
}

// RemoveFavorite deletes the pair; removing a missing favourite succeeds.
func (s *Service) RemoveFavorite(ctx context.Context, userID UserID, noteID NoteID) error {
	if s.db == nil {
		return s.fail(apperrors.KindInternal, opRemoveFavorite, reasonMissingDB, errMissingDatabase)
	}
	if userID == "" {
		return s.fail(apperrors.KindUnauthorized, opRemoveFavorite, "missing_user", errMissingViewer)
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND note_id = ?", userID.String(), noteID.String()).
		Delete(&Favorite{}).Error
	if err != nil {
		return s.fail(apperrors.KindInternal, opRemoveFavorite, "delete_failed", err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldNoteID, noteID.String()))
	}
	return nil
}

// ToggleFavorite drives the pair to the wanted state. Adding an existing favourite is not an error here.
func (s *Service) ToggleFavorite(ctx context.Context, userID UserID, noteID NoteID, want bool) error {
	if !want {
		return s.RemoveFavorite(ctx, userID, noteID)
	}
	err := s.AddFavorite(ctx, userID, noteID)
	if errors.Is(err, apperrors.ErrConflict) {
		return nil
	}
	return err
}

// ListFavorites returns the notes userID favourited, newest favourite first.
func (s *Service) ListFavorites(ctx context.Context, userID UserID) ([]NoteView, error) {
	if s.db == nil {
		return nil, s.fail(apperrors.KindInternal, opListFavorites, reasonMissingDB, errMissingDatabase)
	}
	if userID == "" {
		return nil, s.fail(apperrors.KindUnauthorized, opListFavorites, "missing_user", errMissingViewer)
	}

	var rows []noteRow
	err := s.notesWithAuthor(ctx).
		Joins("JOIN favourites ON favourites.note_id = notes.note_id").
		Where("favourites.user_id = ?", userID.String()).
		Order("favourites.created_at_s DESC, notes.note_id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, s.fail(apperrors.KindInternal, opListFavorites, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
	}

	views := make([]NoteView, len(rows))
	for index := range rows {
		views[index] = NoteView{Note: rows[index].withAuthor(), IsFavourite: true}
	}
	if err := s.signDownloads(opListFavorites, views); err != nil {
		return nil, err
	}
	return views, nil
}
