package notes

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/apperrors"
	"go.uber.org/zap"
)

const (
	opSummarize    = "notes.summarize"
	opClearSummary = "notes.clear_summary"
)

var errSummarizerUnavailable = errors.New("summarizer is not configured")

// Summarize returns the persisted summary of a note, generating and storing one on first request.
// When two requests race, the first stored summary wins and both callers receive it.
func (s *Service) Summarize(ctx context.Context, noteID NoteID) (string, error) {
	note, err := s.loadNote(ctx, opSummarize, noteID)
	if err != nil {
		return "", err
	}
	if note.Summary != nil && *note.Summary != "" {
		return *note.Summary, nil
	}
	if strings.TrimSpace(note.ExtractedText) == "" {
		return "", apperrors.New(apperrors.KindValidation, opSummarize, "no_extracted_text", nil).
			WithMessage("No text available to summarize")
	}
	if s.summarizer == nil {
		return "", s.fail(apperrors.KindUpstream, opSummarize, "summarizer_unavailable", errSummarizerUnavailable)
	}

	summary, err := s.summarizer.Summarize(ctx, note.ExtractedText)
	if err != nil {
		return "", s.fail(apperrors.KindUpstream, opSummarize, "generation_failed", err, zap.String(fieldNoteID, note.NoteID))
	}

	result := s.db.WithContext(ctx).Model(&Note{}).
		Where("note_id = ? AND (summary IS NULL OR summary = '')", note.NoteID).
		UpdateColumn("summary", summary)
	if result.Error != nil {
		return "", s.fail(apperrors.KindInternal, opSummarize, "persist_failed", result.Error, zap.String(fieldNoteID, note.NoteID))
	}
	if result.RowsAffected > 0 {
		return summary, nil
	}

	stored, err := s.loadNote(ctx, opSummarize, noteID)
	if err != nil {
		return "", err
	}
	if stored.Summary == nil {
		return summary, nil
	}
	return *stored.Summary, nil
}

// ClearSummary discards the persisted summary so the next request regenerates it.
func (s *Service) ClearSummary(ctx context.Context, ownerID UserID, noteID NoteID) error {
	note, err := s.loadOwnedNote(ctx, opClearSummary, ownerID, noteID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Model(&Note{}).
		Where(queryNoteID, note.NoteID).
		UpdateColumn("summary", nil).Error
	if err != nil {
		return s.fail(apperrors.KindInternal, opClearSummary, "update_failed", err, zap.String(fieldNoteID, note.NoteID))
	}
	return nil
}
