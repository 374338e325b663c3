package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/notes"
	"github.com/gin-gonic/gin"
)

type updateNotePayload struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Branch      *string `json:"branch"`
	Semester    *int    `json:"semester"`
	Subject     *string `json:"subject"`
}

type presignPayload struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

type favouritePayload struct {
	NoteID string `json:"noteId"`
}

type setFavouritePayload struct {
	Favourite *bool `json:"favourite"`
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	viewerID, ok := h.currentUser(c)
	if !ok {
		return
	}
	semester, err := parseSemester(c.Query("semester"))
	if err != nil {
		badRequest(c, "semester must be a number")
		return
	}
	filter := notes.ListFilter{
		Branch:   queryValue(c.Query("branch")),
		Semester: semester,
		Subject:  queryValue(c.Query("subject")),
	}

	views, err := h.notesService.ListNotes(c.Request.Context(), filter, viewerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": views})
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	ownerID, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+(1<<20))

	semester, err := strconv.Atoi(strings.TrimSpace(c.PostForm("semester")))
	if err != nil {
		badRequest(c, "semester must be a number")
		return
	}
	input := notes.CreateInput{
		OwnerID:     ownerID,
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Branch:      c.PostForm("branch"),
		Semester:    semester,
		Subject:     c.PostForm("subject"),
		FileKey:     c.PostForm("fileKey"),
	}

	fileHeader, err := c.FormFile("file")
	switch {
	case err == nil:
		if fileHeader.Size > h.maxUploadBytes {
			badRequest(c, "file too large")
			return
		}
		file, openErr := fileHeader.Open()
		if openErr != nil {
			badRequest(c, "file is unreadable")
			return
		}
		content, readErr := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
		_ = file.Close()
		if readErr != nil {
			badRequest(c, "file is unreadable")
			return
		}
		if int64(len(content)) > h.maxUploadBytes {
			badRequest(c, "file too large")
			return
		}
		input.Content = content
		input.FileName = fileHeader.Filename
		input.ContentType = fileHeader.Header.Get("Content-Type")
	case errors.Is(err, http.ErrMissingFile):
		if strings.TrimSpace(input.FileKey) == "" {
			badRequest(c, "file is required")
			return
		}
		input.ContentType = c.PostForm("contentType")
	default:
		badRequest(c, "invalid multipart form")
		return
	}

	view, err := h.notesService.CreateNote(c.Request.Context(), input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.feed.Publish(ChangeEvent{UserID: ownerID.String(), EventType: EventNoteChanged, NoteIDs: []string{view.NoteID}})
	c.JSON(http.StatusCreated, gin.H{"note": view})
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	if _, ok := h.currentUser(c); !ok {
		return
	}
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	view, err := h.notesService.GetNoteDetail(c.Request.Context(), noteID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": view})
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	ownerID, ok := h.currentUser(c)
	if !ok {
		return
	}
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	var payload updateNotePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	view, err := h.notesService.UpdateNote(c.Request.Context(), ownerID, noteID, notes.UpdateInput{
		Title:       payload.Title,
		Description: payload.Description,
		Branch:      payload.Branch,
		Semester:    payload.Semester,
		Subject:     payload.Subject,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.feed.Publish(ChangeEvent{UserID: ownerID.String(), EventType: EventNoteChanged, NoteIDs: []string{view.NoteID}})
	c.JSON(http.StatusOK, gin.H{"note": view})
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	ownerID, ok := h.currentUser(c)
	if !ok {
		return
	}
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	if err := h.notesService.DeleteNote(c.Request.Context(), ownerID, noteID); err != nil {
		h.writeError(c, err)
		return
	}
	h.feed.Publish(ChangeEvent{UserID: ownerID.String(), EventType: EventNoteChanged, NoteIDs: []string{noteID.String()}})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleRecordView(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	if err := h.notesService.RecordView(c.Request.Context(), noteID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleGetSummary(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	summary, err := h.notesService.Summarize(c.Request.Context(), noteID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (h *httpHandler) handleClearSummary(c *gin.Context) {
	ownerID, ok := h.currentUser(c)
	if !ok {
		return
	}
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	if err := h.notesService.ClearSummary(c.Request.Context(), ownerID, noteID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handlePresignUpload(c *gin.Context) {
	ownerID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var payload presignPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	ticket, err := h.notesService.IssueUploadURL(c.Request.Context(), ownerID, payload.FileName, payload.ContentType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *httpHandler) handleListFavourites(c *gin.Context) {
	viewerID, ok := h.currentUser(c)
	if !ok {
		return
	}
	views, err := h.notesService.ListFavorites(c.Request.Context(), viewerID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favourites": views})
}

func (h *httpHandler) handleAddFavourite(c *gin.Context) {
	viewerID, ok := h.currentUser(c)
	if !ok {
		return
	}
	noteID, ok := favouriteNoteID(c)
	if !ok {
		return
	}
	if err := h.notesService.AddFavorite(c.Request.Context(), viewerID, noteID); err != nil {
		h.writeError(c, err)
		return
	}
	h.feed.Publish(ChangeEvent{UserID: viewerID.String(), EventType: EventFavouriteChanged, NoteIDs: []string{noteID.String()}})
	c.JSON(http.StatusCreated, gin.H{"success": true, "noteId": noteID.String(), "favourite": true})
}

func (h *httpHandler) handleRemoveFavourite(c *gin.Context) {
	viewerID, ok := h.currentUser(c)
	if !ok {
		return
	}
	noteID, ok := favouriteNoteID(c)
	if !ok {
		return
	}
	if err := h.notesService.RemoveFavorite(c.Request.Context(), viewerID, noteID); err != nil {
		h.writeError(c, err)
		return
	}
	h.feed.Publish(ChangeEvent{UserID: viewerID.String(), EventType: EventFavouriteChanged, NoteIDs: []string{noteID.String()}})
	c.JSON(http.StatusOK, gin.H{"success": true, "noteId": noteID.String(), "favourite": false})
}

func (h *httpHandler) handleSetFavourite(c *gin.Context) {
	viewerID, ok := h.currentUser(c)
	if !ok {
		return
	}
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	var payload setFavouritePayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Favourite == nil {
		badRequest(c, "favourite flag is required")
		return
	}
	if err := h.notesService.ToggleFavorite(c.Request.Context(), viewerID, noteID, *payload.Favourite); err != nil {
		h.writeError(c, err)
		return
	}
	h.feed.Publish(ChangeEvent{UserID: viewerID.String(), EventType: EventFavouriteChanged, NoteIDs: []string{noteID.String()}})
	c.JSON(http.StatusOK, gin.H{"success": true, "noteId": noteID.String(), "favourite": *payload.Favourite})
}

func noteIDParam(c *gin.Context) (notes.NoteID, bool) {
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		badRequest(c, "note id is required")
		return "", false
	}
	return noteID, true
}

// favouriteNoteID reads the note id from the JSON body, falling back to the query string.
func favouriteNoteID(c *gin.Context) (notes.NoteID, bool) {
	var payload favouritePayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			badRequest(c, "invalid request body")
			return "", false
		}
	}
	raw := payload.NoteID
	if strings.TrimSpace(raw) == "" {
		raw = c.Query("noteId")
	}
	noteID, err := notes.NewNoteID(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("Note ID is required", string(apperrors.KindValidation)))
		return "", false
	}
	return noteID, true
}

// queryValue treats the placeholder strings browsers send for unset filters as absent.
func queryValue(raw string) string {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "", "null", "undefined", "all":
		return ""
	default:
		return trimmed
	}
}

func parseSemester(raw string) (int, error) {
	value := queryValue(raw)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
