package server

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleDownloadObject(c *gin.Context) {
	key, ok := h.verifyObjectRequest(c, http.MethodGet)
	if !ok {
		return
	}

	info, err := h.objects.Stat(c.Request.Context(), key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		c.JSON(http.StatusNotFound, errorBody("File not found", "files.not_found"))
		return
	}
	if err != nil {
		h.logger.Error("object stat failed", zap.String("file_key", key), zap.Error(err))
		c.JSON(http.StatusBadGateway, errorBody("upstream service unavailable", "files.stat_failed"))
		return
	}
	reader, err := h.objects.Open(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("object open failed", zap.String("file_key", key), zap.Error(err))
		c.JSON(http.StatusBadGateway, errorBody("upstream service unavailable", "files.open_failed"))
		return
	}
	defer func() {
		_ = reader.Close()
	}()

	if startsDownload(c.Request) {
		if err := h.notesService.RecordDownloadByFileKey(c.Request.Context(), key); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			h.logger.Warn("download counter update failed", zap.String("file_key", key), zap.Error(err))
		}
	}

	name := path.Base(key)
	if contentType := mime.TypeByExtension(path.Ext(name)); contentType != "" {
		c.Header("Content-Type", contentType)
	}
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	http.ServeContent(c.Writer, c.Request, name, info.ModTime, reader)
}

func (h *httpHandler) handleUploadObject(c *gin.Context) {
	key, ok := h.verifyObjectRequest(c, http.MethodPut)
	if !ok {
		return
	}
	claims, _ := c.Get(objectClaimsContextKey)
	objectClaims, _ := claims.(storage.ObjectClaims)
	if expected := objectClaims.ContentType; expected != "" && !sameMediaType(expected, c.GetHeader("Content-Type")) {
		c.JSON(http.StatusBadRequest, errorBody("content type does not match the signed upload", "files.content_type_mismatch"))
		return
	}
	if c.Request.ContentLength > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, errorBody("file too large", "files.too_large"))
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	written, err := h.objects.Put(c.Request.Context(), key, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody("file too large", "files.too_large"))
			return
		}
		h.logger.Error("object write failed", zap.String("file_key", key), zap.Error(err))
		c.JSON(http.StatusBadGateway, errorBody("upstream service unavailable", "files.write_failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"fileKey": key, "size": written})
}

const objectClaimsContextKey = "studynotes_object_claims"

func (h *httpHandler) verifyObjectRequest(c *gin.Context, method string) (string, bool) {
	key, err := storage.CleanKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid file key", "files.invalid_key"))
		return "", false
	}
	claims, err := h.urls.Verify(c.Query(storage.TokenQueryParameter), method, key)
	if err != nil {
		status := http.StatusForbidden
		code := "files.invalid_signature"
		if errors.Is(err, storage.ErrExpiredSignedToken) {
			code = "files.expired_signature"
		}
		h.logger.Info("signed url rejected", zap.String("file_key", key), zap.String("method", method), zap.Error(err))
		c.JSON(status, errorBody("Access denied", code))
		return "", false
	}
	c.Set(objectClaimsContextKey, claims)
	return key, true
}

func sameMediaType(expected, actual string) bool {
	expectedType, _, err := mime.ParseMediaType(expected)
	if err != nil {
		return strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(actual))
	}
	actualType, _, err := mime.ParseMediaType(actual)
	if err != nil {
		return false
	}
	return strings.EqualFold(expectedType, actualType)
}

// startsDownload reports whether r fetches the object from its first byte.
// Viewers read documents in ranges; only the opening range counts as a download.
func startsDownload(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Range"))
	if header == "" {
		return true
	}
	ranges, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return false
	}
	first, _, _ := strings.Cut(ranges, ",")
	start, _, _ := strings.Cut(strings.TrimSpace(first), "-")
	start = strings.TrimSpace(start)
	return start != "" && strings.TrimLeft(start, "0") == ""
}
