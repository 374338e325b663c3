package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/storage"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/subjects"
	"github.com/MarcoPoloResearchLab/studynotes/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey      = "studynotes_user_id"
	defaultMaxUploadBytes = 25 << 20
	defaultHeartbeat      = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUserService      = errors.New("user service dependency required")
	errMissingNotesService     = errors.New("notes service dependency required")
	errMissingSubjectsService  = errors.New("subjects service dependency required")
	errMissingObjectStore      = errors.New("object store dependency required")
	errMissingURLVerifier      = errors.New("url verifier dependency required")
)

// SessionValidator authenticates incoming requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// UserResolver maps session claims to canonical user ids.
type UserResolver interface {
	ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (string, error)
}

// URLVerifier checks signed object tokens.
type URLVerifier interface {
	Verify(token, method, objectKey string) (storage.ObjectClaims, error)
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	SessionValidator  SessionValidator
	Users             *users.Service
	UserResolver      UserResolver
	NotesService      *notes.Service
	SubjectsService   *subjects.Service
	Objects           notes.ObjectStore
	URLVerifier       URLVerifier
	ChangeFeed        *ChangeFeed
	AllowedOrigins    []string
	MaxUploadBytes    int64
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUserService
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}
	if deps.SubjectsService == nil {
		return nil, errMissingSubjectsService
	}
	if deps.Objects == nil {
		return nil, errMissingObjectStore
	}
	if deps.URLVerifier == nil {
		return nil, errMissingURLVerifier
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := deps.UserResolver
	if resolver == nil {
		resolver = deps.Users
	}
	feed := deps.ChangeFeed
	if feed == nil {
		feed = NewChangeFeed()
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	handler := &httpHandler{
		sessions:       deps.SessionValidator,
		resolver:       resolver,
		users:          deps.Users,
		notesService:   deps.NotesService,
		subjects:       deps.SubjectsService,
		objects:        deps.Objects,
		urls:           deps.URLVerifier,
		feed:           feed,
		maxUploadBytes: maxUpload,
		heartbeat:      heartbeat,
		logger:         logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	router.GET("/healthz", handler.handleHealth)
	router.GET("/subjects", handler.handleListSubjects)
	router.GET("/files/*key", handler.handleDownloadObject)
	router.PUT("/files/*key", handler.handleUploadObject)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/notes", handler.handleListNotes)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.PATCH("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.POST("/notes/:id/views", handler.handleRecordView)
	protected.GET("/notes/:id/summary", handler.handleGetSummary)
	protected.DELETE("/notes/:id/summary", handler.handleClearSummary)
	protected.POST("/uploads/presign", handler.handlePresignUpload)
	protected.GET("/favourites", handler.handleListFavourites)
	protected.POST("/favourites", handler.handleAddFavourite)
	protected.DELETE("/favourites", handler.handleRemoveFavourite)
	protected.PUT("/favourites/:id", handler.handleSetFavourite)
	protected.POST("/subjects", handler.handleCreateSubject)
	protected.GET("/students/profile", handler.handleGetProfile)
	protected.PUT("/students/profile", handler.handleUpdateProfile)
	protected.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	sessions       SessionValidator
	resolver       UserResolver
	users          *users.Service
	notesService   *notes.Service
	subjects       *subjects.Service
	objects        notes.ObjectStore
	urls           URLVerifier
	feed           *ChangeFeed
	maxUploadBytes int64
	heartbeat      time.Duration
	logger         *zap.Logger
}

func corsMiddleware(allowedOrigins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-TAuth-Tenant"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("Unauthorized", "auth.unauthorized"))
		return
	}

	userID, err := h.resolver.ResolveCanonicalUserID(c.Request.Context(), claims)
	if err != nil {
		if errors.Is(err, users.ErrInvalidIdentity) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("Unauthorized", "auth.invalid_identity"))
			return
		}
		h.logger.Error("failed to resolve user", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("internal server error", "auth.resolve_failed"))
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func (h *httpHandler) currentUser(c *gin.Context) (notes.UserID, bool) {
	userID, err := notes.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorBody("Unauthorized", "auth.unauthorized"))
		return "", false
	}
	return userID, true
}

// writeError maps service errors onto statuses without exposing causes.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		h.logger.Error("unclassified handler error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("internal server error", "internal"))
		return
	}
	c.JSON(statusForKind(appErr.Kind()), errorBody(appErr.Message(), appErr.Code()))
}

func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindUnauthorized:
		return http.StatusUnauthorized
	case apperrors.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(message, code string) gin.H {
	return gin.H{"error": message, "code": code}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorBody(message, "request.invalid"))
}
