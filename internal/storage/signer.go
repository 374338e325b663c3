package storage

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultDownloadTTL bounds signed GET URLs.
	DefaultDownloadTTL = time.Hour
	// DefaultUploadTTL bounds signed PUT URLs.
	DefaultUploadTTL = 5 * time.Minute

	// TokenQueryParameter carries the signed token on object URLs.
	TokenQueryParameter = "token"

	signedURLIssuer = "studynotes-storage"
	filesPathPrefix = "/files/"
)

var (
	ErrMissingSigningSecret = errors.New("storage signer: signing secret required")
	ErrMissingBaseURL       = errors.New("storage signer: public base url required")
	ErrInvalidSignedToken   = errors.New("storage signer: invalid token")
	ErrExpiredSignedToken   = errors.New("storage signer: token expired")
	ErrSignedTokenMismatch  = errors.New("storage signer: token does not grant this request")
)

// ObjectClaims is the payload of a signed object URL.
type ObjectClaims struct {
	ObjectKey   string `json:"object_key"`
	Method      string `json:"method"`
	ContentType string `json:"content_type,omitempty"`
	jwt.RegisteredClaims
}

// SignedURL is a time-bounded credential for one object operation.
type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// URLSignerConfig configures URLSigner.
type URLSignerConfig struct {
	SigningSecret []byte
	PublicBaseURL string
	Clock         func() time.Time
}

// URLSigner issues and verifies HS256-signed object URLs served under /files/.
type URLSigner struct {
	signingSecret []byte
	baseURL       string
	clock         func() time.Time
}

// NewURLSigner validates cfg and returns a signer.
func NewURLSigner(cfg URLSignerConfig) (*URLSigner, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &URLSigner{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		baseURL:       baseURL,
		clock:         clock,
	}, nil
}

// IssueGet returns a download URL for objectKey valid for ttl.
func (s *URLSigner) IssueGet(objectKey string, ttl time.Duration) (SignedURL, error) {
	if ttl <= 0 {
		ttl = DefaultDownloadTTL
	}
	return s.issue(objectKey, http.MethodGet, "", ttl)
}

// IssuePut returns an upload URL for objectKey restricted to contentType, valid for ttl.
func (s *URLSigner) IssuePut(objectKey, contentType string, ttl time.Duration) (SignedURL, error) {
	if ttl <= 0 {
		ttl = DefaultUploadTTL
	}
	return s.issue(objectKey, http.MethodPut, strings.TrimSpace(contentType), ttl)
}

func (s *URLSigner) issue(objectKey, method, contentType string, ttl time.Duration) (SignedURL, error) {
	cleanKey, err := CleanKey(objectKey)
	if err != nil {
		return SignedURL{}, err
	}

	tokenID, err := uuid.NewV7()
	if err != nil {
		return SignedURL{}, fmt.Errorf("storage signer: token id: %w", err)
	}

	now := s.clock().UTC()
	expiresAt := now.Add(ttl)
	claims := ObjectClaims{
		ObjectKey:   cleanKey,
		Method:      method,
		ContentType: contentType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID.String(),
			Issuer:    signedURLIssuer,
			Subject:   cleanKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingSecret)
	if err != nil {
		return SignedURL{}, fmt.Errorf("storage signer: sign: %w", err)
	}

	query := url.Values{}
	query.Set(TokenQueryParameter, signed)
	return SignedURL{
		URL:       s.baseURL + filesPathPrefix + escapeKeyPath(cleanKey) + "?" + query.Encode(),
		ExpiresAt: time.Unix(expiresAt.Unix(), 0).UTC(),
	}, nil
}

// Verify checks that token grants method on objectKey at the current time.
func (s *URLSigner) Verify(token, method, objectKey string) (ObjectClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ObjectClaims{}, ErrInvalidSignedToken
	}

	claims := &ObjectClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.signingSecret, nil
		},
		jwt.WithIssuer(signedURLIssuer),
		jwt.WithTimeFunc(s.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ObjectClaims{}, ErrExpiredSignedToken
		}
		return ObjectClaims{}, fmt.Errorf("%w: %v", ErrInvalidSignedToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return ObjectClaims{}, ErrInvalidSignedToken
	}

	cleanKey, err := CleanKey(objectKey)
	if err != nil {
		return ObjectClaims{}, ErrSignedTokenMismatch
	}
	if claims.Method != method || claims.ObjectKey != cleanKey {
		return ObjectClaims{}, ErrSignedTokenMismatch
	}
	return *claims, nil
}

func escapeKeyPath(key string) string {
	segments := strings.Split(key, "/")
	for index, segment := range segments {
		segments[index] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
