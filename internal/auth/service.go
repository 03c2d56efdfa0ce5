package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/khatapp/backend-khata/internal/common"
	"github.com/khatapp/backend-khata/internal/db"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 720 * time.Hour
)

const companyClaim = "cid"

// Store is the persistence surface the auth service depends on.
type Store interface {
	GetCompanyBySlug(ctx context.Context, slug string) (*db.Company, error)
	CreateUser(ctx context.Context, u *db.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
	GetUserByEmail(ctx context.Context, companyID uuid.UUID, email string) (*db.User, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	CreateSession(ctx context.Context, sess *db.Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*db.Session, error)
	RevokeSession(ctx context.Context, id uuid.UUID) error
	RevokeUserSessions(ctx context.Context, userID uuid.UUID) error
}

// Service coordinates authentication, password management, and session persistence.
type Service struct {
	store      Store
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	signer     jwa.SignatureAlgorithm
	validator  TokenValidator
	issuer     string
	audience   string
	clockSkew  time.Duration
}

// Config configures the auth service.
type Config struct {
	Store           Store
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
	Audience        string
	ClockSkew       time.Duration
}

// User is the safe subset of the user model returned to clients.
type User struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity is the authenticated principal extracted from an access token.
type Identity struct {
	UserID    string
	CompanyID string
}

// LoginResult bundles token material returned after a successful login.
type LoginResult struct {
	User          User      `json:"user"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// RefreshResult represents the outcome of a refresh operation.
type RefreshResult struct {
	AccessToken   string    `json:"access_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshToken  string    `json:"refresh_token"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("auth: store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "khata-api"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "khata-clients"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		store:      cfg.Store,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
		signer:     jwa.HS256,
		validator: TokenValidator{
			Issuer:         issuer,
			Audience:       audience,
			ClockSkew:      clockSkew,
			Algorithm:      jwa.HS256,
			RequireSubject: true,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates a new user inside the company resolved from the request scope.
func (s *Service) Register(ctx context.Context, companySlug, name, email, password string) (User, error) {
	if strings.TrimSpace(name) == "" {
		return User{}, common.NewAppError("VALIDATION_ERROR", "name is required", http.StatusBadRequest, nil)
	}
	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	if normalizedEmail == "" {
		return User{}, common.NewAppError("VALIDATION_ERROR", "email is required", http.StatusBadRequest, nil)
	}
	if len(password) < 8 {
		return User{}, common.NewAppError("VALIDATION_ERROR", "password must be at least 8 characters", http.StatusBadRequest, nil)
	}

	company, err := s.store.GetCompanyBySlug(ctx, strings.TrimSpace(companySlug))
	if err != nil {
		return User{}, common.NewAppError("VALIDATION_ERROR", "unknown company", http.StatusBadRequest, err)
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	user := &db.User{
		CompanyID:    company.ID,
		Name:         strings.TrimSpace(name),
		Email:        normalizedEmail,
		PasswordHash: hash,
		Roles:        []string{"member"},
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return User{}, common.NewAppError("EMAIL_ALREADY_USED", "email is already registered", http.StatusConflict, err)
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}

	return convertUser(user), nil
}

// Login verifies credentials and issues a new JWT/refresh token pair.
func (s *Service) Login(ctx context.Context, companySlug, email, password string) (LoginResult, error) {
	normalizedEmail := strings.TrimSpace(strings.ToLower(email))
	if normalizedEmail == "" || password == "" {
		return LoginResult{}, errInvalidCredentials()
	}

	company, err := s.store.GetCompanyBySlug(ctx, strings.TrimSpace(companySlug))
	if err != nil {
		return LoginResult{}, errInvalidCredentials()
	}

	user, err := s.store.GetUserByEmail(ctx, company.ID, normalizedEmail)
	if err != nil {
		return LoginResult{}, errInvalidCredentials()
	}

	ok, err := argon2id.ComparePasswordAndHash(password, user.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, errInvalidCredentials()
	}

	accessToken, accessExpiry, err := s.signAccessToken(user.ID.String(), user.CompanyID.String())
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, refreshExpiry, err := s.generateRefreshToken(ctx, user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("generate refresh token: %w", err)
	}

	return LoginResult{
		User:          convertUser(user),
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessExpiry:  accessExpiry,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Logout revokes the session behind the supplied refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return nil
	}
	session, err := s.store.GetSessionByTokenHash(ctx, hashRefreshToken(token))
	if err != nil {
		return nil
	}
	return s.store.RevokeSession(ctx, session.ID)
}

// Refresh validates and rotates a refresh token, issuing a fresh token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return RefreshResult{}, errInvalidRefresh()
	}

	session, err := s.store.GetSessionByTokenHash(ctx, hashRefreshToken(token))
	if err != nil {
		return RefreshResult{}, errInvalidRefresh()
	}
	if s.now().After(session.ExpiresAt) {
		_ = s.store.RevokeSession(ctx, session.ID)
		return RefreshResult{}, errInvalidRefresh()
	}

	user, err := s.store.GetUser(ctx, session.UserID)
	if err != nil {
		_ = s.store.RevokeSession(ctx, session.ID)
		return RefreshResult{}, errInvalidRefresh()
	}

	accessToken, accessExpiry, err := s.signAccessToken(user.ID.String(), user.CompanyID.String())
	if err != nil {
		return RefreshResult{}, fmt.Errorf("sign access token: %w", err)
	}

	// Rotation: the presented token is single use.
	if err := s.store.RevokeSession(ctx, session.ID); err != nil {
		return RefreshResult{}, fmt.Errorf("revoke session: %w", err)
	}
	newRefresh, refreshExpiry, err := s.generateRefreshToken(ctx, user.ID)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("generate refresh token: %w", err)
	}

	return RefreshResult{
		AccessToken:   accessToken,
		AccessExpiry:  accessExpiry,
		RefreshToken:  newRefresh,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Me fetches the current authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return User{}, common.Unauthorized("unauthorized")
	}
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return User{}, common.Unauthorized("unauthorized")
	}
	return convertUser(user), nil
}

// ChangePassword verifies the current password before storing a new hash and
// revoking every other session of the user.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return common.Unauthorized("unauthorized")
	}
	if len(next) < 8 {
		return common.NewAppError("WEAK_PASSWORD", "password must be at least 8 characters", http.StatusBadRequest, nil)
	}
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return common.Unauthorized("unauthorized")
	}
	ok, err := argon2id.ComparePasswordAndHash(current, user.PasswordHash)
	if err != nil || !ok {
		return common.NewAppError("INVALID_CREDENTIALS", "current password is incorrect", http.StatusUnauthorized, nil)
	}
	hash, err := argon2id.CreateHash(next, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, id, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.store.RevokeUserSessions(ctx, id); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// ParseAccessToken validates an access token and returns the identity it carries.
func (s *Service) ParseAccessToken(token string) (Identity, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Identity{}, common.Unauthorized("missing token")
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	identity := Identity{UserID: parsed.Subject()}
	if v, ok := parsed.Get(companyClaim); ok {
		if cid, ok := v.(string); ok {
			identity.CompanyID = cid
		}
	}
	return identity, nil
}

func errInvalidCredentials() error {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)
}

func errInvalidRefresh() error {
	return common.Unauthorized("invalid refresh token")
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(userID, companyID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	builder := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim(companyClaim, companyID)
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func (s *Service) generateRefreshToken(ctx context.Context, userID uuid.UUID) (string, time.Time, error) {
	token, err := generateToken(48)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := s.now().Add(s.refreshTTL)
	session := &db.Session{
		UserID:    userID,
		TokenHash: hashRefreshToken(token),
		ExpiresAt: expiresAt,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func generateToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func convertUser(u *db.User) User {
	return User{
		ID:        u.ID.String(),
		CompanyID: u.CompanyID.String(),
		Name:      u.Name,
		Email:     u.Email,
		Roles:     u.Roles,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
