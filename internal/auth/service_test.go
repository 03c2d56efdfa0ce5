package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"

	"github.com/khatapp/backend-khata/internal/common"
	"github.com/khatapp/backend-khata/internal/db"
)

type fakeStore struct {
	companies map[string]*db.Company
	users     map[uuid.UUID]*db.User
	sessions  map[string]*db.Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		companies: map[string]*db.Company{},
		users:     map[uuid.UUID]*db.User{},
		sessions:  map[string]*db.Session{},
	}
}

func (f *fakeStore) GetCompanyBySlug(_ context.Context, slug string) (*db.Company, error) {
	if c, ok := f.companies[slug]; ok {
		return c, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) CreateUser(_ context.Context, u *db.User) error {
	for _, existing := range f.users {
		if existing.CompanyID == u.CompanyID && existing.Email == u.Email {
			return db.ErrDuplicate
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, id uuid.UUID) (*db.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) GetUserByEmail(_ context.Context, companyID uuid.UUID, email string) (*db.User, error) {
	for _, u := range f.users {
		if u.CompanyID == companyID && u.Email == email {
			return u, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, id uuid.UUID, hash string) error {
	u, ok := f.users[id]
	if !ok {
		return db.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeStore) CreateSession(_ context.Context, sess *db.Session) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	f.sessions[sess.TokenHash] = sess
	return nil
}

func (f *fakeStore) GetSessionByTokenHash(_ context.Context, tokenHash string) (*db.Session, error) {
	if s, ok := f.sessions[tokenHash]; ok && s.RevokedAt == nil {
		return s, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) RevokeSession(_ context.Context, id uuid.UUID) error {
	now := time.Now()
	for _, s := range f.sessions {
		if s.ID == id {
			s.RevokedAt = &now
		}
	}
	return nil
}

func (f *fakeStore) RevokeUserSessions(_ context.Context, userID uuid.UUID) error {
	now := time.Now()
	for _, s := range f.sessions {
		if s.UserID == userID {
			s.RevokedAt = &now
		}
	}
	return nil
}

func (f *fakeStore) activeSessions(userID uuid.UUID) int {
	n := 0
	for _, s := range f.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T, store *fakeStore) *Service {
	t.Helper()
	svc, err := NewService(Config{Store: store, Secret: "test-secret-please-rotate"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedCompanyAndUser(t *testing.T, store *fakeStore, password string) (*db.Company, *db.User) {
	t.Helper()
	company := &db.Company{ID: uuid.New(), Slug: "sharma-traders", Name: "Sharma Traders", StateCode: "27"}
	store.companies[company.Slug] = company
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := &db.User{
		ID:           uuid.New(),
		CompanyID:    company.ID,
		Name:         "Asha",
		Email:        "asha@example.com",
		PasswordHash: hash,
		Roles:        []string{"member"},
	}
	store.users[user.ID] = user
	return company, user
}

func TestRegisterValidation(t *testing.T) {
	store := newFakeStore()
	store.companies["sharma-traders"] = &db.Company{ID: uuid.New(), Slug: "sharma-traders"}
	svc := newTestService(t, store)

	cases := []struct {
		name     string
		userName string
		email    string
		password string
	}{
		{"empty name", "", "a@b.com", "longenough"},
		{"empty email", "Asha", "", "longenough"},
		{"short password", "Asha", "a@b.com", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), "sharma-traders", tc.userName, tc.email, tc.password)
			var appErr *common.AppError
			if !errors.As(err, &appErr) || appErr.Code != "VALIDATION_ERROR" {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newFakeStore()
	_, user := seedCompanyAndUser(t, store, "password123")
	svc := newTestService(t, store)

	_, err := svc.Register(context.Background(), "sharma-traders", "Other", user.Email, "password123")
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "EMAIL_ALREADY_USED" {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
}

func TestLoginAndParseAccessToken(t *testing.T) {
	store := newFakeStore()
	company, user := seedCompanyAndUser(t, store, "password123")
	svc := newTestService(t, store)

	result, err := svc.Login(context.Background(), "sharma-traders", user.Email, "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected token pair")
	}

	identity, err := svc.ParseAccessToken(result.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if identity.UserID != user.ID.String() {
		t.Fatalf("subject mismatch: %q", identity.UserID)
	}
	if identity.CompanyID != company.ID.String() {
		t.Fatalf("company claim mismatch: %q", identity.CompanyID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	store := newFakeStore()
	_, user := seedCompanyAndUser(t, store, "password123")
	svc := newTestService(t, store)

	_, err := svc.Login(context.Background(), "sharma-traders", user.Email, "nope-nope")
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	store := newFakeStore()
	_, user := seedCompanyAndUser(t, store, "password123")
	svc := newTestService(t, store)

	login, err := svc.Login(context.Background(), "sharma-traders", user.Email, "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := svc.Refresh(context.Background(), login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// The presented token is single use.
	if _, err := svc.Refresh(context.Background(), login.RefreshToken); err == nil {
		t.Fatal("expected old refresh token to be rejected")
	}
}

func TestRefreshExpiredSession(t *testing.T) {
	store := newFakeStore()
	_, user := seedCompanyAndUser(t, store, "password123")
	svc := newTestService(t, store)

	login, err := svc.Login(context.Background(), "sharma-traders", user.Email, "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	svc.WithNow(func() time.Time { return time.Now().Add(1000 * time.Hour) })
	if _, err := svc.Refresh(context.Background(), login.RefreshToken); err == nil {
		t.Fatal("expected expired session to be rejected")
	}
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	store := newFakeStore()
	_, user := seedCompanyAndUser(t, store, "password123")
	svc := newTestService(t, store)

	if _, err := svc.Login(context.Background(), "sharma-traders", user.Email, "password123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if store.activeSessions(user.ID) != 1 {
		t.Fatal("expected one active session before change")
	}

	if err := svc.ChangePassword(context.Background(), user.ID.String(), "password123", "newpassword456"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if store.activeSessions(user.ID) != 0 {
		t.Fatal("expected sessions revoked after password change")
	}

	if _, err := svc.Login(context.Background(), "sharma-traders", user.Email, "newpassword456"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
