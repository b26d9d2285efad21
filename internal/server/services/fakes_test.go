package services

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/dbx"
	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/config"
	"github.com/dmitrijs2005/taskauth/internal/server/models"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/projects"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/taskauth/internal/server/repositories/users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// --- in-memory store shared by the fake repositories ---

type memStore struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken
	users  map[string]*models.User
	roles  map[string][]string

	createErr        error
	findErr          error
	revokeErr        error
	setReplacedByErr error
	getUserErr       error
	rolesErr         error
	createUserErr    error
	listErr          error
	// revokeIfActiveLoses makes RevokeIfActive report a lost race.
	revokeIfActiveLoses bool
}

func newMemStore() *memStore {
	return &memStore{
		tokens: map[string]*models.RefreshToken{},
		users:  map[string]*models.User{},
		roles:  map[string][]string{},
	}
}

func (m *memStore) addUser(email, password string, roles ...string) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	hash, err := hashForTest(password)
	if err != nil {
		panic(err)
	}
	u := &models.User{ID: uuid.NewString(), Email: email, PasswordHash: hash, CreatedAt: time.Now()}
	m.users[u.ID] = u
	m.roles[u.ID] = roles
	return u
}

func (m *memStore) deleteUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *memStore) token(tokenID string) models.RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenID]
	if !ok {
		return models.RefreshToken{}
	}
	return *t
}

func (m *memStore) tokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

type fakeLedger struct{ s *memStore }

func (f *fakeLedger) Create(_ context.Context, t *models.RefreshToken) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.createErr != nil {
		return f.s.createErr
	}
	if _, ok := f.s.tokens[t.TokenID]; ok {
		return common.ErrorAlreadyExists
	}
	t.ID = uuid.NewString()
	cp := *t
	f.s.tokens[t.TokenID] = &cp
	return nil
}

func (f *fakeLedger) FindByTokenID(_ context.Context, tokenID string) (*models.RefreshToken, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.findErr != nil {
		return nil, f.s.findErr
	}
	t, ok := f.s.tokens[tokenID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeLedger) RevokeIfActive(_ context.Context, tokenID string, at time.Time) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.revokeErr != nil {
		return false, f.s.revokeErr
	}
	if f.s.revokeIfActiveLoses {
		return false, nil
	}
	t, ok := f.s.tokens[tokenID]
	if !ok || !t.IsActive(at) {
		return false, nil
	}
	t.RevokedAt = &at
	return true, nil
}

func (f *fakeLedger) Revoke(_ context.Context, tokenID string, at time.Time) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.revokeErr != nil {
		return false, f.s.revokeErr
	}
	t, ok := f.s.tokens[tokenID]
	if !ok || t.IsRevoked() {
		return false, nil
	}
	t.RevokedAt = &at
	return true, nil
}

func (f *fakeLedger) SetReplacedBy(_ context.Context, tokenID, replacedBy string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.setReplacedByErr != nil {
		return f.s.setReplacedByErr
	}
	t, ok := f.s.tokens[tokenID]
	if !ok || t.ReplacedByTokenID != nil {
		return common.ErrorNotFound
	}
	t.ReplacedByTokenID = &replacedBy
	return nil
}

func (f *fakeLedger) ListByUser(_ context.Context, userID string) ([]models.RefreshToken, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.listErr != nil {
		return nil, f.s.listErr
	}
	var out []models.RefreshToken
	for _, t := range f.s.tokens {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakeUsers struct{ s *memStore }

func (f *fakeUsers) Create(_ context.Context, u *models.User, roles []string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.createUserErr != nil {
		return nil, f.s.createUserErr
	}
	for _, existing := range f.s.users {
		if existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now()
	cp := *u
	f.s.users[u.ID] = &cp
	f.s.roles[u.ID] = slices.Clone(roles)
	return u, nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.getUserErr != nil {
		return nil, f.s.getUserErr
	}
	for _, u := range f.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.getUserErr != nil {
		return nil, f.s.getUserErr
	}
	u, ok := f.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetRoles(_ context.Context, userID string) ([]string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.rolesErr != nil {
		return nil, f.s.rolesErr
	}
	out := slices.Clone(f.s.roles[userID])
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return out, nil
}

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                 { return &fakeUsers{s: m.s} }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return &fakeLedger{s: m.s} }
func (m *fakeRepoManager) Projects(dbx.DBTX) projects.Repository           { return nil }

// --- helpers ---

func testConfig() *config.Config {
	return &config.Config{
		AccessTokenSecret:            "access-secret",
		RefreshTokenSecret:           "refresh-secret",
		Issuer:                       "taskauth",
		Audience:                     "taskauth-clients",
		AccessTokenValidityDuration:  15 * time.Minute,
		RefreshTokenValidityDuration: 7 * 24 * time.Hour,
	}
}

// newSQLiteDB returns a real *sql.DB for dbx.WithTx; the fakes ignore the
// handle, so every connection may be its own empty in-memory database.
func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newTokenService(t *testing.T, db *sql.DB, store *memStore, log logging.Logger) *TokenService {
	t.Helper()
	if log == nil {
		log = logging.Discard()
	}
	return NewTokenService(db, &fakeRepoManager{s: store}, testConfig(), log)
}

func bufferLogger() (logging.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logging.NewJSONLogger(&buf, slog.LevelDebug), &buf
}

func hashForTest(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
}
