package services

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/engarde/templatesync/internal/common"
	"github.com/engarde/templatesync/internal/dbx"
	"github.com/engarde/templatesync/internal/logging"
	"github.com/engarde/templatesync/internal/server/models"
	flowsrepo "github.com/engarde/templatesync/internal/server/repositories/flows"
	foldersrepo "github.com/engarde/templatesync/internal/server/repositories/folders"
	refreshtokensrepo "github.com/engarde/templatesync/internal/server/repositories/refreshtokens"
	usersrepo "github.com/engarde/templatesync/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory stand-in for the four repositories. It counts
// writes so tests can assert that a path performed none.
type memStore struct {
	mu sync.Mutex

	users   map[string]*models.User
	tokens  map[string]*models.RefreshToken
	folders []*models.Folder
	flows   map[string]*models.Flow

	writes int

	listTemplatesErr error
	listCopiesErr    error
	listUpdatesErr   error
	createFlowErr    map[string]error // keyed by template source id
	createFolderErr  error
	applyErr         error
	createUserErr    error
}

func newMemStore() *memStore {
	return &memStore{
		users:         map[string]*models.User{},
		tokens:        map[string]*models.RefreshToken{},
		flows:         map[string]*models.Flow{},
		createFlowErr: map[string]error{},
	}
}

func (s *memStore) addTemplate(id, name, version string, data string) *models.Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &models.Flow{
		ID:              id,
		UserID:          "admin",
		Name:            name,
		Description:     name + " template",
		Data:            json.RawMessage(data),
		IsAdminTemplate: true,
		TemplateVersion: version,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	s.flows[id] = f
	return f
}

func (s *memStore) bumpTemplate(id, version, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.flows[id]
	f.TemplateVersion = version
	f.Data = json.RawMessage(data)
	f.UpdatedAt = f.UpdatedAt.Add(time.Hour)
}

func (s *memStore) flow(id string) *models.Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flows[id]
}

func (s *memStore) copiesOf(userID string) []*models.Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Flow
	for _, f := range s.flows {
		if f.UserID == userID && f.TemplateSourceID != "" {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b *models.Flow) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func (s *memStore) folderByID(id string) *models.Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.folders {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// --- users ---

type memUsers struct{ s *memStore }

func (r memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createUserErr != nil {
		return nil, r.s.createUserErr
	}
	for _, existing := range r.s.users {
		if existing.UserName == u.UserName {
			return nil, common.ErrAlreadyExists
		}
	}
	r.s.writes++
	cp := *u
	cp.ID = fmt.Sprintf("user-%d", len(r.s.users)+1)
	cp.CreatedAt = testNow
	r.s.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memUsers) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.UserName == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) UpdateRole(ctx context.Context, id string, role string, isSuperuser bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	r.s.writes++
	u.Role = role
	u.IsSuperuser = isSuperuser
	return nil
}

func (r memUsers) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.LastLoginAt = &at
	return nil
}

// --- refresh tokens ---

type memTokens struct{ s *memStore }

func (r memTokens) Create(ctx context.Context, userID, token string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tokens[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: expiresAt}
	return nil
}

func (r memTokens) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *t
	return &cp, nil
}

func (r memTokens) Delete(ctx context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[token]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.tokens, token)
	return nil
}

func (r memTokens) DeleteExpired(ctx context.Context, userID string, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, t := range r.s.tokens {
		if t.UserID == userID && t.Expires.Before(now) {
			delete(r.s.tokens, k)
			n++
		}
	}
	return n, nil
}

// --- folders ---

type memFolders struct{ s *memStore }

func (r memFolders) Find(ctx context.Context, userID, name, parentID string) (*models.Folder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range r.s.folders {
		if f.UserID == userID && f.Name == name && f.ParentID == parentID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memFolders) Create(ctx context.Context, folder *models.Folder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.createFolderErr != nil {
		return r.s.createFolderErr
	}
	for _, f := range r.s.folders {
		if f.UserID == folder.UserID && f.Name == folder.Name && f.ParentID == folder.ParentID {
			return common.ErrAlreadyExists
		}
	}
	r.s.writes++
	cp := *folder
	r.s.folders = append(r.s.folders, &cp)
	return nil
}

func (r memFolders) ListByUser(ctx context.Context, userID string) ([]*models.Folder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Folder
	for _, f := range r.s.folders {
		if f.UserID == userID {
			cp := *f
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.Folder) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// --- flows ---

type memFlows struct{ s *memStore }

func cloneFlow(f *models.Flow) *models.Flow {
	cp := *f
	cp.Data = cloneRaw(f.Data)
	cp.CustomSettings = cloneRaw(f.CustomSettings)
	return &cp
}

func (r memFlows) ListAdminTemplates(ctx context.Context) ([]*models.Flow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.listTemplatesErr != nil {
		return nil, r.s.listTemplatesErr
	}
	var out []*models.Flow
	for _, f := range r.s.flows {
		if f.IsAdminTemplate {
			out = append(out, cloneFlow(f))
		}
	}
	// map order on purpose; the service must sort
	return out, nil
}

func (r memFlows) ListUserCopies(ctx context.Context, userID string) ([]*models.TemplateCopy, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.listCopiesErr != nil {
		return nil, r.s.listCopiesErr
	}
	var out []*models.TemplateCopy
	for _, f := range r.s.flows {
		if f.UserID == userID && f.TemplateSourceID != "" {
			out = append(out, &models.TemplateCopy{
				FlowID:           f.ID,
				Name:             f.Name,
				TemplateSourceID: f.TemplateSourceID,
				TemplateVersion:  f.TemplateVersion,
				LastSyncedAt:     f.LastSyncedAt,
			})
		}
	}
	return out, nil
}

func (r memFlows) Create(ctx context.Context, flow *models.Flow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.createFlowErr[flow.TemplateSourceID]; err != nil {
		return err
	}
	for _, f := range r.s.flows {
		if flow.TemplateSourceID != "" && f.UserID == flow.UserID && f.TemplateSourceID == flow.TemplateSourceID {
			return common.ErrAlreadyExists
		}
	}
	r.s.writes++
	r.s.flows[flow.ID] = cloneFlow(flow)
	return nil
}

func (r memFlows) GetForUpdate(ctx context.Context, id string) (*models.Flow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.flows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneFlow(f), nil
}

func (r memFlows) GetAdminTemplate(ctx context.Context, id string) (*models.Flow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.flows[id]
	if !ok || !f.IsAdminTemplate {
		return nil, common.ErrorNotFound
	}
	return cloneFlow(f), nil
}

func (r memFlows) ApplyTemplate(ctx context.Context, id string, data json.RawMessage, version string, syncedAt time.Time, preserveSettings bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.applyErr != nil {
		return r.s.applyErr
	}
	f, ok := r.s.flows[id]
	if !ok {
		return common.ErrorNotFound
	}
	r.s.writes++
	f.Data = cloneRaw(data)
	f.TemplateVersion = version
	f.LastSyncedAt = &syncedAt
	f.UpdatedAt = syncedAt
	if !preserveSettings {
		f.CustomSettings = nil
	}
	return nil
}

func (r memFlows) ListUpdates(ctx context.Context, userID string) ([]*models.TemplateUpdate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.listUpdatesErr != nil {
		return nil, r.s.listUpdatesErr
	}
	var out []*models.TemplateUpdate
	for _, f := range r.s.flows {
		if f.UserID != userID || f.TemplateSourceID == "" {
			continue
		}
		t, ok := r.s.flows[f.TemplateSourceID]
		if !ok || !t.IsAdminTemplate {
			continue
		}
		cur, latest := common.VersionOrDefault(f.TemplateVersion), common.VersionOrDefault(t.TemplateVersion)
		if cur == latest {
			continue
		}
		updated := t.UpdatedAt
		out = append(out, &models.TemplateUpdate{
			UserFlowID:        f.ID,
			FlowName:          f.Name,
			CurrentVersion:    cur,
			TemplateID:        t.ID,
			LatestVersion:     latest,
			TemplateUpdatedAt: &updated,
		})
	}
	slices.SortFunc(out, func(a, b *models.TemplateUpdate) int { return cmp.Compare(a.FlowName, b.FlowName) })
	return out, nil
}

func (r memFlows) ListAdoption(ctx context.Context) ([]*models.TemplateAdoption, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.TemplateAdoption
	for _, t := range r.s.flows {
		if !t.IsAdminTemplate {
			continue
		}
		var n int64
		for _, f := range r.s.flows {
			if f.TemplateSourceID == t.ID {
				n++
			}
		}
		out = append(out, &models.TemplateAdoption{
			ID: t.ID, Name: t.Name, Description: t.Description,
			Version: common.VersionOrDefault(t.TemplateVersion), FolderID: t.FolderID,
			UpdatedAt: t.UpdatedAt, AdoptionCount: n,
		})
	}
	slices.SortFunc(out, func(a, b *models.TemplateAdoption) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// --- manager ---

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository         { return memUsers{m.s} }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokensrepo.Repository {
	return memTokens{m.s}
}
func (m *fakeRepoManager) Folders(dbx.DBTX) foldersrepo.Repository { return memFolders{m.s} }
func (m *fakeRepoManager) Flows(dbx.DBTX) flowsrepo.Repository     { return memFlows{m.s} }

// harness wires every service over one memStore with deterministic ids and clocks.
type harness struct {
	store    *memStore
	db       *sql.DB
	mock     sqlmock.Sqlmock
	folders  *FolderResolver
	copier   *TemplateCopier
	sync     *SyncService
	migrator *MigrationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, mock := newSQLMockDB(t)
	store := newMemStore()
	rm := &fakeRepoManager{s: store}
	logger := logging.Nop()

	folders := NewFolderResolver(db, rm, logger)
	folders.newID = seqIDs("folder")
	folders.now = fixedClock(testNow)

	copier := NewTemplateCopier()
	copier.newID = seqIDs("copy")
	copier.now = fixedClock(testNow)

	migrator := NewMigrationService(db, rm, nil, logger)
	migrator.now = fixedClock(testNow.Add(24 * time.Hour))

	return &harness{
		store:    store,
		db:       db,
		mock:     mock,
		folders:  folders,
		copier:   copier,
		sync:     NewSyncService(db, rm, folders, copier, logger),
		migrator: migrator,
	}
}

// migrate runs a migration expecting one transaction that commits or rolls back.
func (h *harness) migrate(t *testing.T, userID, flowID string, preserve bool, commit bool) (*MigrationResult, error) {
	t.Helper()
	h.mock.ExpectBegin()
	if commit {
		h.mock.ExpectCommit()
	} else {
		h.mock.ExpectRollback()
	}
	res, err := h.migrator.Migrate(context.Background(), userID, flowID, preserve)
	if e := h.mock.ExpectationsWereMet(); e != nil {
		t.Fatalf("sql expectations: %v", e)
	}
	return res, err
}
