package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"kidnotes/api/internal/accounts"
	"kidnotes/api/internal/auth"
	"kidnotes/api/internal/config"
	"kidnotes/api/internal/rbac"
	"kidnotes/api/internal/search"
	"kidnotes/api/internal/store"
	"kidnotes/api/internal/throttle"
	"kidnotes/api/internal/util"
)

// Session is the authenticated caller of a single request. It is rebuilt
// from the store on every request; nothing but the username is trusted from
// the token itself.
type Session struct {
	Token    string
	Username string
	Role     string
}

// NoteInput is the full mutable state of a note. Updates replace every field
// wholesale; a payload omitting tags clears them.
type NoteInput struct {
	Title         string               `json:"title"`
	Content       string               `json:"content"`
	Tags          []string             `json:"tags"`
	CheckboxItems []store.CheckboxItem `json:"checkbox_items"`
	FolderID      *string              `json:"folder_id"`
}

type dataStore interface {
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	ListChildUsernames(ctx context.Context, parentUsername string) ([]string, error)
	InsertFolder(ctx context.Context, folder store.Folder) error
	ListFoldersByOwners(ctx context.Context, owners []string) ([]store.Folder, error)
	InsertNote(ctx context.Context, note store.Note) error
	GetNote(ctx context.Context, noteID string) (store.Note, error)
	ListNotesByOwners(ctx context.Context, owners []string) ([]store.Note, error)
	UpdateNote(ctx context.Context, note store.Note) error
	DeleteNote(ctx context.Context, noteID string) error
	Ping(ctx context.Context) error
}

type noteSearch interface {
	Search(q search.Query) search.Response
	IndexNote(record search.NoteRecord)
	DeleteNote(id string)
	ReindexAllFromPG(ctx context.Context)
}

type loginLimiter interface {
	RecordFailure(ctx context.Context, username string) (int64, error)
	Failures(ctx context.Context, username string) (int64, error)
	Reset(ctx context.Context, username string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	accounts *accounts.Service
	search   noteSearch
	limiter  loginLimiter
}

func New(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service) *Service {
	service := &Service{
		cfg:      cfg,
		store:    dataStore,
		accounts: accounts.NewService(dataStore),
	}
	if searchService != nil {
		service.search = searchService
	}
	return service
}

// NewWithLoginLimiter wires a Redis-backed failed-login throttle in front of
// SignIn.
func NewWithLoginLimiter(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service, limiter *throttle.RedisStore) *Service {
	service := New(cfg, dataStore, searchService)
	service.limiter = limiter
	return service
}

// Bootstrap rebuilds the search index from Postgres. Safe to call on every
// start.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SignUp registers a new account.
func (s *Service) SignUp(ctx context.Context, req accounts.RegisterRequest) error {
	_, err := s.accounts.Register(ctx, req)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, accounts.ErrDuplicateUser):
		return domainError(http.StatusBadRequest, "DUPLICATE_USER", "Username exists", nil)
	case errors.Is(err, accounts.ErrInvalidParent):
		return domainError(http.StatusBadRequest, "INVALID_PARENT", "parent_username not found or not a parent", nil)
	case errors.Is(err, accounts.ErrInvalidRole):
		return domainError(http.StatusBadRequest, "INVALID_BODY", "role must be child or parent", nil)
	case errors.Is(err, accounts.ErrMissingCredentials):
		return domainError(http.StatusBadRequest, "INVALID_BODY", "username and password are required", nil)
	default:
		return err
	}
}

// SignIn checks credentials and issues a bearer token. The failure message
// is identical for unknown usernames and wrong passwords.
func (s *Service) SignIn(ctx context.Context, username, password string) (Session, error) {
	normalized := accounts.Normalize(username)

	if s.limiter != nil {
		failures, err := s.limiter.Failures(ctx, normalized)
		if err != nil {
			return Session{}, fmt.Errorf("check login failures: %w", err)
		}
		if failures >= int64(s.cfg.LoginMaxFailures) {
			return Session{}, domainError(http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "Too many failed login attempts, try again later", nil)
		}
	}

	user, err := s.accounts.Authenticate(ctx, normalized, password)
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		if s.limiter != nil {
			_, _ = s.limiter.RecordFailure(ctx, normalized)
		}
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials", nil)
	}
	if err != nil {
		return Session{}, err
	}

	if s.limiter != nil {
		_ = s.limiter.Reset(ctx, normalized)
	}

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.Username, s.cfg.TokenTTL)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Token: token, Username: user.Username, Role: user.Role}, nil
}

// SessionFromToken resolves a bearer token to the current user record. The
// record is always read fresh so role and parent-link changes take effect
// immediately, and a token whose account has vanished is rejected.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	username, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, Username: user.Username, Role: user.Role}, nil
}

// visibleOwners computes the set of usernames whose records the caller may
// read: a child sees itself, a parent sees its directly linked children.
// Recomputed on every request; never cached.
func (s *Service) visibleOwners(ctx context.Context, session Session) ([]string, error) {
	switch rbac.Role(session.Role) {
	case rbac.RoleChild:
		return []string{session.Username}, nil
	case rbac.RoleParent:
		return s.store.ListChildUsernames(ctx, session.Username)
	default:
		return nil, nil
	}
}

func (s *Service) CreateFolder(ctx context.Context, session Session, name string) (map[string]any, error) {
	if !rbac.Can(rbac.Role(session.Role), rbac.ActionCreate) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only children can create folders", nil)
	}
	folder := store.Folder{
		ID:            util.NewID(),
		Name:          name,
		OwnerUsername: session.Username,
	}
	if err := s.store.InsertFolder(ctx, folder); err != nil {
		return nil, err
	}
	return folderPayload(folder), nil
}

func (s *Service) ListFolders(ctx context.Context, session Session) ([]map[string]any, error) {
	owners, err := s.visibleOwners(ctx, session)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0)
	if len(owners) == 0 {
		return items, nil
	}
	folders, err := s.store.ListFoldersByOwners(ctx, owners)
	if err != nil {
		return nil, err
	}
	for _, folder := range folders {
		items = append(items, folderPayload(folder))
	}
	return items, nil
}

func (s *Service) CreateNote(ctx context.Context, session Session, input NoteInput) (map[string]any, error) {
	if !rbac.Can(rbac.Role(session.Role), rbac.ActionCreate) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only children can create notes", nil)
	}
	if input.Title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	note := noteFromInput(util.NewID(), session.Username, input)
	if err := s.store.InsertNote(ctx, note); err != nil {
		return nil, err
	}
	s.indexNote(note)
	return notePayload(note), nil
}

func (s *Service) ListNotes(ctx context.Context, session Session) ([]map[string]any, error) {
	owners, err := s.visibleOwners(ctx, session)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0)
	if len(owners) == 0 {
		return items, nil
	}
	notes, err := s.store.ListNotesByOwners(ctx, owners)
	if err != nil {
		return nil, err
	}
	for _, note := range notes {
		items = append(items, notePayload(note))
	}
	return items, nil
}

func (s *Service) GetNote(ctx context.Context, session Session, noteID string) (map[string]any, error) {
	note, err := s.loadNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, session, note); err != nil {
		return nil, err
	}
	return notePayload(note), nil
}

func (s *Service) UpdateNote(ctx context.Context, session Session, noteID string, input NoteInput) (map[string]any, error) {
	current, err := s.loadNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if err := authorizeWrite(session, current); err != nil {
		return nil, err
	}
	if input.Title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	replaced := noteFromInput(current.ID, current.OwnerUsername, input)
	replaced.CreatedAt = current.CreatedAt
	if err := s.store.UpdateNote(ctx, replaced); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Note not found", nil)
		}
		return nil, err
	}
	s.indexNote(replaced)
	return notePayload(replaced), nil
}

func (s *Service) DeleteNote(ctx context.Context, session Session, noteID string) error {
	note, err := s.loadNote(ctx, noteID)
	if err != nil {
		return err
	}
	if err := authorizeWrite(session, note); err != nil {
		return err
	}
	if err := s.store.DeleteNote(ctx, noteID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Note not found", nil)
		}
		return err
	}
	if s.search != nil {
		s.search.DeleteNote(noteID)
	}
	return nil
}

// SearchNotes runs a full-text search scoped to the caller's visible owners.
func (s *Service) SearchNotes(ctx context.Context, session Session, text string, limit, offset int) (search.Response, error) {
	owners, err := s.visibleOwners(ctx, session)
	if err != nil {
		return search.Response{}, err
	}
	if s.search == nil || len(owners) == 0 {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:   text,
		Owners: owners,
		Limit:  limit,
		Offset: offset,
	}), nil
}

func (s *Service) loadNote(ctx context.Context, noteID string) (store.Note, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Note{}, domainError(http.StatusNotFound, "NOT_FOUND", "Note not found", nil)
	}
	if err != nil {
		return store.Note{}, err
	}
	return note, nil
}

// authorizeRead admits the owning child, or the parent directly linked to
// the owner. The owner's record is re-read so a changed parent link is
// honored immediately.
func (s *Service) authorizeRead(ctx context.Context, session Session, note store.Note) error {
	switch rbac.Role(session.Role) {
	case rbac.RoleChild:
		if note.OwnerUsername == session.Username {
			return nil
		}
	case rbac.RoleParent:
		owner, err := s.store.GetUserByUsername(ctx, note.OwnerUsername)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err == nil && owner.ParentUsername != nil && *owner.ParentUsername == session.Username {
			return nil
		}
	}
	return domainError(http.StatusForbidden, "FORBIDDEN", "Not allowed", nil)
}

// authorizeWrite admits only the owning child. Parents never write.
func authorizeWrite(session Session, note store.Note) error {
	if !rbac.Can(rbac.Role(session.Role), rbac.ActionWrite) || note.OwnerUsername != session.Username {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the owning child can modify this note", nil)
	}
	return nil
}

func (s *Service) indexNote(note store.Note) {
	if s.search == nil {
		return
	}
	s.search.IndexNote(search.NoteRecord{
		ID:            note.ID,
		Title:         note.Title,
		Content:       note.Content,
		Tags:          note.Tags,
		OwnerUsername: note.OwnerUsername,
	})
}

func noteFromInput(id, owner string, input NoteInput) store.Note {
	tags := input.Tags
	if tags == nil {
		tags = []string{}
	}
	items := input.CheckboxItems
	if items == nil {
		items = []store.CheckboxItem{}
	}
	return store.Note{
		ID:            id,
		Title:         input.Title,
		Content:       input.Content,
		Tags:          tags,
		CheckboxItems: items,
		FolderID:      input.FolderID,
		OwnerUsername: owner,
	}
}

func folderPayload(folder store.Folder) map[string]any {
	return map[string]any{
		"id":             folder.ID,
		"name":           folder.Name,
		"owner_username": folder.OwnerUsername,
	}
}

func notePayload(note store.Note) map[string]any {
	tags := note.Tags
	if tags == nil {
		tags = []string{}
	}
	items := note.CheckboxItems
	if items == nil {
		items = []store.CheckboxItem{}
	}
	return map[string]any{
		"id":             note.ID,
		"title":          note.Title,
		"content":        note.Content,
		"tags":           tags,
		"checkbox_items": items,
		"folder_id":      note.FolderID,
		"owner_username": note.OwnerUsername,
	}
}
