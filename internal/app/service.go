package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"clarity/api/internal/ai"
	"clarity/api/internal/auth"
	"clarity/api/internal/authpw"
	"clarity/api/internal/config"
	"clarity/api/internal/email"
	"clarity/api/internal/export"
	"clarity/api/internal/search"
	"clarity/api/internal/storage"
	"clarity/api/internal/store"
	"clarity/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type CreateFolderInput struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
	IsPublic bool    `json:"is_public"`
}

type CreateNoteInput struct {
	FolderID string `json:"folder_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	FileURL  string `json:"file_url"`
	IsPublic bool   `json:"is_public"`
}

type UpdateNoteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type dataStore interface {
	Ping(ctx context.Context) error
	GetUserByID(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	ListFolders(context.Context, store.FolderQuery) ([]store.Folder, error)
	ListChildFolders(ctx context.Context, parentID, viewerID string) ([]store.Folder, error)
	GetFolder(context.Context, string) (store.Folder, error)
	InsertFolder(context.Context, store.Folder) (store.Folder, error)
	ListNotes(ctx context.Context, folderID string, includePrivate bool) ([]store.Note, error)
	GetNote(context.Context, string) (store.Note, error)
	InsertNote(context.Context, store.Note) (store.Note, error)
	UpdateNoteContent(ctx context.Context, noteID, title, content string) error
	SetNoteFileURL(ctx context.Context, noteID, fileURL string) error
}

// SessionStore holds refresh tokens. Backed by Redis in production and by
// Postgres when Redis is not configured.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type objectStorage interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	PublicURL(path string) string
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

type folderSearch interface {
	SearchFolders(ctx context.Context, q search.Query) ([]store.Folder, error)
	IndexFolder(f store.Folder)
}

type aiClient interface {
	Answer(ctx context.Context, prompt, fileURL string) (string, error)
}

type noteExporter interface {
	ExportNotePDF(note export.Note) (*export.Result, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions SessionStore
	objects  objectStorage
	search   folderSearch
	ai       aiClient
	exporter noteExporter
	authpw   *authpw.Service
	mail     *email.Service
}

func New(
	cfg config.Config,
	dataStore *store.PostgresStore,
	sessions SessionStore,
	objects *storage.Client,
	searcher *search.Service,
	aiClient *ai.Client,
	authPW *authpw.Service,
	mail *email.Service,
) *Service {
	svc := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		objects:  objects,
		search:   searcher,
		exporter: export.NewService(),
		authpw:   authPW,
		mail:     mail,
	}
	// A nil *ai.Client must stay a nil interface so Ask can report
	// the backend as unavailable instead of panicking.
	if aiClient != nil {
		svc.ai = aiClient
	}
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

// SendVerificationEmail delivers the signup verification link. Failures are
// logged, not surfaced: the dev token bypass covers unconfigured SMTP and a
// flaky relay should not fail the signup.
func (s *Service) SendVerificationEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := s.cfg.AppURL + "/verify-email?token=" + token
	go func() {
		if err := s.mail.SendVerificationEmail(to, userName, url); err != nil {
			log.Printf("email: send verification to %s: %v", to, err)
		}
	}()
}

// SendPasswordResetEmail delivers the reset link, same contract as
// SendVerificationEmail.
func (s *Service) SendPasswordResetEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := s.cfg.AppURL + "/reset-password?token=" + token
	go func() {
		if err := s.mail.SendPasswordResetEmail(to, userName, url); err != nil {
			log.Printf("email: send password reset to %s: %v", to, err)
		}
	}()
}

// CreateSession issues an access + refresh token pair for a verified user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	cached, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// Re-read the profile so a renamed user does not keep a stale session.
	user, err := s.store.GetUserByID(ctx, cached.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// ListFolders resolves the three listing shapes: children of a parent,
// the viewer's own folders, or the public pool. A search term in the "my"
// scope widens the listing from root-only to every depth.
func (s *Service) ListFolders(ctx context.Context, session Session, scope, parentID, searchTerm string) ([]store.Folder, error) {
	if parentID != "" {
		return s.store.ListChildFolders(ctx, parentID, session.UserID)
	}

	switch scope {
	case "", "my":
		if searchTerm != "" {
			return s.search.SearchFolders(ctx, search.Query{
				Text:    searchTerm,
				Scope:   search.ScopeOwner,
				OwnerID: session.UserID,
			})
		}
		return s.store.ListFolders(ctx, store.FolderQuery{
			Scope:    store.ScopeOwner,
			OwnerID:  session.UserID,
			RootOnly: true,
		})
	case "public":
		if searchTerm != "" {
			return s.search.SearchFolders(ctx, search.Query{
				Text:  searchTerm,
				Scope: search.ScopePublic,
			})
		}
		return s.store.ListFolders(ctx, store.FolderQuery{Scope: store.ScopePublic})
	default:
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "scope must be 'my' or 'public'", nil)
	}
}

func (s *Service) CreateFolder(ctx context.Context, session Session, input CreateFolderInput) (store.Folder, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Folder{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "name is required", nil)
	}

	if input.ParentID != nil && strings.TrimSpace(*input.ParentID) != "" {
		if _, err := s.store.GetFolder(ctx, *input.ParentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.Folder{}, domainError(http.StatusNotFound, "NOT_FOUND", "parent folder not found", nil)
			}
			return store.Folder{}, err
		}
	} else {
		input.ParentID = nil
	}

	folder, err := s.store.InsertFolder(ctx, store.Folder{
		ID:       util.NewID("fld"),
		Name:     name,
		ParentID: input.ParentID,
		IsPublic: input.IsPublic,
		UserID:   session.UserID,
	})
	if err != nil {
		return store.Folder{}, err
	}

	s.search.IndexFolder(folder)
	return folder, nil
}

// ListNotes returns a folder's notes. The folder owner sees everything;
// anyone else sees only public notes. Ownership is re-evaluated on every
// call, never cached on the session.
func (s *Service) ListNotes(ctx context.Context, session Session, folderID string) ([]store.Note, error) {
	folder, err := s.store.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	includePrivate := folder.UserID == session.UserID
	return s.store.ListNotes(ctx, folderID, includePrivate)
}

func (s *Service) CreateNote(ctx context.Context, session Session, input CreateNoteInput) (store.Note, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Note{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title is required", nil)
	}
	if strings.TrimSpace(input.FolderID) == "" {
		return store.Note{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "folder_id is required", nil)
	}

	folder, err := s.store.GetFolder(ctx, input.FolderID)
	if err != nil {
		return store.Note{}, err
	}
	if folder.UserID != session.UserID {
		// Writing into someone else's folder looks the same as a missing one.
		return store.Note{}, sql.ErrNoRows
	}

	return s.store.InsertNote(ctx, store.Note{
		ID:       util.NewID("note"),
		FolderID: folder.ID,
		UserID:   session.UserID,
		Title:    title,
		Content:  input.Content,
		FileURL:  input.FileURL,
		IsPublic: input.IsPublic,
	})
}

// GetNote enforces note visibility: the viewer must own the note, or the
// note must be public, or the viewer must own the containing folder.
// Denied and nonexistent are indistinguishable.
func (s *Service) GetNote(ctx context.Context, session Session, noteID string) (store.Note, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	visible, err := s.noteVisible(ctx, session, note)
	if err != nil {
		return store.Note{}, err
	}
	if !visible {
		return store.Note{}, sql.ErrNoRows
	}
	return note, nil
}

func (s *Service) noteVisible(ctx context.Context, session Session, note store.Note) (bool, error) {
	if note.UserID == session.UserID || note.IsPublic {
		return true, nil
	}
	folder, err := s.store.GetFolder(ctx, note.FolderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return folder.UserID == session.UserID, nil
}

// UpdateNote mutates title and content only. Visibility and ownership are
// fixed at creation.
func (s *Service) UpdateNote(ctx context.Context, session Session, noteID string, input UpdateNoteInput) (store.Note, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	if note.UserID != session.UserID {
		return store.Note{}, sql.ErrNoRows
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Note{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title is required", nil)
	}

	if err := s.store.UpdateNoteContent(ctx, noteID, title, input.Content); err != nil {
		return store.Note{}, err
	}
	return s.store.GetNote(ctx, noteID)
}

// AttachFile uploads a file for a note and persists its URL. A public
// folder yields a permanent public URL; a private folder yields a signed
// URL that expires after the configured TTL and is never refreshed.
// The object write and the database write are not transactional: a
// failure between them leaves an orphaned blob for storage cleanup.
func (s *Service) AttachFile(ctx context.Context, session Session, noteID, filename, contentType string, r io.Reader, size int64) (store.Note, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if err != nil {
		return store.Note{}, err
	}
	if note.UserID != session.UserID {
		return store.Note{}, sql.ErrNoRows
	}
	folder, err := s.store.GetFolder(ctx, note.FolderID)
	if err != nil {
		return store.Note{}, err
	}

	if contentType == "" {
		contentType = "application/pdf"
	}

	path := storage.ObjectPath(folder.IsPublic, note.UserID, note.ID, filename, time.Now())
	if err := s.objects.Upload(ctx, path, r, size, contentType); err != nil {
		return store.Note{}, domainError(http.StatusInternalServerError, "UPSTREAM_ERROR", "file upload failed", nil)
	}

	var fileURL string
	if folder.IsPublic {
		fileURL = s.objects.PublicURL(path)
	} else {
		fileURL, err = s.objects.SignedURL(ctx, path, s.cfg.SignedURLTTL)
		if err != nil {
			return store.Note{}, domainError(http.StatusInternalServerError, "UPSTREAM_ERROR", "could not sign file URL", nil)
		}
	}

	if err := s.store.SetNoteFileURL(ctx, noteID, fileURL); err != nil {
		return store.Note{}, err
	}
	note.FileURL = fileURL
	return note, nil
}

// Ask proxies a question to the AI backend. One attempt, no retry, no
// conversation state.
func (s *Service) Ask(ctx context.Context, prompt, fileURL string) (string, error) {
	if strings.TrimSpace(prompt) == "" && strings.TrimSpace(fileURL) == "" {
		return "", domainError(http.StatusBadRequest, "VALIDATION_ERROR", "prompt or fileUrl is required", nil)
	}
	if s.ai == nil {
		return "", domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI backend not configured", nil)
	}
	text, err := s.ai.Answer(ctx, prompt, fileURL)
	if err != nil {
		if errors.Is(err, ai.ErrEmptyRequest) {
			return "", domainError(http.StatusBadRequest, "VALIDATION_ERROR", "prompt or fileUrl is required", nil)
		}
		log.Printf("ai: generate failed: %v", err)
		return "", domainError(http.StatusInternalServerError, "UPSTREAM_ERROR", "AI request failed", nil)
	}
	return text, nil
}

// ExportNotePDF renders a visible note as a downloadable PDF.
func (s *Service) ExportNotePDF(ctx context.Context, session Session, noteID string) (*export.Result, error) {
	note, err := s.GetNote(ctx, session, noteID)
	if err != nil {
		return nil, err
	}
	folder, err := s.store.GetFolder(ctx, note.FolderID)
	if err != nil {
		return nil, err
	}

	author := session.UserName
	if note.UserID != session.UserID {
		if owner, err := s.store.GetUserByID(ctx, note.UserID); err == nil {
			author = owner.DisplayName
		}
	}

	return s.exporter.ExportNotePDF(export.Note{
		ID:         note.ID,
		Title:      note.Title,
		Content:    note.Content,
		FolderName: folder.Name,
		Author:     author,
		CreatedAt:  note.CreatedAt,
		FileURL:    note.FileURL,
	})
}
