package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Users

const userColumns = `id, display_name, email, password_hash, is_email_verified, created_at, updated_at`

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.Email,
		&user.PasswordHash,
		&user.IsEmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	return s.scanUser(row)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email)
	return s.scanUser(row)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return errors.New("invalid or expired verification token")
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Refresh sessions and token revocation

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---------------------------------------------------------------------------
// Folders

const folderColumns = `id, name, parent_id, is_public, user_id, created_at`

func scanFolders(rows *sql.Rows) ([]Folder, error) {
	items := make([]Folder, 0)
	for rows.Next() {
		var item Folder
		if err := rows.Scan(&item.ID, &item.Name, &item.ParentID, &item.IsPublic, &item.UserID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return items, nil
}

// ListFolders executes a FolderQuery. All listings order newest first so
// repeated calls with no intervening writes return a stable sequence.
func (s *PostgresStore) ListFolders(ctx context.Context, q FolderQuery) ([]Folder, error) {
	where := ""
	args := []any{}
	switch q.Scope {
	case ScopeOwner:
		args = append(args, q.OwnerID)
		where = fmt.Sprintf("user_id = $%d", len(args))
		if q.RootOnly {
			where += " AND parent_id IS NULL"
		}
	case ScopePublic:
		where = "is_public = TRUE"
	default:
		return nil, fmt.Errorf("unknown folder scope %d", q.Scope)
	}
	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		where += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+folderColumns+`
		FROM folders
		WHERE `+where+`
		ORDER BY created_at DESC, id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()
	return scanFolders(rows)
}

// ListChildFolders returns the children of parentID visible to viewerID:
// the viewer's own folders plus anyone's public folders.
func (s *PostgresStore) ListChildFolders(ctx context.Context, parentID, viewerID string) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+folderColumns+`
		FROM folders
		WHERE parent_id = $1 AND (user_id = $2 OR is_public = TRUE)
		ORDER BY created_at DESC, id DESC
	`, parentID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list child folders: %w", err)
	}
	defer rows.Close()
	return scanFolders(rows)
}

func (s *PostgresStore) GetFolder(ctx context.Context, folderID string) (Folder, error) {
	var item Folder
	err := s.db.QueryRowContext(ctx, `
		SELECT `+folderColumns+` FROM folders WHERE id=$1
	`, folderID).Scan(&item.ID, &item.Name, &item.ParentID, &item.IsPublic, &item.UserID, &item.CreatedAt)
	if err != nil {
		return Folder{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertFolder(ctx context.Context, item Folder) (Folder, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO folders (id, name, parent_id, is_public, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, item.ID, item.Name, item.ParentID, item.IsPublic, item.UserID).Scan(&item.CreatedAt)
	if err != nil {
		return Folder{}, fmt.Errorf("insert folder: %w", err)
	}
	return item, nil
}

// ListAllFolders feeds the search reindex pass.
func (s *PostgresStore) ListAllFolders(ctx context.Context) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+folderColumns+` FROM folders ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list all folders: %w", err)
	}
	defer rows.Close()
	return scanFolders(rows)
}

// ---------------------------------------------------------------------------
// Notes

const noteColumns = `id, folder_id, user_id, title, COALESCE(content, ''), COALESCE(file_url, ''), is_public, created_at`

func scanNotes(rows *sql.Rows) ([]Note, error) {
	items := make([]Note, 0)
	for rows.Next() {
		var item Note
		if err := rows.Scan(&item.ID, &item.FolderID, &item.UserID, &item.Title, &item.Content, &item.FileURL, &item.IsPublic, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

// ListNotes returns a folder's notes newest first. When includePrivate is
// false only public notes come back; the caller decides based on folder
// ownership, re-evaluated on every request.
func (s *PostgresStore) ListNotes(ctx context.Context, folderID string, includePrivate bool) ([]Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE folder_id = $1`
	if !includePrivate {
		query += ` AND is_public = TRUE`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, folderID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

func (s *PostgresStore) GetNote(ctx context.Context, noteID string) (Note, error) {
	var item Note
	err := s.db.QueryRowContext(ctx, `
		SELECT `+noteColumns+` FROM notes WHERE id=$1
	`, noteID).Scan(&item.ID, &item.FolderID, &item.UserID, &item.Title, &item.Content, &item.FileURL, &item.IsPublic, &item.CreatedAt)
	if err != nil {
		return Note{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertNote(ctx context.Context, item Note) (Note, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notes (id, folder_id, user_id, title, content, file_url, is_public)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
		RETURNING created_at
	`, item.ID, item.FolderID, item.UserID, item.Title, item.Content, item.FileURL, item.IsPublic).Scan(&item.CreatedAt)
	if err != nil {
		return Note{}, fmt.Errorf("insert note: %w", err)
	}
	return item, nil
}

// UpdateNoteContent mutates title and content in place. Visibility and
// ownership never change here; last write wins.
func (s *PostgresStore) UpdateNoteContent(ctx context.Context, noteID, title, content string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notes SET title=$2, content=NULLIF($3, '') WHERE id=$1
	`, noteID, title, content)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	return nil
}

// SetNoteFileURL persists the attachment reference, written only after the
// upload and URL resolution both succeeded.
func (s *PostgresStore) SetNoteFileURL(ctx context.Context, noteID, fileURL string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notes SET file_url=$2 WHERE id=$1`, noteID, fileURL)
	if err != nil {
		return fmt.Errorf("set note file url: %w", err)
	}
	return nil
}
