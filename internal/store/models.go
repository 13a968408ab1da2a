package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Folder is a named container owned by one user. ParentID nil means the
// folder sits at the root of the owner's tree.
type Folder struct {
	ID        string
	Name      string
	ParentID  *string
	IsPublic  bool
	UserID    string
	CreatedAt time.Time
}

// Note is a titled unit of content inside a folder. Content and FileURL
// are both optional; FileURL is a capability URL into object storage.
type Note struct {
	ID        string
	FolderID  string
	UserID    string
	Title     string
	Content   string
	FileURL   string
	IsPublic  bool
	CreatedAt time.Time
}

// FolderScope selects whose folders a listing returns.
type FolderScope int

const (
	// ScopeOwner lists folders owned by a specific user.
	ScopeOwner FolderScope = iota
	// ScopePublic lists folders readable by anyone.
	ScopePublic
)

// FolderQuery is the explicit listing specification consumed by
// PostgresStore.ListFolders. With ScopeOwner and no search term the
// listing is restricted to root folders; a search term widens it to
// every depth (search escapes the root-only restriction).
type FolderQuery struct {
	Scope    FolderScope
	OwnerID  string
	RootOnly bool
	Search   string
}
