package search

// FolderRecord is the data we index for a folder. CreatedAt rides along as
// RFC3339 so listings built from search hits keep their timestamps.
type FolderRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ParentID  string `json:"parentId,omitempty"`
	IsPublic  bool   `json:"isPublic"`
	UserID    string `json:"userId"`
	CreatedAt string `json:"createdAt"`
}

// Scope limits a search to one visibility slice.
type Scope string

const (
	// ScopeOwner matches folders owned by Query.OwnerID, any depth.
	ScopeOwner Scope = "owner"
	// ScopePublic matches public folders regardless of owner.
	ScopePublic Scope = "public"
)

// Query describes a folder-name search.
type Query struct {
	Text    string
	Scope   Scope
	OwnerID string
	Limit   int
}
