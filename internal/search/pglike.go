package search

import (
	"context"
	"fmt"

	"clarity/api/internal/store"
)

// FolderLister is the slice of the data store the fallback needs.
type FolderLister interface {
	ListFolders(ctx context.Context, q store.FolderQuery) ([]store.Folder, error)
	ListAllFolders(ctx context.Context) ([]store.Folder, error)
}

// PgLike answers folder searches straight from Postgres with a
// case-insensitive substring match. Always available: if Postgres is
// down, the whole app is down.
type PgLike struct {
	store FolderLister
}

func NewPgLike(s FolderLister) *PgLike {
	return &PgLike{store: s}
}

func (p *PgLike) Healthy() bool {
	return true
}

// Search converts the query to a store listing. Owner scope searches every
// depth of the owner's tree; public scope searches all public folders.
func (p *PgLike) Search(ctx context.Context, q Query) ([]store.Folder, error) {
	fq := store.FolderQuery{Search: q.Text}
	switch q.Scope {
	case ScopeOwner:
		fq.Scope = store.ScopeOwner
		fq.OwnerID = q.OwnerID
	case ScopePublic:
		fq.Scope = store.ScopePublic
	default:
		return nil, fmt.Errorf("unknown search scope %q", q.Scope)
	}

	folders, err := p.store.ListFolders(ctx, fq)
	if err != nil {
		return nil, fmt.Errorf("folder search fallback: %w", err)
	}
	return folders, nil
}
