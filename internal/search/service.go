package search

import (
	"context"
	"log"
	"time"

	"clarity/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to a
// Postgres ILIKE scan. The fallback is the source of truth for matching
// semantics; Meilisearch adds typo tolerance and relevance when available.
type Service struct {
	meili  *Meili
	pglike *PgLike
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, pglike *PgLike) *Service {
	return &Service{meili: meili, pglike: pglike}
}

// SearchFolders returns folders matching the query, newest first.
func (s *Service) SearchFolders(ctx context.Context, q Query) ([]store.Folder, error) {
	if s.meili != nil && s.meili.Healthy() {
		records, err := s.meili.Search(q)
		if err == nil {
			return recordsToFolders(records), nil
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	return s.pglike.Search(ctx, q)
}

// IndexFolder pushes one folder to Meilisearch (fire-and-forget).
func (s *Service) IndexFolder(f store.Folder) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := folderToRecord(f)
	go func() {
		if err := s.meili.IndexFolder(record); err != nil {
			log.Printf("search: index folder %s: %v", record.ID, err)
		}
	}()
}

// ReindexAllFromPG reads every folder from Postgres and pushes the lot to
// Meilisearch. Called at startup when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pglike == nil {
		return
	}
	folders, err := s.pglike.store.ListAllFolders(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	records := make([]FolderRecord, 0, len(folders))
	for _, f := range folders {
		records = append(records, folderToRecord(f))
	}
	if err := s.meili.IndexFolders(records); err != nil {
		log.Printf("search: reindex folders: %v", err)
	}
}

func folderToRecord(f store.Folder) FolderRecord {
	r := FolderRecord{
		ID:        f.ID,
		Name:      f.Name,
		IsPublic:  f.IsPublic,
		UserID:    f.UserID,
		CreatedAt: f.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if f.ParentID != nil {
		r.ParentID = *f.ParentID
	}
	return r
}

func recordsToFolders(records []FolderRecord) []store.Folder {
	folders := make([]store.Folder, 0, len(records))
	for _, r := range records {
		f := store.Folder{
			ID:       r.ID,
			Name:     r.Name,
			IsPublic: r.IsPublic,
			UserID:   r.UserID,
		}
		if r.ParentID != "" {
			parentID := r.ParentID
			f.ParentID = &parentID
		}
		if ts, err := time.Parse(time.RFC3339Nano, r.CreatedAt); err == nil {
			f.CreatedAt = ts
		}
		folders = append(folders, f)
	}
	return folders
}
