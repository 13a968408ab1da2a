package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxFolders = "clarity_folders"

// Meili searches and indexes folder names via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the folders index.
// The instance may be unhealthy at startup; the health loop will pick it up
// once it becomes reachable.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	// Initial health check
	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxFolders,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxFolders, err)
	}

	index := m.client.Index(idxFolders)
	filterable := []interface{}{"userId", "isPublic"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxFolders, err)
	}
	searchable := []string{"name"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxFolders, err)
	}
	sortable := []string{"createdAt"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		log.Printf("search: update sortable attrs for %s: %v", idxFolders, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the folders index with a scope filter, newest first.
func (m *Meili) Search(q Query) ([]FolderRecord, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 100
	}

	sr := &meili.SearchRequest{
		Limit: limit,
		Sort:  []string{"createdAt:desc"},
	}
	switch q.Scope {
	case ScopeOwner:
		sr.Filter = fmt.Sprintf("userId = %q", q.OwnerID)
	case ScopePublic:
		sr.Filter = "isPublic = true"
	}

	resp, err := m.client.Index(idxFolders).Search(q.Text, sr)
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	records := make([]FolderRecord, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		records = append(records, hitToRecord(hit))
	}
	return records, nil
}

func hitToRecord(hit meili.Hit) FolderRecord {
	var r FolderRecord
	r.ID = decodeString(hit, "id")
	r.Name = decodeString(hit, "name")
	r.ParentID = decodeString(hit, "parentId")
	r.UserID = decodeString(hit, "userId")
	r.CreatedAt = decodeString(hit, "createdAt")
	r.IsPublic = decodeBool(hit, "isPublic")
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeBool(hit meili.Hit, key string) bool {
	raw, ok := hit[key]
	if !ok {
		return false
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	return false
}

// IndexFolder adds or updates one folder in the search index.
func (m *Meili) IndexFolder(f FolderRecord) error {
	_, err := m.client.Index(idxFolders).AddDocuments([]FolderRecord{f}, nil)
	return err
}

// IndexFolders bulk-indexes folders.
func (m *Meili) IndexFolders(folders []FolderRecord) error {
	if len(folders) == 0 {
		return nil
	}
	_, err := m.client.Index(idxFolders).AddDocuments(folders, nil)
	return err
}
