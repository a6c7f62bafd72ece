package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"playforge/gateway"
	"playforge/mirror"
	"playforge/models"
	"playforge/utils"
)

// DocsTree mirrors every visible folder with its pages and keeps the copy
// current by watching both tables.
type DocsTree struct {
	content *ContentService
	store   *mirror.Store[[]models.FolderWithPages]
}

type DocsSearchHit struct {
	Kind     string `json:"kind"`
	ID       string `json:"id"`
	FolderID string `json:"folder_id"`
	Title    string `json:"title"`
	Path     string `json:"path"`
	Score    int    `json:"score"`
}

func NewDocsTree(content *ContentService, refreshTimeout time.Duration) *DocsTree {
	t := &DocsTree{content: content}
	t.store = mirror.New("docs_tree", t.load, mirror.WithTimeout(refreshTimeout))
	return t
}

// load fetches folders, then each folder's pages. Any failure fails the
// whole refresh.
func (t *DocsTree) load(ctx context.Context) ([]models.FolderWithPages, error) {
	folders, err := t.content.ListFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}

	tree := make([]models.FolderWithPages, 0, len(folders))
	for _, folder := range folders {
		pages, err := t.content.ListPagesByFolder(ctx, folder.ID)
		if err != nil {
			return nil, fmt.Errorf("list pages of %s: %w", folder.ID, err)
		}
		if pages == nil {
			pages = []models.Page{}
		}
		tree = append(tree, models.FolderWithPages{Folder: folder, Pages: pages})
	}
	return tree, nil
}

// Start subscribes to folder and page changes and performs the first load.
// A failed first load is logged; the next change or request retries it.
func (t *DocsTree) Start(ctx context.Context, sub gateway.Subscriber) error {
	for _, table := range []string{models.TableFolders, models.TablePages} {
		if err := t.store.Watch(ctx, sub, table, nil); err != nil {
			t.store.Close()
			return err
		}
	}
	if err := t.store.Refresh(ctx); err != nil {
		utils.LogError("Initial docs tree load failed", err)
	}
	return nil
}

func (t *DocsTree) Tree(ctx context.Context) ([]models.FolderWithPages, mirror.State, error) {
	return t.store.Get(ctx)
}

func (t *DocsTree) Refresh(ctx context.Context) error {
	return t.store.Refresh(ctx)
}

// OnChange forwards every applied snapshot to fn.
func (t *DocsTree) OnChange(fn func([]models.FolderWithPages)) func() {
	return t.store.OnChange(fn)
}

// Search fuzzy-matches folder names and page titles in the mirrored tree.
func (t *DocsTree) Search(ctx context.Context, query string, limit int) ([]DocsSearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ValidationError{Field: "q", Message: "search query cannot be empty"}
	}

	tree, _, err := t.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	var entries []DocsSearchHit
	var sources []string
	for _, node := range tree {
		entries = append(entries, DocsSearchHit{
			Kind:     "folder",
			ID:       node.Folder.ID,
			FolderID: node.Folder.ID,
			Title:    node.Folder.Name,
			Path:     node.Folder.Name,
		})
		sources = append(sources, node.Folder.Name)
		for _, page := range node.Pages {
			entries = append(entries, DocsSearchHit{
				Kind:     "page",
				ID:       page.ID,
				FolderID: node.Folder.ID,
				Title:    page.Title,
				Path:     node.Folder.Name + " / " + page.Title,
			})
			sources = append(sources, page.Title)
		}
	}

	matches := fuzzy.Find(query, sources)
	hits := make([]DocsSearchHit, 0, len(matches))
	for _, m := range matches {
		hit := entries[m.Index]
		hit.Score = m.Score
		hits = append(hits, hit)
		if limit > 0 && len(hits) == limit {
			break
		}
	}
	return hits, nil
}

func (t *DocsTree) Close() error {
	return t.store.Close()
}
