package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html/template"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"playforge/gateway"
	"playforge/models"
	"playforge/utils"
)

// ContentService manages the documentation tree: ordered folders holding
// ordered markdown pages.
type ContentService struct {
	gw          gateway.Gateway
	renderCache *lru.Cache[string, template.HTML]
}

// RenderedPage is a page with its content converted to sanitized HTML.
type RenderedPage struct {
	models.Page
	HTML template.HTML `json:"html"`
}

func NewContentService(gw gateway.Gateway, renderCacheSize int) (*ContentService, error) {
	if renderCacheSize <= 0 {
		renderCacheSize = 256
	}
	cache, err := lru.New[string, template.HTML](renderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create render cache: %w", err)
	}
	return &ContentService{gw: gw, renderCache: cache}, nil
}

func (s *ContentService) ListFolders(ctx context.Context) ([]models.Folder, error) {
	rows, err := s.gw.List(ctx, models.TableFolders,
		gateway.Filter{"is_deleted": false},
		gateway.Asc("order_index"), gateway.Asc("created_at"),
	)
	if err != nil {
		return nil, err
	}
	return gateway.DecodeAll[models.Folder](rows)
}

func (s *ContentService) ListPagesByFolder(ctx context.Context, folderID string) ([]models.Page, error) {
	rows, err := s.gw.List(ctx, models.TablePages,
		gateway.Filter{"folder_id": folderID, "is_deleted": false},
		gateway.Asc("order_index"), gateway.Asc("created_at"),
	)
	if err != nil {
		return nil, err
	}
	return gateway.DecodeAll[models.Page](rows)
}

// CreateFolder appends a folder at the end of the tree. The order index is
// the number of visible folders at the time of the call.
func (s *ContentService) CreateFolder(ctx context.Context, name string) (*models.Folder, error) {
	name = strings.TrimSpace(name)
	if err := utils.ValidateName("folder name", name); err != nil {
		return nil, invalid("name", err)
	}

	existing, err := s.ListFolders(ctx)
	if err != nil {
		return nil, err
	}

	row, err := s.gw.Insert(ctx, models.TableFolders, gateway.Row{
		"name":        name,
		"order_index": len(existing),
		"is_deleted":  false,
	})
	if err != nil {
		return nil, err
	}

	var folder models.Folder
	if err := gateway.Decode(row, &folder); err != nil {
		return nil, err
	}
	utils.LogInfo(fmt.Sprintf("Created folder %q (%s) at index %d", folder.Name, folder.ID, folder.OrderIndex))
	return &folder, nil
}

func (s *ContentService) RenameFolder(ctx context.Context, id, name string) (*models.Folder, error) {
	name = strings.TrimSpace(name)
	if err := utils.ValidateName("folder name", name); err != nil {
		return nil, invalid("name", err)
	}

	row, err := s.gw.Update(ctx, models.TableFolders, id, gateway.Row{"name": name})
	if err != nil {
		return nil, err
	}

	var folder models.Folder
	if err := gateway.Decode(row, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// DeleteFolder removes the folder and, through the cascade, all its pages.
func (s *ContentService) DeleteFolder(ctx context.Context, id string) error {
	if err := s.gw.Delete(ctx, models.TableFolders, id); err != nil {
		return err
	}
	utils.LogInfo(fmt.Sprintf("Deleted folder %s", id))
	return nil
}

func (s *ContentService) CreatePage(ctx context.Context, folderID, title, content string) (*models.Page, error) {
	folderID = strings.TrimSpace(folderID)
	if folderID == "" {
		return nil, &ValidationError{Field: "folder_id", Message: "folder is required"}
	}
	title = strings.TrimSpace(title)
	if err := utils.ValidateName("page title", title); err != nil {
		return nil, invalid("title", err)
	}

	existing, err := s.ListPagesByFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}

	row, err := s.gw.Insert(ctx, models.TablePages, gateway.Row{
		"folder_id":   folderID,
		"title":       title,
		"content":     content,
		"order_index": len(existing),
		"is_deleted":  false,
	})
	if err != nil {
		return nil, err
	}

	var page models.Page
	if err := gateway.Decode(row, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UpdatePage replaces both title and content.
func (s *ContentService) UpdatePage(ctx context.Context, id, title, content string) (*models.Page, error) {
	title = strings.TrimSpace(title)
	if err := utils.ValidateName("page title", title); err != nil {
		return nil, invalid("title", err)
	}

	row, err := s.gw.Update(ctx, models.TablePages, id, gateway.Row{
		"title":   title,
		"content": content,
	})
	if err != nil {
		return nil, err
	}

	var page models.Page
	if err := gateway.Decode(row, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *ContentService) DeletePage(ctx context.Context, id string) error {
	return s.gw.Delete(ctx, models.TablePages, id)
}

// GetPage hides pages flagged as deleted, like the list queries do.
func (s *ContentService) GetPage(ctx context.Context, id string) (*models.Page, error) {
	row, err := s.gw.Get(ctx, models.TablePages, id)
	if err != nil {
		return nil, err
	}

	var page models.Page
	if err := gateway.Decode(row, &page); err != nil {
		return nil, err
	}
	if page.IsDeleted {
		return nil, &gateway.RemoteError{Op: "get", Table: models.TablePages, Message: id + " not found", Err: gateway.ErrNotFound}
	}
	return &page, nil
}

// RenderPage returns the page with its markdown rendered. Output is cached
// by content digest, so edits are picked up immediately.
func (s *ContentService) RenderPage(ctx context.Context, id string) (*RenderedPage, error) {
	page, err := s.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(page.Content))
	key := hex.EncodeToString(sum[:])
	if html, ok := s.renderCache.Get(key); ok {
		return &RenderedPage{Page: *page, HTML: html}, nil
	}

	html, err := utils.RenderMarkdown(page.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %s: %w", page.ID, err)
	}
	s.renderCache.Add(key, html)
	return &RenderedPage{Page: *page, HTML: html}, nil
}
