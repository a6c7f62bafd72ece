package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"playforge/services"
	"playforge/utils"
)

type DocsController struct {
	content *services.ContentService
	tree    *services.DocsTree
}

func NewDocsController(content *services.ContentService, tree *services.DocsTree) *DocsController {
	return &DocsController{content: content, tree: tree}
}

// ========== Public ==========

// GetTree serves the mirrored folder tree. A stale flag is set when the last
// refresh failed and the previous snapshot is being served.
func (dc *DocsController) GetTree(c *gin.Context) {
	tree, state, err := dc.tree.Tree(c.Request.Context())
	if err != nil {
		handleError(c, err, "Failed to load documentation")
		return
	}

	utils.SuccessResponse(c, "Documentation tree retrieved successfully", gin.H{
		"folders":      tree,
		"stale":        state.Stale(),
		"refreshed_at": state.RefreshedAt,
	})
}

func (dc *DocsController) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	hits, err := dc.tree.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		handleError(c, err, "Failed to search documentation")
		return
	}
	utils.SuccessResponse(c, "Search completed", hits)
}

func (dc *DocsController) GetPage(c *gin.Context) {
	page, err := dc.content.RenderPage(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err, "Failed to retrieve page")
		return
	}
	utils.SuccessResponse(c, "Page retrieved successfully", page)
}

// ========== Admin ==========

func (dc *DocsController) CreateFolder(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if !bindJSON(c, &req) {
		return
	}

	folder, err := dc.content.CreateFolder(c.Request.Context(), req.Name)
	if err != nil {
		handleError(c, err, "Failed to create folder")
		return
	}
	utils.CreatedResponse(c, "Folder created successfully", folder)
}

func (dc *DocsController) RenameFolder(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if !bindJSON(c, &req) {
		return
	}

	folder, err := dc.content.RenameFolder(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		handleError(c, err, "Failed to rename folder")
		return
	}
	utils.SuccessResponse(c, "Folder renamed successfully", folder)
}

func (dc *DocsController) DeleteFolder(c *gin.Context) {
	if err := dc.content.DeleteFolder(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err, "Failed to delete folder")
		return
	}
	utils.SuccessResponse(c, "Folder deleted successfully", nil)
}

type pageRequest struct {
	FolderID string `json:"folder_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

func (dc *DocsController) CreatePage(c *gin.Context) {
	var req pageRequest
	if !bindJSON(c, &req) {
		return
	}

	page, err := dc.content.CreatePage(c.Request.Context(), req.FolderID, req.Title, req.Content)
	if err != nil {
		handleError(c, err, "Failed to create page")
		return
	}
	utils.CreatedResponse(c, "Page created successfully", page)
}

func (dc *DocsController) UpdatePage(c *gin.Context) {
	var req pageRequest
	if !bindJSON(c, &req) {
		return
	}

	page, err := dc.content.UpdatePage(c.Request.Context(), c.Param("id"), req.Title, req.Content)
	if err != nil {
		handleError(c, err, "Failed to update page")
		return
	}
	utils.SuccessResponse(c, "Page updated successfully", page)
}

func (dc *DocsController) DeletePage(c *gin.Context) {
	if err := dc.content.DeletePage(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err, "Failed to delete page")
		return
	}
	utils.SuccessResponse(c, "Page deleted successfully", nil)
}
