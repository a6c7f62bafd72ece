package routes

import (
	"github.com/gin-gonic/gin"

	"playforge/controllers"
)

func RegisterDocsRoutes(public, admin *gin.RouterGroup, docsController *controllers.DocsController) {
	docs := public.Group("/docs")
	{
		docs.GET("/tree", docsController.GetTree)      // GET /docs/tree
		docs.GET("/search", docsController.Search)     // GET /docs/search?q=
		docs.GET("/pages/:id", docsController.GetPage) // GET /docs/pages/:id (rendered)
	}

	folders := admin.Group("/folders")
	{
		folders.POST("", docsController.CreateFolder)       // POST /admin/folders
		folders.PATCH("/:id", docsController.RenameFolder)  // PATCH /admin/folders/:id
		folders.DELETE("/:id", docsController.DeleteFolder) // DELETE /admin/folders/:id (pages cascade)
	}

	pages := admin.Group("/pages")
	{
		pages.POST("", docsController.CreatePage)       // POST /admin/pages
		pages.PUT("/:id", docsController.UpdatePage)    // PUT /admin/pages/:id
		pages.DELETE("/:id", docsController.DeletePage) // DELETE /admin/pages/:id
	}
}
