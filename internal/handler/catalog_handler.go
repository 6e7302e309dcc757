package handler

import (
	"context"
	"net/http"

	"stockledger/internal/middleware"
	"stockledger/internal/model"
	"stockledger/internal/service"
	"stockledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type CatalogHandler struct {
	catalog *service.CatalogService
	log     *logrus.Logger
}

func NewCatalogHandler(catalog *service.CatalogService, log *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, log: log}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api")
	{
		api.POST("/products", bindAndCreate(h, "CreateProduct", h.catalog.CreateProduct))
		api.POST("/branches", bindAndCreate(h, "CreateBranch", h.catalog.CreateBranch))
		api.POST("/partners", bindAndCreate(h, "CreatePartner", h.catalog.CreatePartner))
		api.POST("/users", bindAndCreate(h, "CreateUser", h.catalog.CreateUser))
		api.POST("/branch-permissions", bindAndCreate(h, "GrantBranchAccess", h.catalog.GrantBranchAccess))
	}
}

// bindAndCreate binds a JSON body of type Req and answers 201 with the created entity
//
// @Summary      Create catalog entry
// @Description  Products, branches, partners, users and branch grants. Super admin only.
// @Tags         catalog
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Success      201  {object}  response.Response{data=object}
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /api/products [post]
// @Router       /api/branches [post]
// @Router       /api/partners [post]
// @Router       /api/users [post]
// @Router       /api/branch-permissions [post]
func bindAndCreate[Req any, Out any](h *CatalogHandler, funcName string, create func(ctx context.Context, actor model.Actor, req Req) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Req
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request payload: "+err.Error())
			return
		}
		out, err := create(c.Request.Context(), middleware.Actor(c), req)
		if err != nil {
			respondError(c, h.log, funcName, err)
			return
		}
		c.JSON(http.StatusCreated, response.Success(http.StatusCreated, out))
	}
}
