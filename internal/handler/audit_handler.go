package handler

import (
	"net/http"

	"stockledger/internal/middleware"
	"stockledger/internal/model"
	"stockledger/internal/service"
	"stockledger/pkg/pagination"
	"stockledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type AuditHandler struct {
	auditService *service.AuditService
	log          *logrus.Logger
}

func NewAuditHandler(auditService *service.AuditService, log *logrus.Logger) *AuditHandler {
	return &AuditHandler{auditService: auditService, log: log}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(middleware.RequireRole(model.RoleSuperAdmin))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs lists audit entries, newest first
// @Summary      Get audit logs
// @Description  Every stock and voucher mutation with the acting user
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=[]service.AuditLogResponse}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, h.log, "GetAuditLogs", err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(http.StatusOK, logs, p.Meta(total)))
}
