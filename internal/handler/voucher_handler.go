package handler

import (
	"net/http"

	"stockledger/internal/middleware"
	"stockledger/internal/model"
	"stockledger/internal/service"
	"stockledger/pkg/pagination"
	"stockledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type VoucherHandler struct {
	vouchers *service.VoucherWorkflow
	log      *logrus.Logger
}

func NewVoucherHandler(vouchers *service.VoucherWorkflow, log *logrus.Logger) *VoucherHandler {
	return &VoucherHandler{vouchers: vouchers, log: log}
}

func (h *VoucherHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/api/issue-vouchers", h.createDraft(model.VoucherKindIssue))
	router.POST("/api/return-vouchers", h.createDraft(model.VoucherKindReturn))
	router.POST("/api/purchase-orders", h.createDraft(model.VoucherKindPurchaseOrder))
	router.POST("/api/purchase-orders/:id/receive", h.Receive)
	router.GET("/api/voucher-lines/:id/remaining-returnable", h.RemainingReturnable)

	group := router.Group("/api/vouchers")
	{
		group.GET("", h.ListVouchers)
		group.GET("/:id", h.GetVoucher)
		group.POST("/:id/approve", h.Approve)
		group.POST("/:id/cancel", h.Cancel)
		group.DELETE("/:id", h.DeleteDraft)
	}
}

// createDraft binds the voucher kind to the shared draft handler
// @Summary      Create voucher draft
// @Description  Stores a draft issue voucher, return voucher or purchase order; stock is untouched until approval
// @Tags         vouchers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateVoucherRequest  true  "Voucher Payload"
// @Success      201      {object}  response.Response{data=model.Voucher}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/issue-vouchers [post]
// @Router       /api/return-vouchers [post]
// @Router       /api/purchase-orders [post]
func (h *VoucherHandler) createDraft(kind model.VoucherKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.CreateVoucherRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request payload: "+err.Error())
			return
		}

		voucher, err := h.vouchers.CreateDraft(c.Request.Context(), middleware.Actor(c), kind, req)
		if err != nil {
			respondError(c, h.log, "CreateDraft", err)
			return
		}
		c.JSON(http.StatusCreated, response.Success(http.StatusCreated, voucher))
	}
}

// ListVouchers
// @Summary      List vouchers
// @Tags         vouchers
// @Security     BearerAuth
// @Produce      json
// @Param        kind       query     string  false  "ISSUE, RETURN or PURCHASE_ORDER"
// @Param        status     query     string  false  "DRAFT, APPROVED or CANCELLED"
// @Param        branch_id  query     string  false  "Branch ID"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200  {object}  response.Response{data=[]model.Voucher}
// @Router       /api/vouchers [get]
func (h *VoucherHandler) ListVouchers(c *gin.Context) {
	p := pagination.Parse(c)
	filter := service.VoucherFilter{
		Kind:   model.VoucherKind(c.Query("kind")),
		Status: model.VoucherStatus(c.Query("status")),
		Page:   p.Page,
		Limit:  p.Limit,
	}
	if c.Query("branch_id") != "" {
		branchID, ok := uuidQuery(c, "branch_id")
		if !ok {
			return
		}
		filter.BranchID = &branchID
	}

	vouchers, total, err := h.vouchers.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.log, "ListVouchers", err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(http.StatusOK, vouchers, p.Meta(total)))
}

// GetVoucher
// @Summary      Get voucher
// @Tags         vouchers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Voucher ID"
// @Success      200  {object}  response.Response{data=model.Voucher}
// @Failure      404  {object}  response.Response
// @Router       /api/vouchers/{id} [get]
func (h *VoucherHandler) GetVoucher(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	voucher, err := h.vouchers.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, "GetVoucher", err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, voucher))
}

// Approve applies the voucher's stock effect
// @Summary      Approve voucher
// @Tags         vouchers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Voucher ID"
// @Success      200  {object}  response.Response{data=model.Voucher}
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/vouchers/{id}/approve [post]
func (h *VoucherHandler) Approve(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	voucher, err := h.vouchers.Approve(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		respondError(c, h.log, "Approve", err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, voucher))
}

// Cancel
// @Summary      Cancel voucher draft
// @Tags         vouchers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Voucher ID"
// @Success      200  {object}  response.Response{data=model.Voucher}
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/vouchers/{id}/cancel [post]
func (h *VoucherHandler) Cancel(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	voucher, err := h.vouchers.Cancel(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		respondError(c, h.log, "Cancel", err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, voucher))
}

// DeleteDraft
// @Summary      Delete voucher draft
// @Tags         vouchers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Voucher ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/vouchers/{id} [delete]
func (h *VoucherHandler) DeleteDraft(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.vouchers.DeleteDraft(c.Request.Context(), middleware.Actor(c), id); err != nil {
		respondError(c, h.log, "DeleteDraft", err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Voucher deleted"}))
}

// Receive books a delivery against an approved purchase order
// @Summary      Receive purchase order
// @Tags         vouchers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true  "Purchase order ID"
// @Param        payload  body      service.ReceiveRequest  true  "Receive Payload"
// @Success      201      {object}  response.Response{data=service.ReceiveResult}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/purchase-orders/{id}/receive [post]
func (h *VoucherHandler) Receive(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req service.ReceiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	result, err := h.vouchers.Receive(c.Request.Context(), middleware.Actor(c), id, req)
	if err != nil {
		respondError(c, h.log, "Receive", err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// RemainingReturnable
// @Summary      Remaining returnable quantity
// @Tags         vouchers
// @Security     BearerAuth
// @Produce      json
// @Param        id               path      string  true   "Issue line ID"
// @Param        exclude_line_id  query     string  false  "Return line to leave out"
// @Success      200  {object}  response.Response{data=object}
// @Failure      404  {object}  response.Response
// @Router       /api/voucher-lines/{id}/remaining-returnable [get]
func (h *VoucherHandler) RemainingReturnable(c *gin.Context) {
	lineID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var exclude *uuid.UUID
	if c.Query("exclude_line_id") != "" {
		id, ok := uuidQuery(c, "exclude_line_id")
		if !ok {
			return
		}
		exclude = &id
	}

	remaining, err := h.vouchers.RemainingReturnable(c.Request.Context(), lineID, exclude)
	if err != nil {
		respondError(c, h.log, "RemainingReturnable", err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"issue_line_id": lineID, "remaining": remaining}))
}
