package handler

import (
	"net/http"
	"time"

	"stockledger/internal/middleware"
	"stockledger/internal/service"
	"stockledger/pkg/pagination"
	"stockledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type StockHandler struct {
	ledger   *service.StockLedger
	recorder *service.MovementRecorder
	log      *logrus.Logger
}

func NewStockHandler(ledger *service.StockLedger, recorder *service.MovementRecorder, log *logrus.Logger) *StockHandler {
	return &StockHandler{ledger: ledger, recorder: recorder, log: log}
}

func (h *StockHandler) RegisterRoutes(router *gin.RouterGroup) {
	stock := router.Group("/api/stock")
	{
		stock.GET("", h.GetCurrentStock)
		stock.POST("/add", h.AddStock)
		stock.POST("/count", h.CountStock)
		stock.GET("/reconcile", h.Reconcile)
	}
	router.GET("/api/branches/:id/stock", h.ListBranchStock)
	router.GET("/api/products/:id/movements", h.GetHistory)
}

// uuidQuery parses a required uuid query parameter, answering 400 when it is malformed
func uuidQuery(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Query(name))
	if err != nil {
		badRequest(c, "Invalid or missing "+name)
		return uuid.Nil, false
	}
	return id, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// GetCurrentStock returns one balance
// @Summary      Get current stock
// @Description  Returns the quantity of a product at a branch, zero when nothing has moved yet
// @Tags         stock
// @Security     BearerAuth
// @Produce      json
// @Param        product_id  query     string  true  "Product ID"
// @Param        branch_id   query     string  true  "Branch ID"
// @Success      200  {object}  response.Response{data=object}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/stock [get]
func (h *StockHandler) GetCurrentStock(c *gin.Context) {
	productID, ok := uuidQuery(c, "product_id")
	if !ok {
		return
	}
	branchID, ok := uuidQuery(c, "branch_id")
	if !ok {
		return
	}

	qty, err := h.ledger.CurrentStock(c.Request.Context(), productID, branchID)
	if err != nil {
		respondError(c, h.log, "GetCurrentStock", err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{
		"product_id":    productID,
		"branch_id":     branchID,
		"current_stock": qty,
	}))
}

// ListBranchStock pages through the balances of a branch
// @Summary      List branch stock
// @Tags         stock
// @Security     BearerAuth
// @Produce      json
// @Param        id     path      string  true   "Branch ID"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Number of items per page (default 20)"
// @Success      200  {object}  response.Response{data=[]model.StockBalance}
// @Failure      404  {object}  response.Response
// @Router       /api/branches/{id}/stock [get]
func (h *StockHandler) ListBranchStock(c *gin.Context) {
	branchID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p := pagination.Parse(c)

	balances, total, err := h.ledger.ListBalances(c.Request.Context(), branchID, p.Page, p.Limit)
	if err != nil {
		respondError(c, h.log, "ListBranchStock", err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(http.StatusOK, balances, p.Meta(total)))
}

// AddStock books an ADD movement
// @Summary      Add stock
// @Description  Increases a balance, e.g. for opening stock
// @Tags         stock
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.AddStockRequest  true  "Add Stock Payload"
// @Success      201      {object}  response.Response{data=model.Movement}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/stock/add [post]
func (h *StockHandler) AddStock(c *gin.Context) {
	var req service.AddStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	movement, err := h.ledger.AddStock(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		respondError(c, h.log, "AddStock", err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, movement))
}

// CountStock records a physical count
// @Summary      Count stock
// @Description  Sets each listed balance to the counted quantity through COUNT_ADJUSTMENT movements
// @Tags         stock
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CountStockRequest  true  "Count Payload"
// @Success      200      {object}  response.Response{data=service.CountResult}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/stock/count [post]
func (h *StockHandler) CountStock(c *gin.Context) {
	var req service.CountStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	result, err := h.ledger.CountStock(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		respondError(c, h.log, "CountStock", err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Reconcile compares a balance with its movement history
// @Summary      Reconcile balance
// @Tags         stock
// @Security     BearerAuth
// @Produce      json
// @Param        product_id  query     string  true  "Product ID"
// @Param        branch_id   query     string  true  "Branch ID"
// @Success      200  {object}  response.Response{data=service.ReconcileResult}
// @Router       /api/stock/reconcile [get]
func (h *StockHandler) Reconcile(c *gin.Context) {
	productID, ok := uuidQuery(c, "product_id")
	if !ok {
		return
	}
	branchID, ok := uuidQuery(c, "branch_id")
	if !ok {
		return
	}

	result, err := h.ledger.Reconcile(c.Request.Context(), productID, branchID)
	if err != nil {
		respondError(c, h.log, "Reconcile", err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// GetHistory returns movements of a product in (occurred_at, id) order
// @Summary      Movement history
// @Description  Keyset paginated; pass next_cursor back as cursor to continue
// @Tags         stock
// @Security     BearerAuth
// @Produce      json
// @Param        id         path      string  true   "Product ID"
// @Param        branch_id  query     string  false  "Branch ID"
// @Param        from       query     string  false  "RFC3339, inclusive"
// @Param        to         query     string  false  "RFC3339, exclusive"
// @Param        cursor     query     string  false  "Cursor from the previous page"
// @Param        limit      query     int     false  "Page size (default 100, max 1000)"
// @Success      200  {object}  response.Response{data=[]model.Movement}
// @Failure      400  {object}  response.Response
// @Router       /api/products/{id}/movements [get]
func (h *StockHandler) GetHistory(c *gin.Context) {
	productID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	cursor, limit := pagination.ParseCursor(c)
	q := service.HistoryQuery{ProductID: productID, Cursor: cursor, Limit: limit}

	if raw := c.Query("branch_id"); raw != "" {
		branchID, ok := uuidQuery(c, "branch_id")
		if !ok {
			return
		}
		q.BranchID = &branchID
	}
	for name, dst := range map[string]**time.Time{"from": &q.From, "to": &q.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "Invalid "+name+", expected RFC3339")
			return
		}
		*dst = &ts
	}

	page, err := h.recorder.History(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.log, "GetHistory", err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(http.StatusOK, page.Movements, pagination.CursorMeta(limit, page.NextCursor)))
}
