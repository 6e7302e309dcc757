package handler

import (
	"net/http"

	"stockledger/internal/middleware"
	"stockledger/internal/service"
	"stockledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type TransferHandler struct {
	transfers *service.TransferCoordinator
	log       *logrus.Logger
}

func NewTransferHandler(transfers *service.TransferCoordinator, log *logrus.Logger) *TransferHandler {
	return &TransferHandler{transfers: transfers, log: log}
}

func (h *TransferHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/transfers")
	{
		group.POST("", h.CreateTransfer)
		group.GET("/:id", h.GetTransfer)
	}
}

// CreateTransfer moves stock between two branches atomically
// @Summary      Transfer stock
// @Description  Decrements the source branch and increments the target in one transaction
// @Tags         transfers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.TransferRequest  true  "Transfer Payload"
// @Success      201      {object}  response.Response{data=service.TransferResult}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/transfers [post]
func (h *TransferHandler) CreateTransfer(c *gin.Context) {
	var req service.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	result, err := h.transfers.Transfer(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		respondError(c, h.log, "CreateTransfer", err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// GetTransfer loads a transfer document
// @Summary      Get transfer
// @Tags         transfers
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Transfer ID"
// @Success      200  {object}  response.Response{data=model.StockTransfer}
// @Failure      404  {object}  response.Response
// @Router       /api/transfers/{id} [get]
func (h *TransferHandler) GetTransfer(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	transfer, err := h.transfers.GetTransfer(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, "GetTransfer", err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, transfer))
}
