// README: Order tracking info and status push from order management.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"delitrack/internal/modules/order"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

// Tracking returns what a tracking page shows before live samples arrive.
func (h *OrderHandler) Tracking(c *gin.Context) {
	id := c.Param("id")
	if !isValidKey(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	info, err := h.order.Tracking(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, info)
}

type statusReq struct {
	Status string `json:"status"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id := c.Param("id")
	if !isValidKey(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.order.NotifyStatus(c.Request.Context(), id, order.Status(req.Status)); err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, gin.H{"orderId": id, "status": req.Status})
}
