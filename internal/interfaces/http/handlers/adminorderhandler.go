package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paysettle/paysettle/internal/interfaces/dto"
	"github.com/paysettle/paysettle/internal/shared/logger"
	"github.com/paysettle/paysettle/internal/shared/utils"
)

type AdminOrderHandler struct {
	orders orderCanceller
	logger logger.Interface
}

func NewAdminOrderHandler(orders orderCanceller, logger logger.Interface) *AdminOrderHandler {
	return &AdminOrderHandler{orders: orders, logger: logger}
}

// @Summary		Cancel order
// @Description	Administrative cancel. Stops reconciliation and clears the checkout session.
// @Tags			admin
// @Accept			json
// @Produce		json
// @Param			order_no	path		string										true	"Order number"
// @Param			body		body		dto.CancelOrderRequest						false	"Reason"
// @Success		200			{object}	utils.APIResponse{data=dto.OrderResponse}	"Cancelled"
// @Failure		409			{object}	utils.APIResponse							"Already cancelled"
// @Router			/admin/orders/{order_no}/cancel [post]
func (h *AdminOrderHandler) Cancel(c *gin.Context) {
	orderNo := c.Param("order_no")

	var req dto.CancelOrderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponseWithError(c, utils.BindingError(err))
			return
		}
	}

	o, err := h.orders.Cancel(c.Request.Context(), orderNo, req.Reason)
	if err != nil {
		h.logger.Warnw("failed to cancel order", "order_no", orderNo, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "order cancelled", dto.ToOrderResponse(o))
}
