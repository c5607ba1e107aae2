package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paysettle/paysettle/internal/application/checkout"
	"github.com/paysettle/paysettle/internal/domain/order"
	"github.com/paysettle/paysettle/internal/interfaces/dto"
	"github.com/paysettle/paysettle/internal/shared/biztime"
	"github.com/paysettle/paysettle/internal/shared/logger"
	"github.com/paysettle/paysettle/internal/shared/utils"
)

const defaultEventsHeartbeat = 15 * time.Second

// CheckoutHandler serves the storefront checkout: order upsert, payment
// start, status and session resume.
type CheckoutHandler struct {
	orders    orderService
	checkout  checkoutService
	heartbeat time.Duration
	logger    logger.Interface
}

func NewCheckoutHandler(orders orderService, checkout checkoutService, logger logger.Interface) *CheckoutHandler {
	return &CheckoutHandler{
		orders:    orders,
		checkout:  checkout,
		heartbeat: defaultEventsHeartbeat,
		logger:    logger,
	}
}

// @Summary		Create or update order
// @Description	Create an order from the cart, or revise it when order_id is given
// @Tags			orders
// @Accept			json
// @Produce		json
// @Param			order	body		dto.UpsertOrderRequest						true	"Cart"
// @Success		200		{object}	utils.APIResponse{data=dto.OrderResponse}	"Order saved"
// @Failure		400		{object}	utils.APIResponse							"Bad request"
// @Failure		422		{object}	utils.APIResponse							"Total below minimum"
// @Router			/orders [post]
func (h *CheckoutHandler) UpsertOrder(c *gin.Context) {
	var req dto.UpsertOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("invalid order request", "error", err)
		utils.ErrorResponseWithError(c, utils.BindingError(err))
		return
	}

	o, err := h.orders.CreateOrUpdate(c.Request.Context(), req.ToCommand())
	if err != nil {
		h.logger.Warnw("failed to save order", "order_no", req.OrderID, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "order saved", dto.ToOrderResponse(o))
}

// @Summary		Get order
// @Tags			orders
// @Produce		json
// @Param			order_no	path		string										true	"Order number"
// @Success		200			{object}	utils.APIResponse{data=dto.OrderResponse}	"Order"
// @Failure		404			{object}	utils.APIResponse							"Not found"
// @Router			/orders/{order_no} [get]
func (h *CheckoutHandler) GetOrder(c *gin.Context) {
	orderNo := c.Param("order_no")

	o, err := h.orders.Get(c.Request.Context(), orderNo)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", dto.ToOrderResponse(o))
}

// @Summary		Start payment
// @Description	Open a payment intent for the chosen method. Zero-total orders complete without a gateway.
// @Tags			orders
// @Accept			json
// @Produce		json
// @Param			order_no	path		string											true	"Order number"
// @Param			payment		body		dto.StartPaymentRequest							true	"Method"
// @Success		200			{object}	utils.APIResponse{data=dto.StartPaymentResponse}	"Intent"
// @Failure		502			{object}	utils.APIResponse								"Gateway unavailable"
// @Router			/orders/{order_no}/pay [post]
func (h *CheckoutHandler) StartPayment(c *gin.Context) {
	orderNo := c.Param("order_no")

	var req dto.StartPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithError(c, utils.BindingError(err))
		return
	}

	result, err := h.checkout.StartPayment(c.Request.Context(), checkout.StartPaymentCommand{
		OrderNo: orderNo,
		Method:  req.Method,
		Step:    req.Step,
	})
	if err != nil {
		h.logger.Warnw("failed to start payment",
			"order_no", orderNo,
			"method", req.Method,
			"error", err,
		)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "payment started", dto.ToStartPaymentResponse(result))
}

// @Summary		Complete free order
// @Tags			orders
// @Accept			json
// @Produce		json
// @Param			order_no	path		string										true	"Order number"
// @Param			body		body		dto.CompleteFreeOrderRequest				false	"Coupon"
// @Success		200			{object}	utils.APIResponse{data=dto.OrderResponse}	"Completed"
// @Failure		400			{object}	utils.APIResponse							"Order is not free"
// @Router			/orders/{order_no}/free [post]
func (h *CheckoutHandler) CompleteFreeOrder(c *gin.Context) {
	orderNo := c.Param("order_no")

	var req dto.CompleteFreeOrderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponseWithError(c, utils.BindingError(err))
			return
		}
	}

	o, err := h.orders.CompleteFreeOrder(c.Request.Context(), orderNo, req.CouponCode)
	if err != nil {
		h.logger.Warnw("failed to complete free order", "order_no", orderNo, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "order completed", dto.ToOrderResponse(o))
}

// @Summary		Order status
// @Tags			orders
// @Produce		json
// @Param			order_no	path		string										true	"Order number"
// @Success		200			{object}	utils.APIResponse{data=dto.StatusResponse}	"Status"
// @Router			/orders/{order_no}/status [get]
func (h *CheckoutHandler) GetStatus(c *gin.Context) {
	view, err := h.checkout.Status(c.Request.Context(), c.Param("order_no"))
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", dto.ToStatusResponse(view))
}

// @Summary		Restore checkout session
// @Tags			sessions
// @Produce		json
// @Param			order_no	path	string	true	"Order number"
// @Success		200			{object}	utils.APIResponse{data=checkout.CheckoutSession}	"Session"
// @Success		204			"Nothing to restore"
// @Router			/orders/{order_no}/session [get]
func (h *CheckoutHandler) RestoreSession(c *gin.Context) {
	sess, err := h.checkout.RestoreSession(c.Request.Context(), c.Param("order_no"))
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	if sess == nil {
		utils.NoContentResponse(c)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", sess)
}

// @Summary		Save checkout session
// @Tags			sessions
// @Accept			json
// @Produce		json
// @Param			order_no	path		string												true	"Order number"
// @Param			session		body		dto.PersistSessionRequest							true	"Step"
// @Success		200			{object}	utils.APIResponse{data=checkout.CheckoutSession}	"Session"
// @Router			/orders/{order_no}/session [put]
func (h *CheckoutHandler) PersistSession(c *gin.Context) {
	var req dto.PersistSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithError(c, utils.BindingError(err))
		return
	}

	sess, err := h.checkout.PersistSession(c.Request.Context(), c.Param("order_no"), req.Step, req.Method)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	if sess == nil {
		utils.NoContentResponse(c)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "session saved", sess)
}

// @Summary		Clear checkout session
// @Description	Forget the saved checkout and stop reconciling the order
// @Tags			sessions
// @Param			order_no	path	string	true	"Order number"
// @Success		204			"Cleared"
// @Router			/orders/{order_no}/session [delete]
func (h *CheckoutHandler) ClearSession(c *gin.Context) {
	if err := h.checkout.ClearSession(c.Request.Context(), c.Param("order_no")); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.NoContentResponse(c)
}

// @Summary		Order status events
// @Description	Server-sent events with every status change of the order. The first event is the current status.
// @Tags			orders
// @Produce		text/event-stream
// @Param			order_no	path	string	true	"Order number"
// @Router			/orders/{order_no}/events [get]
func (h *CheckoutHandler) Events(c *gin.Context) {
	ctx := c.Request.Context()
	orderNo := c.Param("order_no")

	o, events, unsubscribe, err := h.checkout.Events(ctx, orderNo)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	h.sendEvent(c, "status", order.StatusChangedEvent{
		OrderID:    o.ID(),
		OrderNo:    o.OrderNo(),
		Status:     o.Status(),
		OccurredAt: o.UpdatedAt(),
	})
	if o.Status().IsTerminal() {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			h.sendEvent(c, "status", event)
			if event.Status.IsTerminal() {
				return
			}
		case <-heartbeat.C:
			h.sendEvent(c, "ping", gin.H{"at": biztime.NowUTC()})
		}
	}
}

func (h *CheckoutHandler) sendEvent(c *gin.Context, name string, data interface{}) {
	c.SSEvent(name, data)
	c.Writer.Flush()
}
