package handlers

import (
	"context"
	goerrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paysettle/paysettle/internal/application/checkout"
	vo "github.com/paysettle/paysettle/internal/domain/payment/valueobjects"
	"github.com/paysettle/paysettle/internal/infrastructure/cache"
	"github.com/paysettle/paysettle/internal/shared/errors"
	"github.com/paysettle/paysettle/internal/shared/logger"
	"github.com/paysettle/paysettle/internal/shared/utils"
)

const (
	maxWebhookBodySize = 1 << 20
	webhookDedupTTL    = 24 * time.Hour
)

// WebhookHandler receives processor callbacks. The payload only names the
// payment; settlement re-queries the gateway before acting.
type WebhookHandler struct {
	callbacks callbackProcessor
	verifiers map[vo.Provider]checkout.CallbackVerifier
	dedup     *cache.Deduplicator
	logger    logger.Interface
}

// NewWebhookHandler creates a webhook handler. dedup may be nil, in which case
// redeliveries are absorbed by the settlement compare-and-set alone.
func NewWebhookHandler(
	callbacks callbackProcessor,
	verifiers map[vo.Provider]checkout.CallbackVerifier,
	dedup *cache.Deduplicator,
	logger logger.Interface,
) *WebhookHandler {
	return &WebhookHandler{
		callbacks: callbacks,
		verifiers: verifiers,
		dedup:     dedup,
		logger:    logger,
	}
}

type webhookResponse struct {
	OrderNo   string `json:"order_no,omitempty"`
	Status    string `json:"status,omitempty"`
	Applied   bool   `json:"applied"`
	Duplicate bool   `json:"duplicate"`
	Ignored   bool   `json:"ignored,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Handle returns the handler for one provider's webhook endpoint.
//
// @Summary		Payment processor webhook
// @Tags			webhooks
// @Accept			json
// @Produce		json
// @Param			provider	path		string				true	"stripe or oxapay"
// @Success		200			{object}	utils.APIResponse	"Processed"
// @Failure		401			{object}	utils.APIResponse	"Invalid signature"
// @Router			/webhooks/{provider} [post]
func (h *WebhookHandler) Handle(provider vo.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		verifier, ok := h.verifiers[provider]
		if !ok {
			utils.ErrorResponse(c, http.StatusNotFound, "payment provider not configured")
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodySize))
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "failed to read request body")
			return
		}

		data, err := verifier.VerifyCallback(c.Request, body)
		if err != nil {
			if goerrors.Is(err, checkout.ErrCallbackSignature) {
				h.logger.Warnw("webhook signature rejected",
					"provider", provider,
					"client_ip", c.ClientIP(),
					"error", err,
				)
				utils.ErrorResponseWithError(c, errors.NewUnauthorizedError("invalid signature"))
				return
			}
			h.logger.Warnw("malformed webhook", "provider", provider, "error", err)
			utils.ErrorResponseWithError(c, errors.NewBadRequestError("malformed webhook", err.Error()))
			return
		}

		if data.TrackID == "" {
			h.logger.Debugw("webhook event ignored",
				"provider", provider,
				"event_id", data.EventID,
				"type", data.RawStatus,
			)
			h.ack(c, provider, webhookResponse{Ignored: true})
			return
		}

		ctx := c.Request.Context()
		dedupID := string(provider) + ":" + data.EventID
		claimed := false
		if h.dedup != nil && data.EventID != "" {
			acquired, err := h.dedup.TryAcquire(ctx, cache.DedupWebhookEvent, dedupID, webhookDedupTTL)
			if err != nil {
				// Settlement is idempotent; process without the claim.
				h.logger.Warnw("webhook dedup unavailable", "event_id", data.EventID, "error", err)
			} else if !acquired {
				h.logger.Infow("duplicate webhook event",
					"provider", provider,
					"event_id", data.EventID,
					"track_id", data.TrackID,
				)
				h.ack(c, provider, webhookResponse{Duplicate: true})
				return
			} else {
				claimed = true
			}
		}

		result, err := h.callbacks.HandleCallback(ctx, data)
		if err != nil {
			if claimed {
				h.release(dedupID)
			}
			h.logger.Errorw("failed to process webhook",
				"provider", provider,
				"event_id", data.EventID,
				"track_id", data.TrackID,
				"error", err,
			)
			utils.ErrorResponseWithError(c, err)
			return
		}

		h.ack(c, provider, webhookResponse{
			OrderNo:   result.OrderNo,
			Status:    result.Status.String(),
			Applied:   result.Applied,
			Duplicate: result.Duplicate,
			Reason:    result.Reason,
		})
	}
}

// release frees the claim on a detached context so the processor's retry is
// not swallowed when the request was cancelled.
func (h *WebhookHandler) release(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.dedup.Release(ctx, cache.DedupWebhookEvent, id); err != nil {
		h.logger.Warnw("failed to release webhook dedup claim", "id", id, "error", err)
	}
}

// ack answers in the form each processor expects. Oxapay retries unless the
// body is exactly "ok".
func (h *WebhookHandler) ack(c *gin.Context, provider vo.Provider, resp webhookResponse) {
	if provider == vo.ProviderOxapay {
		c.String(http.StatusOK, "ok")
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "webhook processed", resp)
}
