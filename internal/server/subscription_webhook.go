package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/licensor/internal/observability/context"
	subscriptionsyncdomain "github.com/smallbiznis/licensor/internal/subscriptionsync/domain"
)

const (
	headerSignature = "X-Signature"

	maxWebhookBodyBytes = 1 << 20
)

// ReceiveSubscriptionWebhook queues a signed subscription event from the
// billing system. Processing happens in the scheduler.
func (s *Server) ReceiveSubscriptionWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorTypeWebhook, "subscriptions")
	signature := strings.TrimSpace(c.GetHeader(headerSignature))
	if signature == "" {
		AbortWithError(c, subscriptionsyncdomain.ErrInvalidSignature)
		return
	}

	res, err := s.subscriptionSvc.Ingest(ctx, payload, signature)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"received":  true,
		"event_id":  res.EventID,
		"duplicate": res.Duplicate,
	})
}

// IngestSubscriptionEvent accepts an event from an authenticated admin or
// system token without a signature.
func (s *Server) IngestSubscriptionEvent(c *gin.Context) {
	if s.subscriptionSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.subscriptionSvc.IngestTrusted(c.Request.Context(), payload)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"data": gin.H{
			"event_id":  res.EventID,
			"duplicate": res.Duplicate,
		},
	})
}
