package bot

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stupiduntilnot/chousei/internal/line"
)

// NewRouter builds the webhook HTTP surface: POST /callback for the
// platform, GET /healthz for probes.
func NewRouter(h *Handler, channelSecret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.POST("/callback", callback(h, channelSecret))
	return r
}

// callback verifies the signature, decodes the events and runs each through
// the handler. The platform expects a prompt 200 regardless of reply
// outcome, so only an invalid signature or unreadable body is a 400.
func callback(h *Handler, channelSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusBadRequest, "bad request")
			return
		}
		signature := c.GetHeader("X-Line-Signature")
		if !line.ValidateSignature(channelSecret, body, signature) {
			c.String(http.StatusBadRequest, "invalid signature")
			return
		}

		events, err := line.ParseWebhook(body)
		if err != nil {
			log.Printf("[bot] webhook parse failed: %v", err)
			c.String(http.StatusOK, "OK")
			return
		}
		for _, ev := range events {
			h.HandleEvent(c.Request.Context(), ev)
		}
		c.String(http.StatusOK, "OK")
	}
}
