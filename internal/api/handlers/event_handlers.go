package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/LakePipiCAKA/self-discovery/internal/sse"

	"github.com/gin-gonic/gin"
)

// Events streams pipeline events to the kiosk UI over Server-Sent Events.
func (h *APIHandler) Events(c *gin.Context) {
	client := make(sse.Client, 16)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-client:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", message)
			return true
		case <-ctx.Done():
			return false
		}
	})
}
