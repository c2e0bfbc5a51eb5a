package v1

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shenikar/dispatch_coordination_system/internal/service"
)

const keepAliveInterval = 15 * time.Second

// @Summary Live change stream
// @Description Server-sent events: "change" for every applied change, "reset" when the client must reload an entity (or everything if entity is empty). Requires API key.
// @Tags Stream
// @Produce text/event-stream
// @Security ApiKeyAuth
// @Success 200 {object} service.LiveEvent
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /stream [get]
func (h *Handler) stream(c *gin.Context) {
	log := h.logger.WithField("method", "stream")
	sub := h.bus.Subscribe(0)
	defer h.bus.Unsubscribe(sub)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	log.Debug("Live stream client connected")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC()})
			return true
		case ev, ok := <-sub.C():
			if !ok {
				return false
			}
			// События потеряны из-за медленного клиента: пусть перечитает все
			if sub.Lagged() {
				c.SSEvent("reset", service.LiveEvent{Reset: true})
			}
			if ev.Reset {
				c.SSEvent("reset", ev)
			} else {
				c.SSEvent("change", ev)
			}
			return true
		}
	})
	log.Debug("Live stream client disconnected")
}
