package roomhandler

import (
	"net/http"

	"chatrelaygo/internal/relay"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	reg *relay.Registry
}

func New(reg *relay.Registry) *Handler { return &Handler{reg: reg} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/api/rooms", h.list)
	r.GET("/api/rooms/:room", h.info)
}

// list returns every live room with its owner and occupancy. Rooms are
// created and destroyed only by the websocket join path; there is no
// mutation surface here.
func (h *Handler) list(c *gin.Context) {
	c.JSON(http.StatusOK, h.reg.Rooms())
}

func (h *Handler) info(c *gin.Context) {
	room, ok := h.reg.Room(c.Param("room"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}
	c.JSON(http.StatusOK, room)
}
