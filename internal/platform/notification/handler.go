package notification

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carewise/opsdesk/pkg/pagination"
)

// Handler exposes the delivery log over HTTP.
type Handler struct {
	manager *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{manager: mgr}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications/stats", h.HandleStats)
	g.GET("/notifications/:id", h.HandleGet)
	g.GET("/notifications", h.HandleList)
}

// HandleList handles GET /notifications?recipient=...
func (h *Handler) HandleList(c echo.Context) error {
	pg := pagination.FromContext(c)
	list := h.manager.Recent(c.QueryParam("recipient"), pg.Limit)
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) HandleGet(c echo.Context) error {
	d, err := h.manager.Get(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Stats())
}
