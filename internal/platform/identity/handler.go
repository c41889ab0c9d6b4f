package identity

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carewise/opsdesk/internal/platform/auth"
)

// Handler lets signed-in clients register the device tokens they receive
// pushes on. Department membership decides who gets forward pushes, so only
// admins may register tokens for departments or on behalf of someone else.
type Handler struct {
	registrar       Registrar
	knownDepartment func(string) bool
}

// NewHandler rejects department keys for which knownDepartment returns false.
func NewHandler(r Registrar, knownDepartment func(string) bool) *Handler {
	return &Handler{registrar: r, knownDepartment: knownDepartment}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/push-tokens", h.HandleRegister)
	g.DELETE("/push-tokens", h.HandleUnregister)
}

func (h *Handler) bind(c echo.Context) (Registration, error) {
	var reg Registration
	if err := c.Bind(&reg); err != nil {
		return reg, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	uid := auth.UserIDFromContext(ctx)
	admin := auth.HasRole(ctx, auth.RoleAdmin)
	if reg.Identity == "" || !admin {
		reg.Identity = uid
	}
	if len(reg.Departments) > 0 && !admin {
		return reg, echo.NewHTTPError(http.StatusForbidden, "department registration requires the admin role")
	}
	for _, d := range reg.Departments {
		if h.knownDepartment != nil && !h.knownDepartment(d) {
			return reg, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown department %q", d))
		}
	}

	if err := reg.Validate(); err != nil {
		return reg, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return reg, nil
}

func (h *Handler) HandleRegister(c echo.Context) error {
	reg, err := h.bind(c)
	if err != nil {
		return err
	}
	if err := h.registrar.Register(c.Request().Context(), reg); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, reg)
}

func (h *Handler) HandleUnregister(c echo.Context) error {
	reg, err := h.bind(c)
	if err != nil {
		return err
	}
	if err := h.registrar.Unregister(c.Request().Context(), reg); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
