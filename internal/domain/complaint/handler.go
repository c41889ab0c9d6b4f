package complaint

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carewise/opsdesk/internal/platform/auth"
	"github.com/carewise/opsdesk/pkg/pagination"
)

// Envelope wraps every successful response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorBody is returned for every failed request.
type ErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/concerns", auth.RequireRole(auth.RoleStaff))

	g.POST("", h.CreateComplaint)
	g.GET("", h.ListComplaints)
	g.GET("/:id", h.GetComplaint)
	g.GET("/:id/history", h.GetHistory)

	g.POST("/:id/forward", h.forward(ScopeDocument))
	g.POST("/:id/escalate", h.escalate(ScopeDocument))
	g.POST("/:id/progress", h.progress(ScopeDocument))
	g.POST("/:id/resolve", h.resolve(ScopeDocument))

	g.POST("/internal/:id/partial-forward", h.forward(ScopeDepartment))
	g.POST("/internal/:id/partial-escalate", h.escalate(ScopeDepartment))
	g.POST("/internal/:id/partial-progress", h.progress(ScopeDepartment))
	g.POST("/internal/:id/partial-resolve", h.resolve(ScopeDepartment))
	g.POST("/internal/:id/partial-reopen", h.Reopen)
}

func ok(c echo.Context, code int, message string, data interface{}) error {
	return c.JSON(code, Envelope{Success: true, Message: message, Data: data})
}

func fail(c echo.Context, code int, message string, err error) error {
	return c.JSON(code, ErrorBody{Message: message, Error: err.Error()})
}

// respondError maps workflow errors to HTTP status codes.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return fail(c, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, ErrNotFound):
		return fail(c, http.StatusNotFound, "Complaint not found", err)
	case errors.Is(err, ErrConflict):
		return fail(c, http.StatusConflict, "Complaint was modified by someone else, reload and retry", err)
	}
	c.Logger().Errorf("complaint request failed: %v", err)
	return fail(c, http.StatusInternalServerError, "Something went wrong", err)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid complaint id %q", ErrInvalidArgument, c.Param("id"))
	}
	return id, nil
}

func actorID(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

// -- Intake and reads --

func (h *Handler) CreateComplaint(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body", err)
	}
	req.ActorID = actorID(c)
	cmp, err := h.engine.Create(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, http.StatusCreated, "Complaint registered", cmp)
}

func (h *Handler) ListComplaints(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		Type:       ComplaintType(c.QueryParam("type")),
		Status:     Status(c.QueryParam("status")),
		Department: DepartmentKey(c.QueryParam("department")),
		SubjectID:  c.QueryParam("subjectId"),
	}
	items, total, err := h.engine.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, http.StatusOK, "Complaints fetched", pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetComplaint(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}
	cmp, err := h.engine.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, http.StatusOK, "Complaint fetched", cmp)
}

func (h *Handler) GetHistory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}
	hist, err := h.engine.History(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, http.StatusOK, "Complaint history fetched", hist)
}

// -- Workflow actions --

func (h *Handler) forward(scope Scope) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return respondError(c, err)
		}
		var req ForwardRequest
		if err := c.Bind(&req); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body", err)
		}
		req.ActorID = actorID(c)
		cmp, err := h.engine.Forward(c.Request().Context(), id, scope, req)
		if err != nil {
			return respondError(c, err)
		}
		return ok(c, http.StatusOK, "Complaint forwarded", cmp)
	}
}

func (h *Handler) escalate(scope Scope) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return respondError(c, err)
		}
		var req EscalateRequest
		if err := c.Bind(&req); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body", err)
		}
		req.ActorID = actorID(c)
		cmp, err := h.engine.Escalate(c.Request().Context(), id, scope, req)
		if err != nil {
			return respondError(c, err)
		}
		return ok(c, http.StatusOK, "Complaint escalated", cmp)
	}
}

func (h *Handler) progress(scope Scope) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return respondError(c, err)
		}
		var req ActionRequest
		if err := c.Bind(&req); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body", err)
		}
		req.ActorID = actorID(c)
		cmp, err := h.engine.Progress(c.Request().Context(), id, scope, req)
		if err != nil {
			return respondError(c, err)
		}
		return ok(c, http.StatusOK, "Complaint marked in progress", cmp)
	}
}

func (h *Handler) resolve(scope Scope) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return respondError(c, err)
		}
		var req ResolveRequest
		if err := c.Bind(&req); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body", err)
		}
		if req.ResolvedType == ResolvedByAdmin && !auth.HasRole(c.Request().Context(), auth.RoleAdmin) {
			return fail(c, http.StatusForbidden, "Only admins can resolve as admin", errors.New("required role: admin"))
		}
		req.ActorID = actorID(c)
		cmp, err := h.engine.Resolve(c.Request().Context(), id, scope, req)
		if err != nil {
			return respondError(c, err)
		}
		return ok(c, http.StatusOK, "Complaint resolved", cmp)
	}
}

func (h *Handler) Reopen(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req ActionRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid request body", err)
	}
	req.ActorID = actorID(c)
	cmp, err := h.engine.Reopen(c.Request().Context(), id, req)
	if err != nil {
		return respondError(c, err)
	}
	return ok(c, http.StatusOK, "Department reopened", cmp)
}
