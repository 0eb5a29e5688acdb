package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"taskforge/backend/internal/auth"
	"taskforge/backend/internal/repository"
	"taskforge/backend/internal/services"
)

// Server holds the dependencies for the API server.
type Server struct {
	Assignments *services.AssignmentService
	Lifecycle   *services.LifecycleService
	Repo        repository.Store
}

// NewServer creates a new Server.
func NewServer(assignments *services.AssignmentService, lifecycle *services.LifecycleService, repo repository.Store) *Server {
	return &Server{Assignments: assignments, Lifecycle: lifecycle, Repo: repo}
}

// RegisterRoutes mounts the execution engine routes on the group.
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.GET("/work-units", s.ListOpenWorkUnits)
	g.POST("/work-units/:id/accept", s.Accept)
	g.GET("/executions/:id", s.GetExecution)
	g.POST("/executions/:id/clock-in", s.ClockIn)
	g.POST("/executions/:id/clock-out", s.ClockOut)
	g.POST("/executions/:id/submit", s.Submit)
	g.POST("/executions/:id/review", s.Review)
	g.POST("/executions/:id/assign", s.Assign)
	g.POST("/executions/:id/reject", s.Reject)
	g.POST("/executions/:id/cancel", s.Cancel)
	g.GET("/executions/:id/milestones", s.MilestoneProgress)
	g.POST("/executions/:id/milestones/:mid/complete", s.CompleteMilestone)
}

func requireRole(c echo.Context, role string) error {
	if auth.Role(c.Request().Context()) != role {
		return echo.NewHTTPError(http.StatusForbidden, "route requires role "+role)
	}
	return nil
}

// ListOpenWorkUnits returns claimable work units
// (GET /api/v1/work-units)
func (s *Server) ListOpenWorkUnits(c echo.Context) error {
	units, err := s.Repo.ListOpenWorkUnits(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, units)
}

// Accept claims a work unit for the authenticated student
// (POST /api/v1/work-units/:id/accept)
func (s *Server) Accept(c echo.Context) error {
	if err := requireRole(c, auth.RoleStudent); err != nil {
		return err
	}
	ctx := c.Request().Context()
	exec, err := s.Assignments.Claim(ctx, c.Param("id"), auth.UserID(ctx))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, exec)
}

// GetExecution returns one execution
// (GET /api/v1/executions/:id)
func (s *Server) GetExecution(c echo.Context) error {
	exec, err := s.Repo.GetExecution(c.Request().Context(), c.Param("id"))
	if err != nil {
		if err == repository.ErrNotFound {
			return writeError(c, services.Errf(services.CodeNotFound, "execution not found"))
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, exec)
}

// ClockIn starts active work on an execution
// (POST /api/v1/executions/:id/clock-in)
func (s *Server) ClockIn(c echo.Context) error {
	if err := requireRole(c, auth.RoleStudent); err != nil {
		return err
	}
	ctx := c.Request().Context()
	exec, err := s.Lifecycle.ClockIn(ctx, c.Param("id"), auth.UserID(ctx))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, exec)
}

// ClockOut pauses active work on an execution
// (POST /api/v1/executions/:id/clock-out)
func (s *Server) ClockOut(c echo.Context) error {
	if err := requireRole(c, auth.RoleStudent); err != nil {
		return err
	}
	ctx := c.Request().Context()
	exec, err := s.Lifecycle.ClockOut(ctx, c.Param("id"), auth.UserID(ctx))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, exec)
}

type submitRequest struct {
	Deliverables []string `json:"deliverables"`
}

// Submit hands in the work for review
// (POST /api/v1/executions/:id/submit)
func (s *Server) Submit(c echo.Context) error {
	if err := requireRole(c, auth.RoleStudent); err != nil {
		return err
	}
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	ctx := c.Request().Context()
	exec, err := s.Lifecycle.Submit(ctx, c.Param("id"), auth.UserID(ctx), req.Deliverables)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, exec)
}

// Review applies a company verdict to a submitted execution
// (POST /api/v1/executions/:id/review)
func (s *Server) Review(c echo.Context) error {
	if err := requireRole(c, auth.RoleCompany); err != nil {
		return err
	}
	var input services.ReviewInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	ctx := c.Request().Context()
	exec, err := s.Lifecycle.Review(ctx, c.Param("id"), auth.UserID(ctx), input)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, exec)
}

// Assign finalizes a manual-mode work unit to one applicant
// (POST /api/v1/executions/:id/assign)
func (s *Server) Assign(c echo.Context) error {
	if err := requireRole(c, auth.RoleCompany); err != nil {
		return err
	}
	ctx := c.Request().Context()
	exec, err := s.Assignments.Assign(ctx, c.Param("id"), auth.UserID(ctx))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, exec)
}

// Reject declines one pending application
// (POST /api/v1/executions/:id/reject)
func (s *Server) Reject(c echo.Context) error {
	if err := requireRole(c, auth.RoleCompany); err != nil {
		return err
	}
	ctx := c.Request().Context()
	exec, err := s.Assignments.Reject(ctx, c.Param("id"), auth.UserID(ctx))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, exec)
}

// Cancel abandons an execution. The owning student or the owning company
// may cancel; ownership is enforced inside the cancel transaction.
// (POST /api/v1/executions/:id/cancel)
func (s *Server) Cancel(c echo.Context) error {
	ctx := c.Request().Context()
	exec, err := s.Lifecycle.Cancel(ctx, c.Param("id"), auth.UserID(ctx))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, exec)
}

// MilestoneProgress returns the checklist state of an execution
// (GET /api/v1/executions/:id/milestones)
func (s *Server) MilestoneProgress(c echo.Context) error {
	progress, err := s.Lifecycle.MilestoneProgress(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, progress)
}

type completeMilestoneRequest struct {
	Evidence *string `json:"evidence,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// CompleteMilestone marks one milestone instance done
// (POST /api/v1/executions/:id/milestones/:mid/complete)
func (s *Server) CompleteMilestone(c echo.Context) error {
	if err := requireRole(c, auth.RoleStudent); err != nil {
		return err
	}
	var req completeMilestoneRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	milestone, err := s.Lifecycle.CompleteMilestone(c.Request().Context(), c.Param("id"), c.Param("mid"), req.Evidence, req.Notes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, milestone)
}
