// Package admin implements the HTTP adapter for the admin API.
package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/virtwarden/virtwarden/internal/boundaries/in"
	"github.com/virtwarden/virtwarden/internal/domain"
)

// Handler exposes schedule, action and cluster management plus run-now.
type Handler struct {
	schedules in.ScheduleService
	clusters  in.ClusterService
	engine    in.EngineService
	log       zerolog.Logger
}

// NewHandler creates the admin API handler.
func NewHandler(schedules in.ScheduleService, clusters in.ClusterService, engine in.EngineService, log zerolog.Logger) *Handler {
	return &Handler{schedules: schedules, clusters: clusters, engine: engine, log: log}
}

// RegisterRoutes binds the admin endpoints on the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/schedules", h.listSchedules)
	g.POST("/schedules", h.createSchedule)
	g.GET("/schedules/:id", h.getSchedule)
	g.PUT("/schedules/:id", h.updateSchedule)
	g.DELETE("/schedules/:id", h.deleteSchedule)
	g.POST("/schedules/:id/enable", h.enableSchedule)
	g.POST("/schedules/:id/disable", h.disableSchedule)
	g.POST("/schedules/:id/run", h.runSchedule)
	g.GET("/schedules/:id/history", h.scheduleHistory)

	g.GET("/actions", h.listActions)
	g.POST("/actions", h.createAction)
	g.DELETE("/actions/:id", h.deleteAction)

	g.GET("/clusters", h.listClusters)
	g.POST("/clusters", h.registerCluster)
	g.DELETE("/clusters/:id", h.deleteCluster)
}

type scheduleRequest struct {
	TenantID        string `json:"tenant_id"`
	Name            string `json:"name"`
	ClusterID       string `json:"cluster_id"`
	Node            string `json:"node"`
	VMID            int    `json:"vmid"`
	TriggerKind     string `json:"trigger_kind"`
	TriggerValue    string `json:"trigger_value"`
	RetentionDays   *int   `json:"retention_days,omitempty"`
	RetentionCount  *int   `json:"retention_count,omitempty"`
	Compression     string `json:"compression,omitempty"`
	Mode            string `json:"mode,omitempty"`
	Storage         string `json:"storage,omitempty"`
	NotifyOnSuccess bool   `json:"notify_on_success"`
	NotifyOnFailure bool   `json:"notify_on_failure"`
	NotifyEmail     string `json:"notify_email,omitempty"`
	Enabled         *bool  `json:"enabled,omitempty"`
}

type scheduleResponse struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	Name            string     `json:"name"`
	ClusterID       string     `json:"cluster_id"`
	Node            string     `json:"node"`
	VMID            int        `json:"vmid"`
	TriggerKind     string     `json:"trigger_kind"`
	TriggerValue    string     `json:"trigger_value"`
	RetentionKind   string     `json:"retention_kind"`
	RetentionN      int        `json:"retention_n,omitempty"`
	Compression     string     `json:"compression,omitempty"`
	Mode            string     `json:"mode,omitempty"`
	Storage         string     `json:"storage,omitempty"`
	NotifyOnSuccess bool       `json:"notify_on_success"`
	NotifyOnFailure bool       `json:"notify_on_failure"`
	NotifyEmail     string     `json:"notify_email,omitempty"`
	Enabled         bool       `json:"enabled"`
	NextRun         time.Time  `json:"next_run"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	LastStatus      string     `json:"last_status,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (r scheduleRequest) toDomain() (domain.Schedule, error) {
	trig, err := domain.ParseTrigger(r.TriggerKind, r.TriggerValue)
	if err != nil {
		return domain.Schedule{}, err
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return domain.Schedule{
		TenantID:  r.TenantID,
		Name:      r.Name,
		ClusterID: r.ClusterID,
		Node:      r.Node,
		VMID:      r.VMID,
		Trigger:   trig,
		Retention: domain.RetentionFromColumns(r.RetentionDays, r.RetentionCount),
		Options: domain.BackupOptions{
			Compression: r.Compression,
			Mode:        r.Mode,
			Storage:     r.Storage,
		},
		NotifyOnSuccess: r.NotifyOnSuccess,
		NotifyOnFailure: r.NotifyOnFailure,
		NotifyEmail:     r.NotifyEmail,
		Enabled:         enabled,
	}, nil
}

func toScheduleResponse(s domain.Schedule) scheduleResponse {
	resp := scheduleResponse{
		ID:              s.ID,
		TenantID:        s.TenantID,
		Name:            s.Name,
		ClusterID:       s.ClusterID,
		Node:            s.Node,
		VMID:            s.VMID,
		TriggerKind:     string(s.Trigger.Kind),
		TriggerValue:    s.Trigger.Value(),
		RetentionKind:   string(s.Retention.Kind),
		RetentionN:      s.Retention.N,
		Compression:     s.Options.Compression,
		Mode:            s.Options.Mode,
		Storage:         s.Options.Storage,
		NotifyOnSuccess: s.NotifyOnSuccess,
		NotifyOnFailure: s.NotifyOnFailure,
		NotifyEmail:     s.NotifyEmail,
		Enabled:         s.Enabled,
		NextRun:         s.NextRun,
		LastStatus:      string(s.LastStatus),
		LastError:       s.LastError,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if !s.LastRun.IsZero() {
		lr := s.LastRun
		resp.LastRun = &lr
	}
	return resp
}

func (h *Handler) createSchedule(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sched, err := req.toDomain()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.schedules.CreateSchedule(c.Request().Context(), sched)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusCreated, toScheduleResponse(created))
}

func (h *Handler) updateSchedule(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sched, err := req.toDomain()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sched.ID = c.Param("id")
	updated, err := h.schedules.UpdateSchedule(c.Request().Context(), sched)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, toScheduleResponse(updated))
}

func (h *Handler) getSchedule(c echo.Context) error {
	sched, err := h.schedules.GetSchedule(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, toScheduleResponse(sched))
}

func (h *Handler) listSchedules(c echo.Context) error {
	scheds, err := h.schedules.ListSchedules(c.Request().Context(), c.QueryParam("tenant"))
	if err != nil {
		return h.mapError(err)
	}
	out := make([]scheduleResponse, 0, len(scheds))
	for _, s := range scheds {
		out = append(out, toScheduleResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) deleteSchedule(c echo.Context) error {
	if err := h.schedules.DeleteSchedule(c.Request().Context(), c.Param("id")); err != nil {
		return h.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) enableSchedule(c echo.Context) error {
	return h.setEnabled(c, true)
}

func (h *Handler) disableSchedule(c echo.Context) error {
	return h.setEnabled(c, false)
}

func (h *Handler) setEnabled(c echo.Context, enabled bool) error {
	if err := h.schedules.SetEnabled(c.Request().Context(), c.Param("id"), enabled); err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"enabled": enabled})
}

func (h *Handler) runSchedule(c echo.Context) error {
	outcome, err := h.engine.RunSchedule(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.mapError(err)
	}
	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusBadGateway
	}
	return c.JSON(status, map[string]any{
		"success": outcome.Success,
		"message": outcome.Message,
	})
}

type historyResponse struct {
	ID              string     `json:"id"`
	ScheduleID      string     `json:"schedule_id"`
	TaskID          string     `json:"task_id,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Status          string     `json:"status"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
}

func (h *Handler) scheduleHistory(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	recs, err := h.schedules.History(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return h.mapError(err)
	}
	out := make([]historyResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, historyResponse{
			ID:              r.ID,
			ScheduleID:      r.ScheduleID,
			TaskID:          r.TaskID,
			StartedAt:       r.StartedAt,
			CompletedAt:     r.CompletedAt,
			Status:          string(r.Status),
			ErrorMessage:    r.ErrorMessage,
			DurationSeconds: r.DurationSeconds,
		})
	}
	return c.JSON(http.StatusOK, out)
}

type actionRequest struct {
	TenantID     string `json:"tenant_id"`
	Name         string `json:"name"`
	ClusterID    string `json:"cluster_id"`
	Node         string `json:"node"`
	VMID         int    `json:"vmid"`
	Action       string `json:"action"`
	TriggerKind  string `json:"trigger_kind"`
	TriggerValue string `json:"trigger_value"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

type actionResponse struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Name         string    `json:"name"`
	ClusterID    string    `json:"cluster_id"`
	Node         string    `json:"node"`
	VMID         int       `json:"vmid"`
	Action       string    `json:"action"`
	TriggerKind  string    `json:"trigger_kind"`
	TriggerValue string    `json:"trigger_value"`
	Enabled      bool      `json:"enabled"`
	NextRun      time.Time `json:"next_run"`
	LastStatus   string    `json:"last_status,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

func toActionResponse(a domain.ActionSchedule) actionResponse {
	return actionResponse{
		ID:           a.ID,
		TenantID:     a.TenantID,
		Name:         a.Name,
		ClusterID:    a.ClusterID,
		Node:         a.Node,
		VMID:         a.VMID,
		Action:       string(a.Action),
		TriggerKind:  string(a.Trigger.Kind),
		TriggerValue: a.Trigger.Value(),
		Enabled:      a.Enabled,
		NextRun:      a.NextRun,
		LastStatus:   string(a.LastStatus),
		LastError:    a.LastError,
	}
}

func (h *Handler) createAction(c echo.Context) error {
	var req actionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	trig, err := domain.ParseTrigger(req.TriggerKind, req.TriggerValue)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	created, err := h.schedules.CreateAction(c.Request().Context(), domain.ActionSchedule{
		TenantID:  req.TenantID,
		Name:      req.Name,
		ClusterID: req.ClusterID,
		Node:      req.Node,
		VMID:      req.VMID,
		Action:    domain.ActionKind(req.Action),
		Trigger:   trig,
		Enabled:   enabled,
	})
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusCreated, toActionResponse(created))
}

func (h *Handler) listActions(c echo.Context) error {
	actions, err := h.schedules.ListActions(c.Request().Context(), c.QueryParam("tenant"))
	if err != nil {
		return h.mapError(err)
	}
	out := make([]actionResponse, 0, len(actions))
	for _, a := range actions {
		out = append(out, toActionResponse(a))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) deleteAction(c echo.Context) error {
	if err := h.schedules.DeleteAction(c.Request().Context(), c.Param("id")); err != nil {
		return h.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type clusterRequest struct {
	Name     string `json:"name"`
	APIURL   string `json:"api_url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type clusterResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIURL    string    `json:"api_url"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) registerCluster(c echo.Context) error {
	var req clusterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	created, err := h.clusters.RegisterCluster(c.Request().Context(),
		req.Name, req.APIURL, req.Username, req.Password)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusCreated, clusterResponse{
		ID:        created.ID,
		Name:      created.Name,
		APIURL:    created.APIURL,
		Username:  created.Username,
		CreatedAt: created.CreatedAt,
	})
}

func (h *Handler) listClusters(c echo.Context) error {
	clusters, err := h.clusters.ListClusters(c.Request().Context())
	if err != nil {
		return h.mapError(err)
	}
	out := make([]clusterResponse, 0, len(clusters))
	for _, cl := range clusters {
		out = append(out, clusterResponse{
			ID:        cl.ID,
			Name:      cl.Name,
			APIURL:    cl.APIURL,
			Username:  cl.Username,
			CreatedAt: cl.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) deleteCluster(c echo.Context) error {
	if err := h.clusters.DeleteCluster(c.Request().Context(), c.Param("id")); err != nil {
		return h.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// mapError translates domain errors into HTTP status codes.
func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, domain.ErrScheduleNotFound),
		errors.Is(err, domain.ErrClusterNotFound),
		errors.Is(err, domain.ErrHistoryNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTrigger),
		errors.Is(err, domain.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("admin request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
