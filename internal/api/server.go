// Package api serves the schedule synthesizer over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/tessera/internal/batch"
	"github.com/samcharles93/tessera/internal/capability"
	"github.com/samcharles93/tessera/internal/driver"
	"github.com/samcharles93/tessera/internal/logger"
	"github.com/samcharles93/tessera/internal/schedule"
	"github.com/samcharles93/tessera/internal/version"
)

type Server struct {
	store    *ScheduleStore
	registry *capability.Registry
	log      logger.Logger
	schedule batch.ScheduleFunc
	// batchLimit bounds the requests of one batch scheduled at once.
	batchLimit int
	clock      func() time.Time
}

type Options struct {
	Logger     logger.Logger
	BatchLimit int
}

func NewServer(store *ScheduleStore, reg *capability.Registry, opts Options) *Server {
	if store == nil {
		store = NewScheduleStore()
	}
	if reg == nil {
		reg = capability.NewRegistry()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		store:      store,
		registry:   reg,
		log:        log,
		schedule:   driver.Schedule,
		batchLimit: opts.BatchLimit,
		clock:      time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/profiles", s.handleProfiles)
	e.POST("/v1/schedules", s.handleCreateSchedule)
	e.GET("/v1/schedules", s.handleListSchedules)
	e.GET("/v1/schedules/:id", s.handleGetSchedule)
	e.DELETE("/v1/schedules/:id", s.handleDeleteSchedule)
	e.POST("/v1/batches", s.handleBatch)
}

type ScheduleResponse struct {
	ID        string             `json:"id"`
	Object    string             `json:"object"`
	CreatedAt int64              `json:"created_at"`
	Schedule  *schedule.Schedule `json:"schedule,omitempty"`
}

type ScheduleList struct {
	Object string             `json:"object"`
	Data   []ScheduleResponse `json:"data"`
}

type DeleteScheduleResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ProfileList struct {
	Object string                  `json:"object"`
	Data   []capability.Capability `json:"data"`
}

type BatchResponse struct {
	Object    string         `json:"object"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []batch.Result `json:"results"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Phase   string `json:"phase,omitempty"`
}

func (s *Server) requestContext(c *echo.Context) context.Context {
	return logger.WithContext(c.Request().Context(), s.log)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

func (s *Server) handleProfiles(c *echo.Context) error {
	return c.JSON(http.StatusOK, ProfileList{Object: "list", Data: s.registry.All()})
}

func (s *Server) handleCreateSchedule(c *echo.Context) error {
	spec, err := driver.DecodeRequest(c.Request().Body)
	if err != nil {
		return writeFailure(c, err)
	}
	if spec.Pattern == "" {
		return writeFailure(c, newInvalidRequest("pattern is required"))
	}
	req, err := spec.Resolve(s.registry)
	if err != nil {
		return writeFailure(c, err)
	}
	sched, err := s.schedule(s.requestContext(c), req)
	if err != nil {
		s.log.Info("schedule rejected", "pattern", spec.Pattern, "error", err)
		return writeFailure(c, err)
	}
	now := s.clock()
	id := s.store.Create(sched, now)
	s.log.Debug("schedule created", "id", id, "pattern", sched.Pattern, "block_dim", sched.BlockDim())
	return c.JSON(http.StatusCreated, ScheduleResponse{
		ID:        id,
		Object:    "schedule",
		CreatedAt: now.Unix(),
		Schedule:  sched,
	})
}

func (s *Server) handleListSchedules(c *echo.Context) error {
	recs := s.store.List()
	list := ScheduleList{Object: "list", Data: make([]ScheduleResponse, 0, len(recs))}
	for _, rec := range recs {
		list.Data = append(list.Data, ScheduleResponse{
			ID:        rec.Schedule.ID,
			Object:    "schedule",
			CreatedAt: rec.CreatedAt.Unix(),
		})
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetSchedule(c *echo.Context) error {
	id := c.Param("id")
	rec, ok := s.store.Get(id)
	if !ok {
		return writeFailure(c, fmt.Errorf("%w: %s", ErrNotFound, id))
	}
	return c.JSON(http.StatusOK, ScheduleResponse{
		ID:        id,
		Object:    "schedule",
		CreatedAt: rec.CreatedAt.Unix(),
		Schedule:  rec.Schedule,
	})
}

func (s *Server) handleDeleteSchedule(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeFailure(c, fmt.Errorf("%w: %s", ErrNotFound, id))
	}
	return c.JSON(http.StatusOK, DeleteScheduleResp{ID: id, Object: "schedule.deleted", Deleted: true})
}

func (s *Server) handleBatch(c *echo.Context) error {
	specs, err := driver.DecodeRequests(c.Request().Body)
	if err != nil {
		return writeFailure(c, err)
	}
	if len(specs) == 0 {
		return writeFailure(c, newInvalidRequest("batch is empty"))
	}
	runner := &batch.Runner{Limit: s.batchLimit, Registry: s.registry, Schedule: s.schedule}
	results, err := runner.Run(s.requestContext(c), specs)
	if err != nil {
		return writeFailure(c, err)
	}
	now := s.clock()
	for i := range results {
		if results[i].OK() {
			results[i].ID = s.store.Create(results[i].Schedule, now)
		}
	}
	ok, failed := batch.Summary(results)
	return c.JSON(http.StatusOK, BatchResponse{Object: "batch", Succeeded: ok, Failed: failed, Results: results})
}

func writeFailure(c *echo.Context, err error) error {
	status, typ := statusOf(err)
	var (
		phase string
		se    *schedule.Error
	)
	if errors.As(err, &se) && se.Phase != schedule.PhaseStart {
		phase = se.Phase.String()
	}
	return writeError(c, status, typ, err.Error(), phase)
}

func writeError(c *echo.Context, status int, errType, msg, phase string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Phase:   phase,
		},
	})
}
