package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tableguard/tableguard/internal/api"
	"github.com/tableguard/tableguard/internal/cache"
	"github.com/tableguard/tableguard/internal/config"
	"github.com/tableguard/tableguard/internal/middleware"
	"github.com/tableguard/tableguard/internal/queue"
	"github.com/tableguard/tableguard/internal/schedule"
	"github.com/tableguard/tableguard/internal/scheduler"
	"github.com/tableguard/tableguard/pkg/types"
	"go.uber.org/zap"
)

const scheduleListCacheKey = "schedules:list"

// Server exposes the scheduler trigger, the manual run-now override, and the
// schedule/job read paths over HTTP.
type Server struct {
	config   *config.Config
	driver   *scheduler.Driver
	repo     scheduler.Repository
	queue    *queue.Queue
	resolver *schedule.Resolver
	cache    *cache.Cache
	logger   *zap.Logger
	router   *gin.Engine
	server   *http.Server
}

func New(cfg *config.Config, driver *scheduler.Driver, repo scheduler.Repository, q *queue.Queue, resolver *schedule.Resolver, c *cache.Cache, logger *zap.Logger) *Server {
	s := &Server{
		config:   cfg,
		driver:   driver,
		repo:     repo,
		queue:    q,
		resolver: resolver,
		cache:    c,
		logger:   logger,
	}

	s.setupRouter()
	s.setupServer()

	return s
}

func (s *Server) setupRouter() {
	if s.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.CORS())

	s.router.GET("/health", s.healthHandler)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/scheduler/tick", middleware.RateLimit(60, time.Minute), s.tickHandler)

		v1.POST("/schedules", s.createScheduleHandler)
		v1.GET("/schedules", s.listSchedulesHandler)
		v1.GET("/schedules/:id", s.getScheduleHandler)
		v1.PUT("/schedules/:id", s.updateScheduleHandler)
		v1.DELETE("/schedules/:id", s.deleteScheduleHandler)
		v1.POST("/schedules/:id/run", s.runNowHandler)

		v1.POST("/scans", s.enqueueScanHandler)
		v1.GET("/jobs/:id", s.getJobHandler)
		v1.GET("/queue/stats", s.queueStatsHandler)
		v1.GET("/cache/stats", s.cacheStatsHandler)
	}
}

func (s *Server) setupServer() {
	s.server = &http.Server{
		Addr:         s.config.Server.Address(),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		zap.String("address", s.server.Addr),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop server gracefully: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) healthHandler(c *gin.Context) {
	type healthChecker interface {
		Health(ctx context.Context) error
	}

	if hc, ok := s.repo.(healthChecker); ok {
		if err := hc.Health(c.Request.Context()); err != nil {
			s.logger.Error("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, api.HealthResponse{
		Status:    "healthy",
		Version:   "1.0.0",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// tickHandler is the external trigger: one invocation, one driver pass.
func (s *Server) tickHandler(c *gin.Context) {
	result, err := s.driver.Tick(c.Request.Context())
	if err != nil {
		s.logger.Error("Scheduler tick failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Scheduler tick failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, api.TickResponse{
		Due:        result.Due,
		Dispatched: result.Dispatched,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		Skipped:    result.Skipped,
	})
}

func (s *Server) createScheduleHandler(c *gin.Context) {
	var req api.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	sched := types.NewSchedule(types.Target{
		Database: req.Database,
		Schema:   req.Schema,
		Table:    req.Table,
	}, req.ScanType, req.RecurrenceType)

	sched.TimeOfDay = req.TimeOfDay
	sched.DaysOfWeek = req.DaysOfWeek
	sched.Timezone = req.Timezone
	if req.MaxFailures != nil {
		sched.MaxFailures = *req.MaxFailures
	}
	if req.OnFailureAction != nil {
		sched.OnFailureAction = *req.OnFailureAction
	}

	if sched.IsRecurring {
		next, err := s.resolver.NextRunForSchedule(sched)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid recurrence configuration",
				"details": err.Error(),
			})
			return
		}
		sched.NextRunAt = next
	} else {
		// One-shot schedules run on the next tick.
		sched.NextRunAt = time.Now().UTC()
	}

	if err := s.repo.Create(c.Request.Context(), sched); err != nil {
		s.logger.Error("Failed to create schedule", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create schedule",
			"details": err.Error(),
		})
		return
	}

	s.cache.Delete(scheduleListCacheKey)

	s.logger.Info("Schedule created",
		zap.String("schedule_id", sched.ID),
		zap.String("scan_type", string(sched.ScanType)),
		zap.Time("next_run_at", sched.NextRunAt),
	)

	c.JSON(http.StatusCreated, s.scheduleResponse(sched))
}

// listSchedulesHandler serves the dashboard's schedule list through the
// result cache so repeated polling does not hit the repository every time.
func (s *Server) listSchedulesHandler(c *gin.Context) {
	v, err := s.cache.GetOrSet(c.Request.Context(), scheduleListCacheKey, cache.TTLFast, func(ctx context.Context) (any, error) {
		schedules, err := s.repo.List(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]api.ScheduleResponse, 0, len(schedules))
		for _, sched := range schedules {
			out = append(out, s.scheduleResponse(sched))
		}
		return out, nil
	})
	if err != nil {
		s.logger.Error("Failed to list schedules", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list schedules",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"schedules": v})
}

func (s *Server) getScheduleHandler(c *gin.Context) {
	sched, err := s.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Schedule not found",
		})
		return
	}

	c.JSON(http.StatusOK, s.scheduleResponse(sched))
}

func (s *Server) updateScheduleHandler(c *gin.Context) {
	var req api.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	sched, err := s.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Schedule not found",
		})
		return
	}

	if req.RecurrenceType != nil {
		sched.RecurrenceType = *req.RecurrenceType
		sched.IsRecurring = *req.RecurrenceType != types.RecurrenceNone
	}
	if req.TimeOfDay != nil {
		sched.TimeOfDay = *req.TimeOfDay
	}
	if req.DaysOfWeek != nil {
		sched.DaysOfWeek = req.DaysOfWeek
	}
	if req.Timezone != nil {
		sched.Timezone = *req.Timezone
	}
	if req.Status != nil {
		sched.Status = *req.Status
	}
	if req.MaxFailures != nil {
		sched.MaxFailures = *req.MaxFailures
	}
	if req.OnFailureAction != nil {
		sched.OnFailureAction = *req.OnFailureAction
	}

	if sched.IsRecurring {
		next, err := s.resolver.NextRunForSchedule(sched)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid recurrence configuration",
				"details": err.Error(),
			})
			return
		}
		sched.NextRunAt = next
	}

	if err := s.repo.Update(c.Request.Context(), sched); err != nil {
		s.logger.Error("Failed to update schedule", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update schedule",
		})
		return
	}

	s.cache.Delete(scheduleListCacheKey)
	c.JSON(http.StatusOK, s.scheduleResponse(sched))
}

func (s *Server) deleteScheduleHandler(c *gin.Context) {
	if err := s.repo.SoftDelete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Schedule not found",
		})
		return
	}

	s.cache.Delete(scheduleListCacheKey)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// runNowHandler is the manual override: the schedule becomes due immediately
// and the next tick picks it up.
func (s *Server) runNowHandler(c *gin.Context) {
	if err := s.driver.RunNow(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Schedule not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}

func (s *Server) enqueueScanHandler(c *gin.Context) {
	var req api.EnqueueScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	maxRetries := s.config.Queue.MaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	jobID, err := s.queue.Enqueue(queue.JobSpec{
		ScanType: req.ScanType,
		Target: types.Target{
			Database: req.Database,
			Schema:   req.Schema,
			Table:    req.Table,
		},
		Priority:   req.Priority,
		MaxRetries: maxRetries,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Failed to enqueue scan",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, api.EnqueueScanResponse{
		JobID:     jobID,
		Status:    string(types.StatusPending),
		CreatedAt: time.Now().UTC(),
	})
}

func (s *Server) getJobHandler(c *gin.Context) {
	job, ok := s.queue.GetJob(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}

	resp := api.JobStatusResponse{
		JobID:       job.ID,
		ScanType:    job.ScanType,
		Target:      job.Target,
		Status:      job.Status,
		RetryCount:  job.RetryCount,
		MaxRetries:  job.MaxRetries,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Error:       job.Error,
	}
	if job.Result != nil {
		resp.RunID = job.Result.RunID
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) queueStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.queue.GetStats())
}

func (s *Server) cacheStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.cache.GetStats())
}

func (s *Server) scheduleResponse(sched *types.Schedule) api.ScheduleResponse {
	resp := api.ScheduleResponse{Schedule: sched}
	if sched.IsRecurring {
		if expr, err := schedule.ToIntervalExpression(sched.RecurrenceType, sched.TimeOfDay, sched.DaysOfWeek); err == nil {
			resp.Description = schedule.Describe(expr)
		}
	}
	return resp
}
