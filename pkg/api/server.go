package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/learnizone/enrollcore/pkg/enrollment"
	"github.com/learnizone/enrollcore/pkg/log"
	"github.com/learnizone/enrollcore/pkg/types"
	"github.com/rs/zerolog"
)

// Service is the subset of the enrollment service exposed over HTTP
type Service interface {
	Enroll(ctx context.Context, userID, courseID string) (*types.Enrollment, error)
	Unenroll(ctx context.Context, userID, courseID string) error
	GetEnrollment(ctx context.Context, userID, courseID string) (*types.Enrollment, error)
	RecordProgress(ctx context.Context, userID, courseID string, update enrollment.ProgressUpdate) (*types.Enrollment, error)
	IssueCertificate(ctx context.Context, userID, courseID string) (*types.Enrollment, error)
	ListEnrollments(ctx context.Context, userID string, statuses ...types.EnrollmentStatus) ([]*types.Enrollment, error)
	ListInProgress(ctx context.Context, userID string) ([]*types.Enrollment, error)
	EnrolledCourses(ctx context.Context, userID string) ([]string, error)
	CourseStats(ctx context.Context, courseID string) (*types.CourseStats, error)
}

// Config configures the HTTP server
type Config struct {
	// RequestTimeout bounds every service call; 0 means 10s
	RequestTimeout time.Duration
}

// Server serves the enrollment API over HTTP
type Server struct {
	app      *fiber.App
	svc      Service
	tokens   *TokenManager
	validate *validator.Validate
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewServer builds the fiber app and registers every route
func NewServer(svc Service, tokens *TokenManager, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	s := &Server{
		svc:      svc,
		tokens:   tokens,
		validate: validator.New(),
		timeout:  cfg.RequestTimeout,
		logger:   log.WithComponent("api"),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "enrollcore",
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          errorHandler,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           60 * time.Second,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Use(recover.New())
	s.app.Use(s.instrument())

	s.app.Get("/health", s.health)
	s.app.Get("/ready", s.ready)
	s.app.Get("/metrics", metricsHandler())

	v1 := s.app.Group("/v1", s.authenticate())
	v1.Get("/enrollments", s.listEnrollments)
	v1.Get("/enrollments/in-progress", s.listInProgress)
	v1.Get("/me/courses", s.enrolledCourses)
	v1.Post("/courses/:courseId/enrollment", s.enroll)
	v1.Get("/courses/:courseId/enrollment", s.getEnrollment)
	v1.Delete("/courses/:courseId/enrollment", s.unenroll)
	v1.Put("/courses/:courseId/progress", s.updateProgress)
	v1.Post("/courses/:courseId/certificate", s.issueCertificate)
	v1.Get("/courses/:courseId/stats", s.courseStats)
}

// App exposes the fiber app, mainly for in-process tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on addr and blocks until the server stops
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("HTTP API listening")
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.timeout)
}

func (s *Server) enroll(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	record, err := s.svc.Enroll(ctx, callerID(c), c.Params("courseId"))
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, fiber.StatusCreated, record.View())
}

func (s *Server) unenroll(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.svc.Unenroll(ctx, callerID(c), c.Params("courseId")); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) getEnrollment(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	record, err := s.svc.GetEnrollment(ctx, callerID(c), c.Params("courseId"))
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, fiber.StatusOK, record.View())
}

// progressRequest is the body of PUT /v1/courses/:courseId/progress
type progressRequest struct {
	Progress         *float64 `json:"progress"`
	TimeSpentMinutes int      `json:"timeSpentMinutes" validate:"gte=0"`
	LessonsCompleted *int     `json:"lessonsCompleted" validate:"omitempty,gte=0"`
	TotalLessons     *int     `json:"totalLessons" validate:"omitempty,gte=0"`
	AverageQuizScore *float64 `json:"averageQuizScore" validate:"omitempty,gte=0"`
}

func (r progressRequest) empty() bool {
	return r.Progress == nil && r.TimeSpentMinutes == 0 && r.LessonsCompleted == nil &&
		r.TotalLessons == nil && r.AverageQuizScore == nil
}

func (s *Server) updateProgress(c *fiber.Ctx) error {
	var req progressRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fmt.Errorf("%w: malformed body: %v", enrollment.ErrInvalidArgument, err))
	}
	if err := s.validate.Struct(req); err != nil {
		return errorResponse(c, fmt.Errorf("%w: %v", enrollment.ErrInvalidArgument, err))
	}
	if req.empty() {
		return errorResponse(c, fmt.Errorf("%w: nothing to update", enrollment.ErrInvalidArgument))
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	record, err := s.svc.RecordProgress(ctx, callerID(c), c.Params("courseId"), enrollment.ProgressUpdate{
		Progress:         req.Progress,
		TimeSpentMinutes: req.TimeSpentMinutes,
		LessonsCompleted: req.LessonsCompleted,
		TotalLessons:     req.TotalLessons,
		AverageQuizScore: req.AverageQuizScore,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, fiber.StatusOK, record.View())
}

func (s *Server) issueCertificate(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	record, err := s.svc.IssueCertificate(ctx, callerID(c), c.Params("courseId"))
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, fiber.StatusOK, record.View())
}

func (s *Server) listEnrollments(c *fiber.Ctx) error {
	var statuses []types.EnrollmentStatus
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := types.ParseEnrollmentStatus(part)
			if err != nil {
				return errorResponse(c, fmt.Errorf("%w: %v", enrollment.ErrInvalidArgument, err))
			}
			statuses = append(statuses, status)
		}
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	records, err := s.svc.ListEnrollments(ctx, callerID(c), statuses...)
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, fiber.StatusOK, types.Views(records))
}

func (s *Server) listInProgress(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	records, err := s.svc.ListInProgress(ctx, callerID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, fiber.StatusOK, types.Views(records))
}

func (s *Server) enrolledCourses(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	courses, err := s.svc.EnrolledCourses(ctx, callerID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, fiber.StatusOK, courses)
}

func (s *Server) courseStats(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	stats, err := s.svc.CourseStats(ctx, c.Params("courseId"))
	if err != nil {
		return errorResponse(c, err)
	}
	return success(c, fiber.StatusOK, stats)
}
