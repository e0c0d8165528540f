package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/roll-call/internal/attendance"
	"github.com/kozaktomas/roll-call/internal/database"
	"github.com/kozaktomas/roll-call/internal/detector"
	"github.com/kozaktomas/roll-call/internal/facematch"
	"github.com/kozaktomas/roll-call/internal/registry"
	"github.com/kozaktomas/roll-call/internal/web/handlers"
)

func (s *Server) setupRoutes(engine detector.Engine, matcher *facematch.Matcher, recorder *attendance.Recorder, pipeline *registry.Pipeline, store database.Store, gallery *facematch.Gallery) {
	attendanceHandler := handlers.NewAttendanceHandler(engine, matcher, recorder, gallery, s.config.Matching.MinFaceSize)
	studentsHandler := handlers.NewStudentsHandler(pipeline, store.Students(), gallery)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Attendance
		r.Post("/attendance/frame", attendanceHandler.ProcessFrame)
		r.Get("/attendance/{date}", attendanceHandler.GetByDate)

		// Students
		r.Get("/students", studentsHandler.List)
		r.Post("/students", studentsHandler.Register)
		r.Get("/students/{id}", studentsHandler.Get)

		// Stats
		r.Get("/stats", studentsHandler.Stats)
	})
}
