package handlers

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/roll-call/internal/attendance"
	"github.com/kozaktomas/roll-call/internal/constants"
	"github.com/kozaktomas/roll-call/internal/database"
	"github.com/kozaktomas/roll-call/internal/detector"
	"github.com/kozaktomas/roll-call/internal/facematch"
)

// AttendanceHandler handles frame processing and attendance report endpoints.
type AttendanceHandler struct {
	engine      detector.Engine
	matcher     *facematch.Matcher
	recorder    *attendance.Recorder
	gallery     *facematch.Gallery
	minFaceSize int
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(engine detector.Engine, matcher *facematch.Matcher, recorder *attendance.Recorder, gallery *facematch.Gallery, minFaceSize int) *AttendanceHandler {
	return &AttendanceHandler{
		engine:      engine,
		matcher:     matcher,
		recorder:    recorder,
		gallery:     gallery,
		minFaceSize: minFaceSize,
	}
}

// frameResponse is the result of processing one uploaded frame.
type frameResponse struct {
	SourceRef     string                  `json:"source_ref"`
	FacesDetected int                     `json:"faces_detected"`
	Results       []facematch.MatchResult `json:"results"`
	Summary       *attendance.Summary     `json:"summary"`
}

// ProcessFrame handles an uploaded classroom frame: detects faces, matches
// them against the gallery and records attendance for everyone recognized.
func (h *AttendanceHandler) ProcessFrame(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	sourceRef := r.FormValue("source_ref")
	if sourceRef == "" {
		sourceRef = uuid.NewString()
	}

	prepared, err := detector.Preprocess(imageData)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not decode image")
		return
	}

	boxes, err := h.engine.DetectFaces(r.Context(), prepared)
	if err != nil {
		log.Printf("frame %s: detection failed: %v", sanitizeForLog(sourceRef), err)
		respondError(w, http.StatusBadGateway, "face detection failed")
		return
	}

	frame := facematch.MergeDetections(h.minFaceSize, boxes)
	if len(frame.Boxes) == 0 {
		respondJSON(w, http.StatusOK, frameResponse{
			SourceRef: sourceRef,
			Results:   []facematch.MatchResult{},
			Summary:   &attendance.Summary{},
		})
		return
	}

	embeddings, err := h.engine.EncodeFaces(r.Context(), prepared, frame.Boxes)
	if err != nil {
		log.Printf("frame %s: encoding failed: %v", sanitizeForLog(sourceRef), err)
		respondError(w, http.StatusBadGateway, "face encoding failed")
		return
	}

	results, err := h.matcher.MatchFrame(frame, embeddings)
	if err != nil {
		log.Printf("frame %s: matching failed: %v", sanitizeForLog(sourceRef), err)
		respondError(w, http.StatusInternalServerError, "face matching failed")
		return
	}

	markings := make([]attendance.Marking, 0, len(results))
	for _, res := range results {
		markings = append(markings, attendance.Marking{
			StudentID:  res.StudentID,
			Confidence: res.Confidence,
		})
	}

	summary, err := h.recorder.RecordFrame(r.Context(), markings, time.Now(), sourceRef)
	if err != nil {
		log.Printf("frame %s: recording failed: %v", sanitizeForLog(sourceRef), err)
		respondError(w, http.StatusInternalServerError, "failed to record attendance")
		return
	}

	respondJSON(w, http.StatusOK, frameResponse{
		SourceRef:     sourceRef,
		FacesDetected: len(frame.Boxes),
		Results:       results,
		Summary:       summary,
	})
}

// attendanceEntry is one attendance record in a report response.
type attendanceEntry struct {
	StudentID  string    `json:"student_id"`
	Name       string    `json:"name,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	SourceRef  string    `json:"source_ref,omitempty"`
}

// GetByDate returns all attendance records for one date (YYYY-MM-DD).
func (h *AttendanceHandler) GetByDate(w http.ResponseWriter, r *http.Request) {
	dateStr := chi.URLParam(r, "date")
	date, err := time.Parse(database.DateFormat, dateStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q, want YYYY-MM-DD", sanitizeForLog(dateStr)))
		return
	}

	records, err := h.recorder.Report(r.Context(), date)
	if err != nil {
		log.Printf("attendance report for %s failed: %v", dateStr, err)
		respondError(w, http.StatusInternalServerError, "failed to load attendance")
		return
	}

	entries := make([]attendanceEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, attendanceEntry{
			StudentID:  rec.StudentID,
			Name:       h.gallery.Name(rec.StudentID),
			Timestamp:  rec.Timestamp,
			Confidence: rec.Confidence,
			SourceRef:  rec.SourceRef,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"date":    date.Format(database.DateFormat),
		"present": len(entries),
		"records": entries,
	})
}
