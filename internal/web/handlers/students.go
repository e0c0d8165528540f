package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/roll-call/internal/constants"
	"github.com/kozaktomas/roll-call/internal/database"
	"github.com/kozaktomas/roll-call/internal/facematch"
	"github.com/kozaktomas/roll-call/internal/registry"
)

// StudentsHandler handles student listing and registration endpoints.
type StudentsHandler struct {
	pipeline *registry.Pipeline
	students database.StudentReader
	gallery  *facematch.Gallery
}

// NewStudentsHandler creates a new students handler.
func NewStudentsHandler(pipeline *registry.Pipeline, students database.StudentReader, gallery *facematch.Gallery) *StudentsHandler {
	return &StudentsHandler{
		pipeline: pipeline,
		students: students,
		gallery:  gallery,
	}
}

// studentEntry is one student in a list or detail response.
type studentEntry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ImageCount   int       `json:"image_count"`
	Embeddings   int       `json:"embeddings"`
	RegisteredAt time.Time `json:"registered_at"`
}

// List returns all persisted students.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	students, err := h.students.ListStudents(r.Context())
	if err != nil {
		log.Printf("listing students failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list students")
		return
	}

	entries := make([]studentEntry, 0, len(students))
	for _, s := range students {
		entries = append(entries, studentEntry{
			ID:           s.ID,
			Name:         s.Name,
			ImageCount:   s.ImageCount,
			Embeddings:   len(s.Embeddings),
			RegisteredAt: s.RegisteredAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(entries),
		"students": entries,
	})
}

// Get returns one student by ID.
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := facematch.NormalizeStudentID(chi.URLParam(r, "id"))

	student, err := h.students.GetStudent(r.Context(), id)
	if err != nil {
		log.Printf("loading student %s failed: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to load student")
		return
	}
	if student == nil {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}

	respondJSON(w, http.StatusOK, studentEntry{
		ID:           student.ID,
		Name:         student.Name,
		ImageCount:   student.ImageCount,
		Embeddings:   len(student.Embeddings),
		RegisteredAt: student.RegisteredAt,
	})
}

// saveUploadedFiles saves multipart files to a temporary directory and returns their paths.
func saveUploadedFiles(files []*multipart.FileHeader, tempDir string) ([]string, error) {
	var filePaths []string
	for _, fileHeader := range files {
		if err := func() error {
			file, err := fileHeader.Open()
			if err != nil {
				return fmt.Errorf("failed to open file: %s", fileHeader.Filename)
			}
			defer file.Close()

			safeName := filepath.Base(fileHeader.Filename)
			tempPath := filepath.Join(tempDir, safeName)
			out, err := os.Create(tempPath) //nolint:gosec // filename sanitized via filepath.Base
			if err != nil {
				return errors.New("failed to create temp file")
			}

			if _, err := io.Copy(out, file); err != nil {
				out.Close()
				return errors.New("failed to save file")
			}
			out.Close()

			filePaths = append(filePaths, tempPath)
			return nil
		}(); err != nil {
			return nil, err
		}
	}
	return filePaths, nil
}

// Register handles a multipart registration request: student_id, name and one
// or more face images. A student that is already registered is skipped unless
// force=true is set.
func (h *StudentsHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	studentID := r.FormValue("student_id")
	if studentID == "" {
		respondError(w, http.StatusBadRequest, "student_id is required")
		return
	}
	name := r.FormValue("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	force := r.FormValue("force") == "true"

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no images provided")
		return
	}

	tempDir, err := os.MkdirTemp("", "roll-call-register-*")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create temp directory")
		return
	}
	defer os.RemoveAll(tempDir)

	filePaths, err := saveUploadedFiles(files, tempDir)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	batch := []registry.Student{{
		ID:         studentID,
		Name:       name,
		ImagePaths: filePaths,
	}}
	result, err := h.pipeline.RegisterBatch(r.Context(), batch, registry.Options{Force: force})
	if err != nil {
		log.Printf("registration of %s failed: %v", sanitizeForLog(studentID), err)
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	outcome := result.Outcomes[facematch.NormalizeStudentID(studentID)]
	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, outcome)
}

// Stats returns gallery and store counters.
func (h *StudentsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	count, err := h.students.CountStudents(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count students")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"students_persisted": count,
		"students_loaded":    h.gallery.Count(),
		"embeddings_loaded":  h.gallery.EmbeddingCount(),
	})
}
