package facematch

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/roll-call/internal/constants"
)

// ErrDimensionMismatch reports an embedding whose dimension does not match
// the gallery. This is a configuration error (wrong encoder model wired to
// the wrong gallery) and is never silently treated as an unknown face.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// StudentRecord is one student's registered identity: the persisted artifact
// shape and the unit of gallery mutation.
type StudentRecord struct {
	ID           string
	Name         string
	Embeddings   [][]float32
	RegisteredAt time.Time
	ImageCount   int
}

// Gallery is the in-memory index mapping student identities to their
// registered embeddings. It owns both the per-student map and the flattened
// (embedding, studentID) sequence the matcher scans; every mutation rebuilds
// the flattened state under the write lock so readers never observe the two
// diverged. For large galleries an HNSW graph accelerates the scan, with the
// exact linear scan remaining the reference behavior.
type Gallery struct {
	mu  sync.RWMutex
	dim int

	students map[string]*StudentRecord

	// Derived state, rebuilt atomically on every mutation.
	flatEmbeddings [][]float32
	flatIDs        []string
	graph          *hnsw.Graph[int]
}

// NewGallery creates an empty gallery for embeddings of the given dimension.
func NewGallery(dim int) *Gallery {
	if dim <= 0 {
		dim = constants.DefaultEmbeddingDim
	}
	return &Gallery{
		dim:      dim,
		students: make(map[string]*StudentRecord),
	}
}

// Dim returns the embedding dimension the gallery was created for.
func (g *Gallery) Dim() int {
	return g.dim
}

// Add inserts or replaces a student's embedding set and rebuilds the
// flattened lookup in the same critical section. Re-registration replaces the
// previous set entirely. Embeddings of the wrong dimension are rejected with
// ErrDimensionMismatch.
func (g *Gallery) Add(rec StudentRecord) error {
	id := NormalizeStudentID(rec.ID)
	if id == "" {
		return errors.New("empty student id")
	}
	if len(rec.Embeddings) == 0 {
		return fmt.Errorf("student %s: no embeddings", id)
	}
	for i, emb := range rec.Embeddings {
		if len(emb) != g.dim {
			return fmt.Errorf("student %s embedding %d: got dim %d, gallery dim %d: %w",
				id, i, len(emb), g.dim, ErrDimensionMismatch)
		}
	}

	stored := rec
	stored.ID = id
	stored.Embeddings = cloneEmbeddings(rec.Embeddings)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.students[id] = &stored
	g.rebuildLocked()
	return nil
}

// Load merges persisted student records into the gallery. A corrupt record
// (missing ID, empty embedding set, wrong dimension) is skipped with a
// warning and does not abort the load. Loading the same records twice yields
// the same final state as loading them once: last load wins per student.
// Returns the number of records loaded and the number skipped.
func (g *Gallery) Load(records []StudentRecord) (loaded, skipped int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, rec := range records {
		if err := g.validate(rec); err != nil {
			log.Printf("gallery: skipping student record %q: %v", rec.ID, err)
			skipped++
			continue
		}
		stored := rec
		stored.ID = NormalizeStudentID(rec.ID)
		stored.Embeddings = cloneEmbeddings(rec.Embeddings)
		g.students[stored.ID] = &stored
		loaded++
	}

	g.rebuildLocked()
	return loaded, skipped
}

func (g *Gallery) validate(rec StudentRecord) error {
	if NormalizeStudentID(rec.ID) == "" {
		return errors.New("empty student id")
	}
	if len(rec.Embeddings) == 0 {
		return errors.New("no embeddings")
	}
	for i, emb := range rec.Embeddings {
		if len(emb) != g.dim {
			return fmt.Errorf("embedding %d has dim %d, want %d", i, len(emb), g.dim)
		}
	}
	return nil
}

// Snapshot returns a copy of one student's record for persistence,
// or false if the student is not registered.
func (g *Gallery) Snapshot(studentID string) (StudentRecord, bool) {
	id := NormalizeStudentID(studentID)

	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.students[id]
	if !ok {
		return StudentRecord{}, false
	}
	out := *rec
	out.Embeddings = cloneEmbeddings(rec.Embeddings)
	return out, true
}

// Has reports whether a student is registered in the gallery.
func (g *Gallery) Has(studentID string) bool {
	id := NormalizeStudentID(studentID)

	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.students[id]
	return ok
}

// Name returns the display name for a registered student.
func (g *Gallery) Name(studentID string) string {
	id := NormalizeStudentID(studentID)

	g.mu.RLock()
	defer g.mu.RUnlock()
	if rec, ok := g.students[id]; ok {
		return rec.Name
	}
	return ""
}

// Students returns all registered records sorted by ID.
func (g *Gallery) Students() []StudentRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]StudentRecord, 0, len(g.students))
	for _, rec := range g.students {
		cp := *rec
		cp.Embeddings = cloneEmbeddings(rec.Embeddings)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered students.
func (g *Gallery) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.students)
}

// EmbeddingCount returns the size of the flattened lookup sequence.
func (g *Gallery) EmbeddingCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.flatEmbeddings)
}

// Nearest finds the registered embedding closest to the query and returns its
// owner and Euclidean distance. ok is false when the gallery is empty. A
// query of the wrong dimension returns ErrDimensionMismatch.
func (g *Gallery) Nearest(embedding []float32) (studentID string, distance float64, ok bool, err error) {
	if len(embedding) != g.dim {
		return "", 0, false, fmt.Errorf("query has dim %d, gallery dim %d: %w",
			len(embedding), g.dim, ErrDimensionMismatch)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.flatEmbeddings) == 0 {
		return "", 0, false, nil
	}

	if g.graph != nil {
		if id, dist, found := g.nearestHNSWLocked(embedding); found {
			return id, dist, true, nil
		}
	}

	best := -1
	bestDist := 0.0
	for i, known := range g.flatEmbeddings {
		d := EuclideanDistance(known, embedding)
		if best == -1 || d < bestDist {
			best = i
			bestDist = d
		}
	}

	return g.flatIDs[best], bestDist, true, nil
}

// nearestHNSWLocked searches the approximate index. The returned distance is
// recomputed exactly against the stored embedding.
func (g *Gallery) nearestHNSWLocked(embedding []float32) (string, float64, bool) {
	neighbors := g.graph.Search(embedding, 1)
	if len(neighbors) == 0 {
		return "", 0, false
	}
	idx := neighbors[0].Key
	if idx < 0 || idx >= len(g.flatIDs) {
		return "", 0, false
	}
	return g.flatIDs[idx], EuclideanDistance(g.flatEmbeddings[idx], embedding), true
}

// rebuildLocked regenerates the flattened lookup sequence, and the HNSW graph
// once the gallery is large enough to benefit. Caller holds the write lock.
func (g *Gallery) rebuildLocked() {
	ids := make([]string, 0, len(g.students))
	for id := range g.students {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	g.flatEmbeddings = g.flatEmbeddings[:0]
	g.flatIDs = g.flatIDs[:0]
	for _, id := range ids {
		for _, emb := range g.students[id].Embeddings {
			g.flatEmbeddings = append(g.flatEmbeddings, emb)
			g.flatIDs = append(g.flatIDs, id)
		}
	}

	if len(g.flatEmbeddings) < constants.HNSWMinGallerySize {
		g.graph = nil
		return
	}

	graph := hnsw.NewGraph[int]()
	graph.M = constants.HNSWMaxNeighbors
	graph.Ml = 1.0 / float64(constants.HNSWMaxNeighbors)
	graph.Distance = hnsw.EuclideanDistance
	for i, emb := range g.flatEmbeddings {
		graph.Add(hnsw.MakeNode(i, emb))
	}
	g.graph = graph
}

func cloneEmbeddings(in [][]float32) [][]float32 {
	out := make([][]float32, len(in))
	for i, emb := range in {
		cp := make([]float32, len(emb))
		copy(cp, emb)
		out[i] = cp
	}
	return out
}
