// Package registry runs the student registration pipeline: per-image face
// encoding fanned out over a bounded worker pool, deterministic aggregation
// into one artifact per student, and skip-if-present semantics against the
// persisted store.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/kozaktomas/roll-call/internal/constants"
	"github.com/kozaktomas/roll-call/internal/database"
	"github.com/kozaktomas/roll-call/internal/detector"
	"github.com/kozaktomas/roll-call/internal/facematch"
)

// Student is one registration request: an identity plus the images to encode.
type Student struct {
	ID         string
	Name       string
	ImagePaths []string
}

// Options control one RegisterBatch run.
type Options struct {
	// Workers bounds the number of concurrent per-image encode tasks.
	Workers int
	// EncodeTimeout is the hard per-image deadline covering decode, detection
	// and embedding together.
	EncodeTimeout time.Duration
	// Force re-registers students that already have a persisted artifact.
	Force bool
	// MinFaceSize filters out detections smaller than this many pixels.
	MinFaceSize int
	// OnProgress, when set, is called once per finished image task.
	OnProgress func(ProgressInfo)
}

func (o *Options) fillDefaults() {
	if o.Workers <= 0 {
		o.Workers = constants.DefaultWorkerPoolSize
	}
	if o.EncodeTimeout <= 0 {
		o.EncodeTimeout = constants.DefaultEncodeTimeoutSec * time.Second
	}
	if o.MinFaceSize <= 0 {
		o.MinFaceSize = constants.DefaultMinFaceSize
	}
}

// Pipeline wires the perception engine, the artifact store and the in-memory
// gallery together for registration runs.
type Pipeline struct {
	engine   detector.Engine
	students database.StudentWriter
	gallery  *facematch.Gallery
}

// NewPipeline creates a registration pipeline.
func NewPipeline(engine detector.Engine, students database.StudentWriter, gallery *facematch.Gallery) *Pipeline {
	return &Pipeline{
		engine:   engine,
		students: students,
		gallery:  gallery,
	}
}

// RegisterBatch registers every student in the batch. Students with an
// existing persisted artifact are skipped (unless opts.Force) without any
// image work. The remaining images fan out over the worker pool; one failed
// image or student never aborts the batch. A student succeeds when at least
// one image yields an embedding; the artifact is written all-or-nothing and
// the gallery is updated only after the write succeeds.
//
// Cancelling ctx stops scheduling new work; nothing is persisted for
// students whose tasks did not all complete, and ctx.Err() is returned
// alongside the partial result.
func (p *Pipeline) RegisterBatch(ctx context.Context, batch []Student, opts Options) (*BatchResult, error) {
	opts.fillDefaults()

	result := &BatchResult{Outcomes: make(map[string]Outcome, len(batch))}

	// Resolve skips up front so the pool only carries real work.
	type job struct {
		student Student
		results []imageResult
	}
	var jobs []*job
	totalImages := 0
	for _, st := range batch {
		id := facematch.NormalizeStudentID(st.ID)
		if id == "" {
			result.Outcomes[st.ID] = Outcome{
				StudentID:     st.ID,
				Name:          st.Name,
				FailureReason: FailureNoEmbeddings,
			}
			result.Failed++
			continue
		}
		st.ID = id

		if !opts.Force {
			exists, err := p.students.HasStudent(ctx, st.ID)
			if err != nil {
				return result, fmt.Errorf("failed to check student %s: %w", st.ID, err)
			}
			if exists {
				result.Outcomes[st.ID] = Outcome{
					StudentID: st.ID,
					Name:      st.Name,
					Success:   true,
					Skipped:   true,
				}
				result.Skipped++
				continue
			}
		}

		jobs = append(jobs, &job{
			student: st,
			results: make([]imageResult, len(st.ImagePaths)),
		})
		totalImages += len(st.ImagePaths)
	}

	// Bounded fan-out: each task writes only its own result slot, so the
	// completion order of workers never changes the aggregate.
	sem := make(chan struct{}, opts.Workers)
	var wg sync.WaitGroup
	var done int64
	var doneMu sync.Mutex

	for _, j := range jobs {
		for i, path := range j.student.ImagePaths {
			wg.Add(1)
			go func(j *job, i int, path string) {
				defer wg.Done()

				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					j.results[i] = imageResult{Path: path, Reason: FailureCancelled, Err: ctx.Err()}
					return
				}
				defer func() { <-sem }()

				res := p.processImage(ctx, path, opts)
				j.results[i] = res

				if opts.OnProgress != nil {
					doneMu.Lock()
					done++
					info := ProgressInfo{
						StudentID: j.student.ID,
						Path:      path,
						Current:   int(done),
						Total:     totalImages,
						Reason:    res.Reason,
					}
					doneMu.Unlock()
					opts.OnProgress(info)
				}
			}(j, i, path)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}

	// Aggregate in input order so the artifact content is independent of
	// worker scheduling.
	for _, j := range jobs {
		outcome := p.persistStudent(ctx, j.student, j.results)
		result.Outcomes[j.student.ID] = outcome
		if outcome.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	return result, nil
}

// persistStudent folds one student's per-image results into an artifact,
// writes it, and mirrors it into the gallery.
func (p *Pipeline) persistStudent(ctx context.Context, st Student, results []imageResult) Outcome {
	outcome := Outcome{
		StudentID:       st.ID,
		Name:            st.Name,
		ImagesAttempted: len(st.ImagePaths),
	}

	var embeddings [][]float32
	var lastFailure FailureReason
	for _, res := range results {
		if res.Reason != FailureNone {
			lastFailure = res.Reason
			if res.Err != nil {
				log.Printf("registry: student %s image %s: %s: %v", st.ID, res.Path, res.Reason, res.Err)
			} else {
				log.Printf("registry: student %s image %s: %s", st.ID, res.Path, res.Reason)
			}
			continue
		}
		embeddings = append(embeddings, res.Embedding)
	}

	if len(embeddings) == 0 {
		outcome.FailureReason = FailureNoEmbeddings
		if lastFailure != FailureNone {
			outcome.FailureReason = lastFailure
		}
		return outcome
	}

	now := time.Now().UTC()
	stored := database.StoredStudent{
		ID:           st.ID,
		Name:         st.Name,
		Embeddings:   embeddings,
		Dim:          p.gallery.Dim(),
		RegisteredAt: now,
		ImageCount:   len(embeddings),
	}
	if err := p.students.SaveStudent(ctx, stored); err != nil {
		log.Printf("registry: student %s: failed to persist artifact: %v", st.ID, err)
		outcome.FailureReason = FailureStorage
		return outcome
	}

	if err := p.gallery.Add(facematch.StudentRecord{
		ID:           st.ID,
		Name:         st.Name,
		Embeddings:   embeddings,
		RegisteredAt: now,
		ImageCount:   len(embeddings),
	}); err != nil {
		// The artifact is persisted; the gallery will pick it up on the next
		// load. Report success but leave a trace.
		log.Printf("registry: student %s: persisted but gallery update failed: %v", st.ID, err)
	}

	outcome.Success = true
	outcome.EmbeddingCount = len(embeddings)
	return outcome
}

// processImage runs one image through decode, detection, merging and
// embedding under its own deadline. It returns exactly one embedding, taken
// from the largest surviving face, on success.
func (p *Pipeline) processImage(ctx context.Context, path string, opts Options) imageResult {
	taskCtx, cancel := context.WithTimeout(ctx, opts.EncodeTimeout)
	defer cancel()

	data, err := os.ReadFile(path)
	if err != nil {
		return imageResult{Path: path, Reason: FailureUnreadable, Err: err}
	}

	prepared, err := detector.Preprocess(data)
	if err != nil {
		return imageResult{Path: path, Reason: FailureUnreadable, Err: err}
	}

	boxes, err := p.engine.DetectFaces(taskCtx, prepared)
	if err != nil {
		return imageResult{Path: path, Reason: classify(taskCtx, err), Err: err}
	}

	frame := facematch.MergeDetections(opts.MinFaceSize, boxes)
	if len(frame.Boxes) == 0 {
		return imageResult{Path: path, Reason: FailureNoFace}
	}

	// One embedding per registration image: the largest face is the subject.
	embeddings, err := p.engine.EncodeFaces(taskCtx, prepared, frame.Boxes[:1])
	if err != nil {
		return imageResult{Path: path, Reason: classify(taskCtx, err), Err: err}
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return imageResult{Path: path, Reason: FailureEncode, Err: errors.New("service returned empty embedding")}
	}

	return imageResult{Path: path, Embedding: embeddings[0]}
}

// classify maps a perception error to a failure reason, distinguishing the
// per-image deadline and caller aborts from ordinary service failures.
func classify(ctx context.Context, err error) FailureReason {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return FailureCancelled
	default:
		return FailureEncode
	}
}
