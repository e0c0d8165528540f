package registry

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kozaktomas/roll-call/internal/database"
	"github.com/kozaktomas/roll-call/internal/database/mock"
	"github.com/kozaktomas/roll-call/internal/facematch"
)

const testDim = 4

// fakeEngine keys its behavior off the decoded image width, so each test
// image can steer its own path through the pipeline.
type fakeEngine struct {
	mu          sync.Mutex
	detectCalls int
	encodeCalls int

	noFaceWidth int // images of this width yield zero detections
	failWidth   int // images of this width error during encoding
}

func (f *fakeEngine) DetectFaces(ctx context.Context, imageData []byte) ([]facematch.DetectionBox, error) {
	f.mu.Lock()
	f.detectCalls++
	f.mu.Unlock()

	if imageWidth(imageData) == f.noFaceWidth {
		return nil, nil
	}
	return []facematch.DetectionBox{{Top: 0, Left: 0, Bottom: 100, Right: 100, Score: 0.95}}, nil
}

func (f *fakeEngine) EncodeFaces(ctx context.Context, imageData []byte, boxes []facematch.DetectionBox) ([][]float32, error) {
	f.mu.Lock()
	f.encodeCalls++
	f.mu.Unlock()

	w := imageWidth(imageData)
	if w == f.failWidth {
		return nil, errors.New("embedder exploded")
	}
	return [][]float32{{float32(w), 0, 0, 0}}, nil
}

func imageWidth(data []byte) int {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	return img.Bounds().Dx()
}

// writeJPEG writes a width x width test image and returns its path.
func writeJPEG(t *testing.T, dir, name string, width int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, width))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write test image: %v", err)
	}
	return path
}

func newTestPipeline(engine *fakeEngine) (*Pipeline, *mock.StudentStore, *facematch.Gallery) {
	store := mock.NewStudentStore()
	gallery := facematch.NewGallery(testDim)
	return NewPipeline(engine, store, gallery), store, gallery
}

func TestRegisterBatch(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{noFaceWidth: 50}
	pipeline, store, gallery := newTestPipeline(engine)

	batch := []Student{
		{ID: "alice", Name: "Alice Nováková", ImagePaths: []string{
			writeJPEG(t, dir, "alice-1.jpg", 64),
			writeJPEG(t, dir, "alice-2.jpg", 72),
		}},
		{ID: "bob", Name: "Bob", ImagePaths: []string{
			writeJPEG(t, dir, "bob-1.jpg", 50), // no face
		}},
		{ID: "cara", Name: "Cara", ImagePaths: []string{
			writeJPEG(t, dir, "cara-1.jpg", 80),
		}},
	}

	result, err := pipeline.RegisterBatch(context.Background(), batch, Options{Workers: 2})
	if err != nil {
		t.Fatalf("RegisterBatch() error: %v", err)
	}

	if result.Succeeded != 2 || result.Failed != 1 || result.Skipped != 0 {
		t.Fatalf("got succeeded=%d failed=%d skipped=%d, want 2/1/0",
			result.Succeeded, result.Failed, result.Skipped)
	}

	alice := result.Outcomes["ALICE"]
	if !alice.Success || alice.EmbeddingCount != 2 || alice.ImagesAttempted != 2 {
		t.Errorf("alice outcome = %+v", alice)
	}
	bob := result.Outcomes["BOB"]
	if bob.Success || bob.FailureReason != FailureNoFace {
		t.Errorf("bob outcome = %+v, want no-face failure", bob)
	}

	// One failing student never blocks the others.
	if !gallery.Has("ALICE") || !gallery.Has("CARA") || gallery.Has("BOB") {
		t.Errorf("gallery contents wrong: count=%d", gallery.Count())
	}

	stored, err := store.GetStudent(context.Background(), "ALICE")
	if err != nil || stored == nil {
		t.Fatalf("GetStudent(ALICE) = %v, %v", stored, err)
	}
	if stored.ImageCount != 2 || len(stored.Embeddings) != 2 {
		t.Errorf("stored artifact = %+v", stored)
	}
	if stored.Name != "Alice Nováková" {
		t.Errorf("stored name = %q", stored.Name)
	}
}

func TestRegisterBatchDeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	pipeline, store, _ := newTestPipeline(engine)

	// Widths double as embedding markers: the artifact must list them in
	// image order no matter which worker finishes first.
	widths := []int{64, 72, 80, 96}
	var paths []string
	for i, w := range widths {
		paths = append(paths, writeJPEG(t, dir, "img-"+string(rune('a'+i))+".jpg", w))
	}

	batch := []Student{{ID: "dana", Name: "Dana", ImagePaths: paths}}
	if _, err := pipeline.RegisterBatch(context.Background(), batch, Options{Workers: 4}); err != nil {
		t.Fatalf("RegisterBatch() error: %v", err)
	}

	stored, err := store.GetStudent(context.Background(), "DANA")
	if err != nil || stored == nil {
		t.Fatalf("GetStudent(DANA) = %v, %v", stored, err)
	}
	for i, w := range widths {
		if got := stored.Embeddings[i][0]; got != float32(w) {
			t.Errorf("embedding %d marker = %v, want %d", i, got, w)
		}
	}
}

func TestRegisterBatchSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	pipeline, store, _ := newTestPipeline(engine)

	seed := database.StoredStudent{
		ID:         "ALICE",
		Name:       "Alice",
		Embeddings: [][]float32{{1, 0, 0, 0}},
		Dim:        testDim,
		ImageCount: 1,
	}
	if err := store.SaveStudent(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store.SaveCalls = 0

	batch := []Student{{ID: "alice", Name: "Alice", ImagePaths: []string{
		writeJPEG(t, dir, "alice.jpg", 64),
	}}}

	result, err := pipeline.RegisterBatch(context.Background(), batch, Options{})
	if err != nil {
		t.Fatalf("RegisterBatch() error: %v", err)
	}

	if result.Skipped != 1 || result.Succeeded != 0 {
		t.Fatalf("got skipped=%d succeeded=%d, want 1/0", result.Skipped, result.Succeeded)
	}
	outcome := result.Outcomes["ALICE"]
	if !outcome.Skipped || !outcome.Success {
		t.Errorf("outcome = %+v, want skipped success", outcome)
	}

	// The skip path does no image work and no writes.
	if store.SaveCalls != 0 {
		t.Errorf("SaveCalls = %d, want 0", store.SaveCalls)
	}
	if engine.detectCalls != 0 || engine.encodeCalls != 0 {
		t.Errorf("engine calls = %d/%d, want 0/0", engine.detectCalls, engine.encodeCalls)
	}
}

func TestRegisterBatchForceReRegisters(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	pipeline, store, _ := newTestPipeline(engine)

	seed := database.StoredStudent{
		ID:         "ALICE",
		Name:       "Alice",
		Embeddings: [][]float32{{1, 0, 0, 0}},
		Dim:        testDim,
		ImageCount: 1,
	}
	if err := store.SaveStudent(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	batch := []Student{{ID: "alice", Name: "Alice", ImagePaths: []string{
		writeJPEG(t, dir, "alice.jpg", 64),
	}}}

	result, err := pipeline.RegisterBatch(context.Background(), batch, Options{Force: true})
	if err != nil {
		t.Fatalf("RegisterBatch() error: %v", err)
	}
	if result.Succeeded != 1 || result.Skipped != 0 {
		t.Fatalf("got succeeded=%d skipped=%d, want 1/0", result.Succeeded, result.Skipped)
	}

	stored, _ := store.GetStudent(context.Background(), "ALICE")
	if stored == nil || stored.Embeddings[0][0] != 64 {
		t.Errorf("artifact not replaced: %+v", stored)
	}
}

func TestRegisterBatchUnreadableImage(t *testing.T) {
	engine := &fakeEngine{}
	pipeline, _, _ := newTestPipeline(engine)

	batch := []Student{{ID: "eve", Name: "Eve", ImagePaths: []string{
		"/nonexistent/eve.jpg",
	}}}

	result, err := pipeline.RegisterBatch(context.Background(), batch, Options{})
	if err != nil {
		t.Fatalf("RegisterBatch() error: %v", err)
	}
	outcome := result.Outcomes["EVE"]
	if outcome.Success || outcome.FailureReason != FailureUnreadable {
		t.Errorf("outcome = %+v, want unreadable failure", outcome)
	}
}

func TestRegisterBatchEncodeFailure(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{failWidth: 64}
	pipeline, _, gallery := newTestPipeline(engine)

	batch := []Student{{ID: "eve", Name: "Eve", ImagePaths: []string{
		writeJPEG(t, dir, "eve.jpg", 64),
	}}}

	result, err := pipeline.RegisterBatch(context.Background(), batch, Options{})
	if err != nil {
		t.Fatalf("RegisterBatch() error: %v", err)
	}
	outcome := result.Outcomes["EVE"]
	if outcome.Success || outcome.FailureReason != FailureEncode {
		t.Errorf("outcome = %+v, want encode failure", outcome)
	}
	if gallery.Has("EVE") {
		t.Error("failed student must not enter the gallery")
	}
}

func TestRegisterBatchStorageError(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	pipeline, store, gallery := newTestPipeline(engine)
	store.SaveError = errors.New("disk full")

	batch := []Student{{ID: "eve", Name: "Eve", ImagePaths: []string{
		writeJPEG(t, dir, "eve.jpg", 64),
	}}}

	result, err := pipeline.RegisterBatch(context.Background(), batch, Options{})
	if err != nil {
		t.Fatalf("RegisterBatch() error: %v", err)
	}
	outcome := result.Outcomes["EVE"]
	if outcome.Success || outcome.FailureReason != FailureStorage {
		t.Errorf("outcome = %+v, want storage failure", outcome)
	}
	if gallery.Has("EVE") {
		t.Error("gallery must not be updated when persistence fails")
	}
}

func TestRegisterBatchPartialImageFailures(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{noFaceWidth: 50}
	pipeline, store, _ := newTestPipeline(engine)

	// Two good images, one without a face: the student still succeeds with
	// the embeddings that worked.
	batch := []Student{{ID: "fay", Name: "Fay", ImagePaths: []string{
		writeJPEG(t, dir, "fay-1.jpg", 64),
		writeJPEG(t, dir, "fay-2.jpg", 50),
		writeJPEG(t, dir, "fay-3.jpg", 72),
	}}}

	result, err := pipeline.RegisterBatch(context.Background(), batch, Options{Workers: 3})
	if err != nil {
		t.Fatalf("RegisterBatch() error: %v", err)
	}
	outcome := result.Outcomes["FAY"]
	if !outcome.Success || outcome.EmbeddingCount != 2 || outcome.ImagesAttempted != 3 {
		t.Errorf("outcome = %+v", outcome)
	}

	stored, _ := store.GetStudent(context.Background(), "FAY")
	if stored == nil || stored.ImageCount != 2 {
		t.Fatalf("stored artifact = %+v", stored)
	}
	if stored.Embeddings[0][0] != 64 || stored.Embeddings[1][0] != 72 {
		t.Errorf("embeddings out of order: %v", stored.Embeddings)
	}
}

func TestRegisterBatchProgressCallback(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	pipeline, _, _ := newTestPipeline(engine)

	var mu sync.Mutex
	var calls []ProgressInfo
	batch := []Student{{ID: "gia", Name: "Gia", ImagePaths: []string{
		writeJPEG(t, dir, "gia-1.jpg", 64),
		writeJPEG(t, dir, "gia-2.jpg", 72),
	}}}

	_, err := pipeline.RegisterBatch(context.Background(), batch, Options{
		Workers: 2,
		OnProgress: func(info ProgressInfo) {
			mu.Lock()
			calls = append(calls, info)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("RegisterBatch() error: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("got %d progress calls, want 2", len(calls))
	}
	for _, c := range calls {
		if c.Total != 2 || c.StudentID != "GIA" {
			t.Errorf("progress info = %+v", c)
		}
	}
}

// cancellingEngine aborts the whole batch from inside the first detection call.
type cancellingEngine struct {
	cancel context.CancelFunc
}

func (e *cancellingEngine) DetectFaces(ctx context.Context, imageData []byte) ([]facematch.DetectionBox, error) {
	e.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (e *cancellingEngine) EncodeFaces(ctx context.Context, imageData []byte, boxes []facematch.DetectionBox) ([][]float32, error) {
	return nil, ctx.Err()
}

func TestRegisterBatchCancelledMidFlight(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := &cancellingEngine{cancel: cancel}
	store := mock.NewStudentStore()
	gallery := facematch.NewGallery(testDim)
	pipeline := NewPipeline(engine, store, gallery)

	var mu sync.Mutex
	var reasons []FailureReason

	batch := []Student{{ID: "ida", Name: "Ida", ImagePaths: []string{
		writeJPEG(t, dir, "ida-1.jpg", 64),
		writeJPEG(t, dir, "ida-2.jpg", 72),
	}}}

	_, err := pipeline.RegisterBatch(ctx, batch, Options{
		Workers: 1,
		OnProgress: func(info ProgressInfo) {
			mu.Lock()
			reasons = append(reasons, info.Reason)
			mu.Unlock()
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	// A caller abort is reported as a cancellation, never as a per-image
	// timeout.
	if len(reasons) == 0 {
		t.Fatal("no image tasks reported")
	}
	for _, r := range reasons {
		if r != FailureCancelled {
			t.Errorf("reason = %q, want %q", r, FailureCancelled)
		}
	}
	if store.SaveCalls != 0 {
		t.Errorf("SaveCalls = %d, want 0 after cancellation", store.SaveCalls)
	}
}

func TestRegisterBatchCancelled(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	pipeline, store, _ := newTestPipeline(engine)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := []Student{{ID: "hal", Name: "Hal", ImagePaths: []string{
		writeJPEG(t, dir, "hal.jpg", 64),
	}}}

	_, err := pipeline.RegisterBatch(ctx, batch, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if store.SaveCalls != 0 {
		t.Errorf("SaveCalls = %d, want 0 after cancellation", store.SaveCalls)
	}
}
