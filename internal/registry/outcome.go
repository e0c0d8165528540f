package registry

// FailureReason classifies why an image or a whole registration produced no
// usable embedding. These are normal pipeline outcomes, not errors: they are
// logged and reported but never abort the batch.
type FailureReason string

const (
	// FailureNone means the image or student succeeded.
	FailureNone FailureReason = ""

	// FailureNoFace means no face survived detection and merging.
	FailureNoFace FailureReason = "no_face_detected"

	// FailureEncode means the perception service failed or returned no
	// embedding for a detected face.
	FailureEncode FailureReason = "encode_error"

	// FailureUnreadable means the image could not be read or decoded.
	FailureUnreadable FailureReason = "image_unreadable"

	// FailureTimeout means the per-image deadline fired.
	FailureTimeout FailureReason = "timed_out"

	// FailureCancelled means the caller aborted the batch before the image
	// finished.
	FailureCancelled FailureReason = "cancelled"

	// FailureNoEmbeddings is the student-level failure: every image of the
	// student failed, so there is nothing to register.
	FailureNoEmbeddings FailureReason = "no_embeddings"

	// FailureStorage means the student's embeddings were produced but the
	// artifact could not be persisted.
	FailureStorage FailureReason = "storage_error"
)

// imageResult is the outcome of one per-image encode task. Tasks are
// side-effect-free: each writes only its own result slot.
type imageResult struct {
	Path      string
	Embedding []float32
	Reason    FailureReason
	Err       error
}

// Outcome reports the registration result for one student.
type Outcome struct {
	StudentID       string        `json:"student_id"`
	Name            string        `json:"name"`
	Success         bool          `json:"success"`
	Skipped         bool          `json:"skipped"` // artifact already existed, no work done
	ImagesAttempted int           `json:"images_attempted"`
	EmbeddingCount  int           `json:"embedding_count"`
	FailureReason   FailureReason `json:"failure_reason,omitempty"`
}

// BatchResult is the per-student outcome map of one RegisterBatch call plus
// aggregate counts.
type BatchResult struct {
	Outcomes  map[string]Outcome `json:"outcomes"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Skipped   int                `json:"skipped"`
}

// ProgressInfo is passed to the optional progress callback once per finished
// image task.
type ProgressInfo struct {
	StudentID string
	Path      string
	Current   int
	Total     int
	Reason    FailureReason
}
