package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/roll-call/internal/attendance"
	"github.com/kozaktomas/roll-call/internal/config"
	"github.com/kozaktomas/roll-call/internal/detector"
	"github.com/kozaktomas/roll-call/internal/facematch"
)

var attendCmd = &cobra.Command{
	Use:   "attend <image> [image...]",
	Short: "Mark attendance from classroom frames",
	Long: `Process one or more classroom frames: detect the faces in each image,
match them against the registered students and mark everyone recognized as
present. A student already marked today stays marked; re-running the same
frame changes nothing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAttend,
}

func init() {
	rootCmd.AddCommand(attendCmd)

	attendCmd.Flags().Float64("tolerance", 0, "Match distance threshold (defaults to config)")
	attendCmd.Flags().Bool("dry-run", false, "Match faces without recording attendance")
}

func runAttend(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if tol := mustGetFloat64(cmd, "tolerance"); tol > 0 {
		cfg.Matching.Tolerance = tol
	}
	dryRun := mustGetBool(cmd, "dry-run")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	gallery, err := loadGallery(ctx, store, cfg.Detector.Dim)
	if err != nil {
		return err
	}
	if gallery.Count() == 0 {
		fmt.Println("No students registered yet; every face will be unknown")
	}

	engine := detector.NewClient(cfg.Detector.URL)
	matcher := facematch.NewMatcher(gallery, cfg.Matching.Tolerance, cfg.Matching.MinConfidence)
	recorder := attendance.NewRecorder(store.Attendance())

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	totalMarked := 0

	for _, path := range args {
		fmt.Printf("Processing %s\n", path)

		imageData, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("  cannot read image: %v\n", err)
			continue
		}
		prepared, err := detector.Preprocess(imageData)
		if err != nil {
			fmt.Printf("  cannot decode image: %v\n", err)
			continue
		}

		boxes, err := engine.DetectFaces(ctx, prepared)
		if err != nil {
			return fmt.Errorf("face detection failed: %w", err)
		}
		frame := facematch.MergeDetections(cfg.Matching.MinFaceSize, boxes)
		if len(frame.Boxes) == 0 {
			fmt.Println("  no faces found")
			continue
		}

		embeddings, err := engine.EncodeFaces(ctx, prepared, frame.Boxes)
		if err != nil {
			return fmt.Errorf("face encoding failed: %w", err)
		}
		results, err := matcher.MatchFrame(frame, embeddings)
		if err != nil {
			return fmt.Errorf("matching failed: %w", err)
		}

		fmt.Fprintln(w, "  FACE\tSTUDENT\tNAME\tCONFIDENCE")
		for i, res := range results {
			if res.Unknown() {
				fmt.Fprintf(w, "  %d\t-\tunknown\t-\n", i+1)
				continue
			}
			fmt.Fprintf(w, "  %d\t%s\t%s\t%.2f\n", i+1, res.StudentID, res.Name, res.Confidence)
		}
		w.Flush()

		if dryRun {
			continue
		}

		markings := make([]attendance.Marking, 0, len(results))
		for _, res := range results {
			markings = append(markings, attendance.Marking{
				StudentID:  res.StudentID,
				Confidence: res.Confidence,
			})
		}
		summary, err := recorder.RecordFrame(ctx, markings, time.Now(), uuid.NewString())
		if err != nil {
			return fmt.Errorf("recording attendance failed: %w", err)
		}
		totalMarked += len(summary.NewlyMarked)
		fmt.Printf("  marked: %d, already present: %d, unknown: %d\n\n",
			len(summary.NewlyMarked), summary.DuplicatesSkipped, summary.UnknownCount)
	}

	if !dryRun {
		fmt.Printf("Attendance complete: %d students newly marked\n", totalMarked)
	}
	return nil
}
