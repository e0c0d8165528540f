package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/roll-call/internal/config"
	"github.com/kozaktomas/roll-call/internal/detector"
	"github.com/kozaktomas/roll-call/internal/facematch"
	"github.com/kozaktomas/roll-call/internal/registry"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register students from face images",
	Long: `Register one student from images, or a whole batch from a folder tree.

With --folder, every subdirectory is one student. The directory name carries
the identity as ID_First_Last, e.g. S001_Alice_Novakova. All jpg/jpeg/png
images inside become registration images.

Students that already have a stored profile are skipped unless --force is set.`,
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("id", "", "Student ID for single-student registration")
	registerCmd.Flags().String("name", "", "Student display name")
	registerCmd.Flags().StringSlice("image", nil, "Face image path (repeatable)")
	registerCmd.Flags().String("folder", "", "Batch registration folder, one subdirectory per student")
	registerCmd.Flags().Bool("force", false, "Re-register students that already have a profile")
	registerCmd.Flags().Int("workers", 0, "Parallel encode workers (defaults to config)")
}

// imageExtensions are the file types accepted as registration images.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// collectImages lists image files in a directory, sorted by name.
func collectImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// parseStudentDir splits a directory name like S001_Alice_Novakova into
// ID and display name. A name without underscores is both.
func parseStudentDir(dirName string) (id, name string) {
	parts := strings.SplitN(dirName, "_", 2)
	id = parts[0]
	if len(parts) == 2 {
		name = strings.ReplaceAll(parts[1], "_", " ")
	} else {
		name = parts[0]
	}
	return id, name
}

// buildBatchFromFolder turns a folder tree into registration requests.
func buildBatchFromFolder(folder string) ([]registry.Student, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", folder, err)
	}

	var batch []registry.Student
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, name := parseStudentDir(entry.Name())
		images, err := collectImages(filepath.Join(folder, entry.Name()))
		if err != nil {
			return nil, err
		}
		if len(images) == 0 {
			fmt.Printf("Skipping %s: no images\n", entry.Name())
			continue
		}
		batch = append(batch, registry.Student{ID: id, Name: name, ImagePaths: images})
	}
	return batch, nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	folder := mustGetString(cmd, "folder")
	id := mustGetString(cmd, "id")

	var batch []registry.Student
	switch {
	case folder != "":
		var err error
		batch, err = buildBatchFromFolder(folder)
		if err != nil {
			return err
		}
	case id != "":
		images := mustGetStringSlice(cmd, "image")
		if len(images) == 0 {
			return fmt.Errorf("at least one --image is required")
		}
		name := mustGetString(cmd, "name")
		if name == "" {
			name = id
		}
		batch = []registry.Student{{ID: id, Name: name, ImagePaths: images}}
	default:
		return fmt.Errorf("either --folder or --id is required")
	}

	if len(batch) == 0 {
		fmt.Println("Nothing to register")
		return nil
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	gallery, err := loadGallery(context.Background(), store, cfg.Detector.Dim)
	if err != nil {
		return err
	}

	engine := detector.NewClient(cfg.Detector.URL)
	pipeline := registry.NewPipeline(engine, store.Students(), gallery)

	totalImages := 0
	for _, st := range batch {
		totalImages += len(st.ImagePaths)
	}
	fmt.Printf("Registering %d students (%d images)\n\n", len(batch), totalImages)

	bar := progressbar.NewOptions(totalImages,
		progressbar.OptionSetDescription("Encoding faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	workers := mustGetInt(cmd, "workers")
	if workers == 0 {
		workers = cfg.Registration.Workers
	}

	result, err := pipeline.RegisterBatch(context.Background(), batch, registry.Options{
		Workers:       workers,
		EncodeTimeout: time.Duration(cfg.Registration.EncodeTimeoutSec) * time.Second,
		MinFaceSize:   cfg.Matching.MinFaceSize,
		Force:         mustGetBool(cmd, "force"),
		OnProgress: func(registry.ProgressInfo) {
			_ = bar.Add(1)
		},
	})
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	fmt.Println()

	for _, st := range batch {
		outcome, ok := result.Outcomes[facematch.NormalizeStudentID(st.ID)]
		if !ok {
			outcome = result.Outcomes[st.ID]
		}
		switch {
		case outcome.Skipped:
			fmt.Printf("  - %s (%s): already registered, skipped\n", outcome.StudentID, outcome.Name)
		case outcome.Success:
			fmt.Printf("  + %s (%s): %d/%d images encoded\n",
				outcome.StudentID, outcome.Name, outcome.EmbeddingCount, outcome.ImagesAttempted)
		default:
			fmt.Printf("  ! %s (%s): failed (%s)\n", outcome.StudentID, outcome.Name, outcome.FailureReason)
		}
	}

	fmt.Printf("\nDone: %d registered, %d skipped, %d failed\n",
		result.Succeeded, result.Skipped, result.Failed)
	return nil
}
