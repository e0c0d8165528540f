package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/roll-call/internal/config"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "List registered students",
	RunE:  runStudents,
}

func init() {
	rootCmd.AddCommand(studentsCmd)
}

func runStudents(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	students, err := store.Students().ListStudents(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list students: %w", err)
	}

	if len(students) == 0 {
		fmt.Println("No students registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tIMAGES\tEMBEDDINGS\tREGISTERED")
	for _, s := range students {
		registered := "-"
		if !s.RegisteredAt.IsZero() {
			registered = s.RegisteredAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.Name, s.ImageCount, len(s.Embeddings), registered)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d students\n", len(students))
	return nil
}
