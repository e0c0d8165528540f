package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/roll-call/internal/attendance"
	"github.com/kozaktomas/roll-call/internal/config"
	"github.com/kozaktomas/roll-call/internal/database"
)

var reportCmd = &cobra.Command{
	Use:   "report [date]",
	Short: "Show attendance records",
	Long: `Show attendance records for one date (YYYY-MM-DD, default today),
or a range with --from and --to.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("from", "", "Range start date (YYYY-MM-DD)")
	reportCmd.Flags().String("to", "", "Range end date (YYYY-MM-DD)")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	recorder := attendance.NewRecorder(store.Attendance())

	from := mustGetString(cmd, "from")
	to := mustGetString(cmd, "to")

	var records []database.AttendanceRecord
	switch {
	case from != "" || to != "":
		if from == "" || to == "" {
			return fmt.Errorf("--from and --to must be used together")
		}
		fromDate, err := time.Parse(database.DateFormat, from)
		if err != nil {
			return fmt.Errorf("invalid --from date %q", from)
		}
		toDate, err := time.Parse(database.DateFormat, to)
		if err != nil {
			return fmt.Errorf("invalid --to date %q", to)
		}
		records, err = recorder.ReportRange(ctx, fromDate, toDate)
		if err != nil {
			return fmt.Errorf("failed to load attendance: %w", err)
		}
	default:
		date := time.Now()
		if len(args) == 1 {
			date, err = time.Parse(database.DateFormat, args[0])
			if err != nil {
				return fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[0])
			}
		}
		records, err = recorder.Report(ctx, date)
		if err != nil {
			return fmt.Errorf("failed to load attendance: %w", err)
		}
	}

	if len(records) == 0 {
		fmt.Println("No attendance records found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTIME\tSTUDENT\tCONFIDENCE\tSOURCE")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n",
			rec.DateKey(),
			rec.Timestamp.Format("15:04:05"),
			rec.StudentID,
			rec.Confidence,
			rec.SourceRef,
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d records\n", len(records))
	return nil
}
