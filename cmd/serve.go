package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/roll-call/internal/config"
	"github.com/kozaktomas/roll-call/internal/detector"
	"github.com/kozaktomas/roll-call/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance web server",
	Long: `Start the Roll Call web server.
The server accepts classroom frames for attendance marking, serves
attendance reports and registers new students.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (overrides LISTEN_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if addr := mustGetString(cmd, "addr"); addr != "" {
		cfg.Web.Addr = addr
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
	server := web.NewServer(cfg, engine, store, gallery)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Roll Call server on %s\n", cfg.Web.Addr)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
