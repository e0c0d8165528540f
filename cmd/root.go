package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "roll-call",
	Short: "A CLI tool for face-recognition based classroom attendance",
	Long: `Roll Call registers students from face images and marks attendance by
recognizing them in classroom frames. Face detection and embedding run in an
external perception service; matching, registration and record keeping
happen here.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
