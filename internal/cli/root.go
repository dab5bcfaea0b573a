// Package cli implements the cogscreen command line interface.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "cogscreen",
	Short: "Voice-driven cognitive assessment sessions",
	Long:  "An interactive exam session controller for voice-driven cognitive assessments. Questions come from the assessment backend, spoken answers are captured with voice-onset timing and uploaded for transcription.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: built-in defaults)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Resume database path (default: $COGSCREEN_DB or the configured store path)")
	RootCmd.AddCommand(runCmd)
}

func getDBPath(fallback string) string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("COGSCREEN_DB"); env != "" {
		return env
	}
	return fallback
}
