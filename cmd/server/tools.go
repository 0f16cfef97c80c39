package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"photo-transform-go/internal/cleanup"
	"photo-transform-go/internal/db"
	"photo-transform-go/internal/db/repository"
	"photo-transform-go/internal/prompt"

	"github.com/spf13/cobra"
)

var retentionDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete transformations older than the retention period once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		days := cfg.Cleanup.RetentionDays
		if cmd.Flags().Changed("days") {
			days = retentionDays
		}
		if days <= 0 {
			return fmt.Errorf("retention must be at least one day, got %d", days)
		}

		gdb, err := db.Open(cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close(gdb)

		service := cleanup.NewService(repository.NewSQLiteRepository(gdb), days, cfg.Server.SnapshotDir, cleanupInterval)
		result := service.RunCleanupCycle()
		fmt.Printf("Removed %d transformation(s) and %d file(s), %d file(s) could not be deleted\n",
			result.Records, result.Files, result.FailedFiles)
		return nil
	},
}

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "List the available styles",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPROMPT")
		fmt.Fprintln(w, "--\t----\t------")
		for _, s := range prompt.Styles() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, s.Prompt)
		}
		w.Flush()
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&retentionDays, "days", 0, "override cleanup.retention_days")
	rootCmd.AddCommand(cleanupCmd, stylesCmd)
}
