package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Browse archived attendance sessions",
	Long: `Browse attendance sessions archived in PostgreSQL (DATABASE_URL) or
MariaDB (MARIADB_DSN). Reads come from PostgreSQL when both are configured.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show who attended a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)

	sessionsListCmd.Flags().Int("limit", 20, "Maximum number of sessions to show")
}

func openArchiveReader(ctx context.Context) (*database.Multi, error) {
	archives, err := openArchives(ctx, config.Load())
	if err != nil {
		return nil, err
	}
	if archives.Len() == 0 {
		return nil, database.ErrNoBackend
	}
	return archives, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	archives, err := openArchiveReader(ctx)
	if err != nil {
		return err
	}
	defer archives.Close()

	sessions, err := archives.ListSessions(ctx, mustGetInt(cmd, "limit"))
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No archived sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTARTED\tENDED\tPRESENT")
	for _, s := range sessions {
		ended := "running"
		if s.EndedAt != nil {
			ended = s.EndedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", s.ID, s.Name, s.StartedAt.Format("2006-01-02 15:04"), ended, s.Present)
	}
	return w.Flush()
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	archives, err := openArchiveReader(ctx)
	if err != nil {
		return err
	}
	defer archives.Close()

	records, err := archives.GetSessionRecords(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load session records: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("Nobody was marked present in this session")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tNAME\tSTUDENT ID\tCONFIDENCE")
	for _, r := range records {
		confidence := "-"
		if r.Confidence != nil {
			confidence = fmt.Sprintf("%.1f%%", *r.Confidence)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.MarkedAt.Format("15:04:05"), r.Name, orDash(r.ExternalID), confidence)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d present\n", len(records))
	return nil
}
