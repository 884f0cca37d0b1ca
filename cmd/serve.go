package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/scheduler"
	"github.com/kozaktomas/face-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Attendance web server.
The server accepts camera frames over HTTP, records attendance for the
active session and pushes welcome and history events over SSE and websocket.
Attendance is mirrored to PostgreSQL (DATABASE_URL) and MariaDB (MARIADB_DSN)
when configured.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST or 0.0.0.0)")
	serveCmd.Flags().String("session", "", "Start an attendance session with this name right away")
	serveCmd.Flags().Bool("recognize", false, "Switch to recognition mode on startup")
}

// resolveServeHostPort lets flags override the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	archives, err := openArchives(ctx, cfg)
	if err != nil {
		return err
	}
	defer archives.Close()

	// Interfaces stay nil without backends so the ledger skips mirroring.
	var archive attendance.Archive
	var reader database.AttendanceReader
	if archives.Len() > 0 {
		archive, reader = archives, archives
		fmt.Printf("Attendance archive enabled (%s)\n", strings.Join(archives.Names(), ", "))
	}

	engine, err := buildEngine(ctx, cfg, archive, rebuildProgress())
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			fmt.Printf("Warning: failed to close engine: %v\n", err)
		}
	}()

	if err := startAttendance(engine, mustGetBool(cmd, "recognize"), mustGetString(cmd, "session")); err != nil {
		return err
	}

	sched, err := scheduler.New(engine.Store(), engine, scheduler.Options{})
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	server := web.NewServer(cfg, engine, reader)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
