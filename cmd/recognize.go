package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>...",
	Short: "Identify the faces on photos",
	Long: `Identify the faces on one or more photos against the gallery.
Nothing is recorded unless --session is given, in which case every photo is
processed as a camera frame of that attendance session and the session
file is written to ATTENDANCE_DIR.

Examples:
  face-attendance recognize group.jpg
  face-attendance recognize --session "Class 3B" frames/*.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().String("session", "", "Record attendance into a session with this name")
	recognizeCmd.Flags().Float64("tolerance", 0, "Maximum match distance (default RECOGNITION_TOLERANCE or 0.6)")
}

type photoResult struct {
	file  string
	faces []recognition.Recognition
	err   error
}

func runRecognize(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	sessionName := mustGetString(cmd, "session")
	if cmd.Flags().Changed("tolerance") {
		cfg.Recognition.Tolerance = mustGetFloat64(cmd, "tolerance")
	}

	ctx := context.Background()
	engine, err := buildEngine(ctx, cfg, nil, rebuildProgress())
	if err != nil {
		return err
	}
	defer engine.Close()

	process := engine.Identify
	if sessionName != "" {
		if err := startAttendance(engine, true, sessionName); err != nil {
			return err
		}
		process = engine.ProcessFrame
	}

	bar := progressbar.NewOptions(len(args),
		progressbar.OptionSetDescription("Recognizing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	results := make([]photoResult, 0, len(args))
	for _, file := range args {
		res := photoResult{file: file}
		data, err := os.ReadFile(file) //nolint:gosec // user-supplied path
		if err != nil {
			res.err = err
		} else {
			res.faces, res.err = process(ctx, data)
		}
		results = append(results, res)
		_ = bar.Add(1)
	}
	fmt.Println()

	printRecognitions(results)

	if sessionName != "" {
		summary, err := engine.EndSession()
		if err != nil {
			return err
		}
		fmt.Printf("\nSession %q: %d present, written to %s\n", summary.Name, summary.Present, summary.File)
	}
	return nil
}

func printRecognitions(results []photoResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PHOTO\tNAME\tSTUDENT ID\tCONFIDENCE\tDISTANCE")
	for _, res := range results {
		file := filepath.Base(res.file)
		if res.err != nil {
			fmt.Fprintf(w, "%s\terror: %v\t\t\t\n", file, res.err)
		}
		if res.err == nil && len(res.faces) == 0 {
			fmt.Fprintf(w, "%s\t(no faces)\t\t\t\n", file)
		}
		for _, face := range res.faces {
			confidence := "-"
			if face.Confidence != nil {
				confidence = fmt.Sprintf("%.1f%%", *face.Confidence)
			}
			distance := "-"
			if face.Distance != nil {
				distance = fmt.Sprintf("%.3f", *face.Distance)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", file, face.Name, orDash(face.ExternalID), confidence, distance)
		}
	}
	w.Flush()
}
