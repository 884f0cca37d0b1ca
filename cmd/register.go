package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
)

var registerCmd = &cobra.Command{
	Use:   "register <image>",
	Short: "Register a person from a photo",
	Long: `Register a person from a photo. The photo must show a detectable face.
It is copied into KNOWN_FACES_DIR (name.jpg, name2.jpg, ...) and the gallery
is rebuilt. The student id is optional and stored in STUDENTS_FILE.

Examples:
  face-attendance register --name "Alice" --student-id S1 alice.jpg
  face-attendance register --name "Alice" alice-second-photo.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("name", "", "Name of the person (required)")
	registerCmd.Flags().String("student-id", "", "Student identifier")
	_ = registerCmd.MarkFlagRequired("name")
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	name := mustGetString(cmd, "name")
	studentID := mustGetString(cmd, "student-id")

	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	ctx := context.Background()
	engine, err := buildEngine(ctx, cfg, nil, rebuildProgress())
	if err != nil {
		return err
	}
	defer engine.Close()

	path, err := engine.Register(ctx, name, studentID, image)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	store := engine.Store()
	fmt.Printf("Registered %s as %s\n", name, path)
	fmt.Printf("  Student ID: %s\n", orDash(store.ExternalID(name)))
	fmt.Printf("  Photos:     %d\n", store.CountFor(name))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
