package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/encoder"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/history"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// startAttendance switches the engine to recognize mode when recognize is set
// and opens the named session when sessionName is not empty. Recognition is
// checked first so an empty gallery fails before a session file is created.
func startAttendance(engine *recognition.Engine, recognize bool, sessionName string) error {
	if recognize {
		if err := engine.StartRecognition(); err != nil {
			return fmt.Errorf("starting recognition: %w", err)
		}
	}
	if sessionName != "" {
		if _, err := engine.StartSession(sessionName); err != nil {
			return fmt.Errorf("starting session: %w", err)
		}
	}
	return nil
}

// newStore creates the gallery store described by cfg.
func newStore(cfg *config.Config, onProgress gallery.ProgressFunc) *gallery.Store {
	return gallery.NewStore(encoder.NewClient(cfg.Embedding.URL), gallery.Options{
		SourceDir:    cfg.Paths.KnownFacesDir,
		CachePath:    cfg.Paths.CachePath(),
		StudentsFile: cfg.Paths.StudentsFile,
		TrustCache:   cfg.Paths.TrustCache,
		OnProgress:   onProgress,
	})
}

// rebuildProgress renders gallery rebuild progress on a progress bar.
func rebuildProgress() gallery.ProgressFunc {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Encoding reference images"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("images"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
		if done == total {
			_ = bar.Finish()
			fmt.Println()
			bar = nil
		}
	}
}

// buildEngine loads the gallery and wires the recognition engine. archive may be nil.
func buildEngine(ctx context.Context, cfg *config.Config, archive attendance.Archive, onProgress gallery.ProgressFunc) (*recognition.Engine, error) {
	store := newStore(cfg, onProgress)
	g, err := store.Load(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load gallery: %w", err)
	}
	fmt.Printf("Gallery ready: %d embeddings of %d people\n", g.Len(), len(g.UniqueNames()))

	m, err := matcher.New(cfg.Recognition.Matcher, cfg.Recognition.HNSWMinGallery)
	if err != nil {
		return nil, err
	}

	hist, err := history.New(cfg.History.Size, cfg.History.LogPath)
	if err != nil {
		return nil, err
	}

	return recognition.New(store, encoder.NewClient(cfg.Embedding.URL), m,
		attendance.NewLedger(cfg.Paths.AttendanceDir, archive), hist,
		recognition.Options{
			Tolerance:       cfg.Recognition.Tolerance,
			FrameScale:      cfg.Recognition.FrameScale,
			CropPadding:     cfg.Recognition.CropPadding,
			HistoryCooldown: cfg.Throttle.HistoryCooldown(),
			WelcomeCooldown: cfg.Throttle.WelcomeCooldown(),
		}), nil
}

// openArchives connects every configured attendance archive. The result has
// no backends when neither DATABASE_URL nor MARIADB_DSN is set.
func openArchives(ctx context.Context, cfg *config.Config) (*database.Multi, error) {
	var backends []database.Backend

	if cfg.Database.URL != "" {
		fmt.Printf("Connecting to PostgreSQL database...\n")
		repo, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		backends = append(backends, repo)
	}

	if cfg.MariaDB.DSN != "" {
		fmt.Printf("Connecting to MariaDB database...\n")
		repo, err := mariadb.Open(ctx, cfg.MariaDB.DSN)
		if err != nil {
			closeErr := database.NewMulti(backends...).Close()
			return nil, errors.Join(fmt.Errorf("failed to initialize MariaDB: %w", err), closeErr)
		}
		backends = append(backends, repo)
	}

	return database.NewMulti(backends...), nil
}
