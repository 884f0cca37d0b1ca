package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Paths       PathsConfig
	Recognition RecognitionConfig
	Throttle    ThrottleConfig
	History     HistoryConfig
	Embedding   EmbeddingConfig
	Database    DatabaseConfig
	MariaDB     MariaDBConfig
	Web         WebConfig
}

type PathsConfig struct {
	KnownFacesDir string `yaml:"known_faces_dir"`
	AttendanceDir string `yaml:"attendance_dir"`
	StudentsFile  string `yaml:"students_file"`
	CacheFile     string `yaml:"cache_file"`  // relative paths are resolved against KnownFacesDir
	TrustCache    bool   `yaml:"trust_cache"` // skip the source manifest check on cache load
}

// CachePath returns the gallery cache location.
func (c *PathsConfig) CachePath() string {
	if filepath.IsAbs(c.CacheFile) {
		return c.CacheFile
	}
	return filepath.Join(c.KnownFacesDir, c.CacheFile)
}

type RecognitionConfig struct {
	Tolerance      float64 `yaml:"tolerance"`
	FrameScale     float64 `yaml:"frame_scale"`
	Matcher        string  `yaml:"matcher"`
	HNSWMinGallery int     `yaml:"hnsw_min_gallery"`
	CropPadding    int     `yaml:"crop_padding"`
}

type ThrottleConfig struct {
	HistoryCooldownSeconds float64 `yaml:"history_cooldown_seconds"`
	WelcomeCooldownSeconds float64 `yaml:"welcome_cooldown_seconds"`
}

// HistoryCooldown returns the history throttle window.
func (c *ThrottleConfig) HistoryCooldown() time.Duration {
	return seconds(c.HistoryCooldownSeconds)
}

// WelcomeCooldown returns the welcome notification throttle window.
func (c *ThrottleConfig) WelcomeCooldown() time.Duration {
	return seconds(c.WelcomeCooldownSeconds)
}

type HistoryConfig struct {
	Size    int    `yaml:"size"`
	LogPath string `yaml:"log_path"` // optional JSONL audit file
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL (optional attendance archive)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type MariaDBConfig struct {
	DSN string // e.g. attendance:secret@tcp(mariadb:3306)/attendance?parseTime=true
}

type WebConfig struct {
	Host string
	Port int
}

type fileDefaults struct {
	Paths       PathsConfig       `yaml:"paths"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Throttle    ThrottleConfig    `yaml:"throttle"`
	History     HistoryConfig     `yaml:"history"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func Load() *Config {
	var d fileDefaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Paths: PathsConfig{
			KnownFacesDir: envString("KNOWN_FACES_DIR", d.Paths.KnownFacesDir),
			AttendanceDir: envString("ATTENDANCE_DIR", d.Paths.AttendanceDir),
			StudentsFile:  envString("STUDENTS_FILE", d.Paths.StudentsFile),
			CacheFile:     envString("GALLERY_CACHE_FILE", d.Paths.CacheFile),
			TrustCache:    envBool("GALLERY_TRUST_CACHE", d.Paths.TrustCache),
		},
		Recognition: RecognitionConfig{
			Tolerance:      envFloat("RECOGNITION_TOLERANCE", d.Recognition.Tolerance),
			FrameScale:     envFloat("FRAME_SCALE", d.Recognition.FrameScale),
			Matcher:        strings.ToLower(envString("MATCHER", d.Recognition.Matcher)),
			HNSWMinGallery: envInt("HNSW_MIN_GALLERY", d.Recognition.HNSWMinGallery),
			CropPadding:    envInt("CROP_PADDING", d.Recognition.CropPadding),
		},
		Throttle: ThrottleConfig{
			HistoryCooldownSeconds: envFloat("HISTORY_COOLDOWN", d.Throttle.HistoryCooldownSeconds),
			WelcomeCooldownSeconds: envFloat("WELCOME_COOLDOWN", d.Throttle.WelcomeCooldownSeconds),
		},
		History: HistoryConfig{
			Size:    envInt("HISTORY_SIZE", d.History.Size),
			LogPath: envString("HISTORY_LOG_PATH", d.History.LogPath),
		},
		Embedding: EmbeddingConfig{
			URL: os.Getenv("EMBEDDING_URL"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		MariaDB: MariaDBConfig{
			DSN: os.Getenv("MARIADB_DSN"),
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8080),
		},
	}
}
