package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	StorageType      string
	LocalStoragePath string
	DataSourceName   string
	S3BucketName     string
	DatabaseURL      string

	// PublicBaseURL prefixes transfer and thumbnail URLs handed to clients.
	PublicBaseURL     string
	UploadTokenSecret string
	UploadTokenTTL    time.Duration
	MaxUploadBytes    int64

	// FilesAPIURL, when set, makes the editor talk to a remote file service
	// over HTTP instead of the in-process one.
	FilesAPIURL string

	ExportScale  int
	ExportFormat string
	JPEGQuality  int
	PreviewWidth int

	// EditorPresetsFile is an optional YAML file of per-instance editor options.
	EditorPresetsFile string
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": k, "value": v}).Warn("Invalid integer in environment, using default")
		return def
	}
	return n
}

func getDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": k, "value": v}).Warn("Invalid duration in environment, using default")
		return def
	}
	return d
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	cfg := &Config{
		StorageType:      getEnv("STORAGE_TYPE", "memory"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./data"),
		DataSourceName:   getEnv("DATA_SOURCE_NAME", "imagedesk.db"),
		S3BucketName:     os.Getenv("S3_BUCKET_NAME"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),

		PublicBaseURL:     strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3002"), "/"),
		UploadTokenSecret: os.Getenv("UPLOAD_TOKEN_SECRET"),
		UploadTokenTTL:    getDuration("UPLOAD_TOKEN_TTL", 15*time.Minute),
		MaxUploadBytes:    int64(getInt("MAX_UPLOAD_BYTES", 20<<20)),

		FilesAPIURL: strings.TrimRight(os.Getenv("FILES_API_URL"), "/"),

		ExportScale:  getInt("EXPORT_SCALE", 1),
		ExportFormat: strings.ToLower(getEnv("EXPORT_FORMAT", "png")),
		JPEGQuality:  getInt("JPEG_QUALITY", 90),
		PreviewWidth: getInt("PREVIEW_WIDTH", 1600),

		EditorPresetsFile: os.Getenv("EDITOR_PRESETS_FILE"),
	}

	if cfg.UploadTokenSecret == "" {
		logrus.Warn("UPLOAD_TOKEN_SECRET is not set, using an ephemeral secret")
		cfg.UploadTokenSecret = strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	if cfg.ExportScale < 1 {
		cfg.ExportScale = 1
	}
	return cfg
}
