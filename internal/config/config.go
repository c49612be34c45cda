// Package config loads the environment-driven settings recognized by
// ytingest's components (see spec §6 "Configuration").
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Int reads name as an integer, falling back to def if unset or unparsable.
func Int(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// String reads name, falling back to def if unset.
func String(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

// Bool reads name as a boolean, falling back to def if unset or unparsable.
func Bool(name string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// Duration reads name as a number of seconds, falling back to def if unset
// or unparsable.
func Duration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

// Config holds every environment-driven setting named in spec §6.
type Config struct {
	IndexURL string

	BlobURL       string
	BlobAccessKey string
	BlobSecretKey string
	BlobBucket    string
	BlobSecure    bool

	EmbeddingURL   string
	EmbeddingModel string

	LLMURL    string
	LLMModel  string
	LLMAPIKey string

	ArchiveRoot string
	QueueRoot   string

	PollInterval      time.Duration
	BackfillBatchSize int
}

// FromEnv loads a Config from the process environment, applying the
// defaults spec §6 specifies (poll interval 10s, backfill batch size 50).
func FromEnv() Config {
	return Config{
		IndexURL: String("INDEX_URL", ""),

		BlobURL:       String("BLOB_URL", ""),
		BlobAccessKey: String("BLOB_ACCESS_KEY", ""),
		BlobSecretKey: String("BLOB_SECRET_KEY", ""),
		BlobBucket:    String("BLOB_BUCKET", ""),
		BlobSecure:    Bool("BLOB_SECURE", true),

		EmbeddingURL:   String("EMBEDDING_URL", ""),
		EmbeddingModel: String("EMBEDDING_MODEL", ""),

		LLMURL:    String("LLM_URL", ""),
		LLMModel:  String("LLM_MODEL", ""),
		LLMAPIKey: String("LLM_API_KEY", ""),

		ArchiveRoot: String("ARCHIVE_ROOT", "./data/archive"),
		QueueRoot:   String("QUEUE_ROOT", "./data/queue"),

		PollInterval:      Duration("POLL_INTERVAL_SECONDS", 10*time.Second),
		BackfillBatchSize: Int("BACKFILL_BATCH_SIZE", 50),
	}
}
