package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Host    string
	Port    string
	DataDir string

	// FileStoreURL points the file tools at an external content store
	// service. Empty means the in-process store is used. When set, files
	// must be ingested through that service; uploads to this process's
	// /process-file endpoint land in the in-process store and are not
	// visible to the tools.
	FileStoreURL string

	// FileTTL enables the content retention sweep when positive. Zero
	// means uploaded files never expire.
	FileTTL time.Duration

	// FileSweepSchedule is the cron expression for the retention sweep.
	FileSweepSchedule string
}

func Load() Config {
	host := os.Getenv("AGENTGATE_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("AGENTGATE_PORT")
	if port == "" {
		port = "8000"
	}
	dataDir := os.Getenv("AGENTGATE_DATA_DIR")
	if dataDir == "" {
		dataDir = ".data"
	}
	schedule := os.Getenv("AGENTGATE_FILE_SWEEP_SCHEDULE")
	if schedule == "" {
		schedule = "@every 10m"
	}
	return Config{
		Host:              host,
		Port:              port,
		DataDir:           dataDir,
		FileStoreURL:      strings.TrimRight(strings.TrimSpace(os.Getenv("AGENTGATE_FILE_STORE_URL")), "/"),
		FileTTL:           parseTTL(os.Getenv("AGENTGATE_FILE_TTL")),
		FileSweepSchedule: schedule,
	}
}

func parseTTL(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
