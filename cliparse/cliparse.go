package cliparse

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port             int
	DatabaseURL      string
	DatabaseType     string
	OrganizerKeySalt string
	SnapshotWindow   time.Duration
	SnapshotBatch    int
}

// ParseFlags validates flags and sets port number
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var windowMS int

	fs := flag.NewFlagSet("livetally", flag.ContinueOnError)

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")

	// Snapshot coalescing (count threshold OR time window, whichever fires first)
	fs.IntVar(&windowMS, "snapshot-window", 0, "Snapshot coalescing window in ms")
	fs.IntVar(&cfg.SnapshotBatch, "snapshot-batch", 0, "Snapshot coalescing count threshold")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.OrganizerKeySalt, "organizer-salt", "", "Organizer key salt (prefer env)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 3324 // default
		}
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = "sqlite"
		}
	}
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return Config{}, errors.New("database type must be sqlite or postgres")
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		if cfg.DatabaseType == "postgres" {
			return Config{}, errors.New("database URL required for postgres (use -d or DATABASE_URL env)")
		}
		cfg.DatabaseURL = "file:livetally.db"
	}

	if windowMS == 0 {
		if s := os.Getenv("SNAPSHOT_WINDOW_MS"); s != "" {
			ms, err := strconv.Atoi(s)
			if err != nil {
				return Config{}, errors.New("invalid SNAPSHOT_WINDOW_MS env variable")
			}
			windowMS = ms
		} else {
			windowMS = 250
		}
	}
	cfg.SnapshotWindow = time.Duration(windowMS) * time.Millisecond

	if cfg.SnapshotBatch == 0 {
		if s := os.Getenv("SNAPSHOT_BATCH_SIZE"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return Config{}, errors.New("invalid SNAPSHOT_BATCH_SIZE env variable")
			}
			cfg.SnapshotBatch = n
		} else {
			cfg.SnapshotBatch = 32
		}
	}

	// Secrets - MUST be provided
	if cfg.OrganizerKeySalt == "" {
		cfg.OrganizerKeySalt = os.Getenv("ORGANIZER_KEY_SALT")
	}
	if cfg.OrganizerKeySalt == "" {
		return Config{}, errors.New("ORGANIZER_KEY_SALT required")
	}

	return cfg, nil
}
