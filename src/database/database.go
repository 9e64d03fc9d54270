package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/callrecon/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateCallsTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		source_system_id TEXT NOT NULL,
		category TEXT NOT NULL,
		caller_id TEXT,
		normalized_caller_id TEXT,
		call_time TEXT NOT NULL,
		payout TEXT NOT NULL DEFAULT '0',
		revenue TEXT NOT NULL DEFAULT '0',
		matched_counterpart_id TEXT,
		matched_payout TEXT,
		matched_revenue TEXT,
		adjustment_amount TEXT,
		adjustment_time TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source, source_system_id)
	);

	CREATE INDEX IF NOT EXISTS idx_calls_window
		ON calls(source, category, call_time);

	CREATE TABLE IF NOT EXISTS unmatched_calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		source TEXT NOT NULL,
		source_system_id TEXT NOT NULL,
		category TEXT,
		caller_id TEXT,
		call_time TEXT,
		reason TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL,
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		matched_count INTEGER NOT NULL,
		unmatched_count INTEGER NOT NULL,
		updated_count INTEGER NOT NULL,
		errors TEXT,
		started_at TIMESTAMP,
		duration_ms INTEGER
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// migrateCallsTable adds columns introduced after the first schema version.
// The adjustment columns arrived with the adjustment matcher; installations
// created before that need them added in place.
func migrateCallsTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='calls'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Info("'calls' table does not exist, no migration needed as table will be created.")
			} else {
				stdlog.Println("'calls' table does not exist, no migration needed as table will be created.")
			}
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'calls' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'calls' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(calls)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'calls'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'calls': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'calls'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'calls': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'calls'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'calls': %v", err)
		}
		return
	}

	if _, ok := columnExists["adjustment_amount"]; !ok {
		_, err := DB.Exec("ALTER TABLE calls ADD COLUMN adjustment_amount TEXT")
		if err != nil {
			logger.L.Error("Error adding 'adjustment_amount' column to 'calls' table", "error", err)
		} else {
			logger.L.Info("Added 'adjustment_amount' column to 'calls' table")
		}
	}
	if _, ok := columnExists["adjustment_time"]; !ok {
		_, err := DB.Exec("ALTER TABLE calls ADD COLUMN adjustment_time TEXT")
		if err != nil {
			logger.L.Error("Error adding 'adjustment_time' column to 'calls' table", "error", err)
		} else {
			logger.L.Info("Added 'adjustment_time' column to 'calls' table")
		}
	}
	if _, ok := columnExists["normalized_caller_id"]; !ok {
		_, err := DB.Exec("ALTER TABLE calls ADD COLUMN normalized_caller_id TEXT")
		if err != nil {
			logger.L.Error("Error adding 'normalized_caller_id' column to 'calls' table", "error", err)
		} else {
			logger.L.Info("Added 'normalized_caller_id' column to 'calls' table")
		}
	}
}
