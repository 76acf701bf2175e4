package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS observations (
    country TEXT NOT NULL,
    year INTEGER NOT NULL,
    month INTEGER NOT NULL,
    temp_c REAL NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (country, year, month)
);

CREATE TABLE IF NOT EXISTS reference_periods (
    country TEXT PRIMARY KEY,
    ref_start INTEGER NOT NULL,
    ref_end INTEGER NOT NULL,
    months_meeting_min INTEGER,
    total_month_counts INTEGER,
    fallback_used BOOLEAN DEFAULT FALSE,
    full_coverage BOOLEAN DEFAULT FALSE,
    completeness_json TEXT
);

CREATE TABLE IF NOT EXISTS climatology (
    country TEXT NOT NULL,
    month INTEGER NOT NULL,
    clim_temp_c REAL NOT NULL,
    ref_start INTEGER NOT NULL,
    ref_end INTEGER NOT NULL,
    PRIMARY KEY (country, month)
);

CREATE TABLE IF NOT EXISTS anomalies (
    country TEXT NOT NULL,
    year INTEGER NOT NULL,
    month INTEGER NOT NULL,
    temp_c REAL NOT NULL,
    clim_temp_c REAL NOT NULL,
    anomaly_c REAL NOT NULL,
    PRIMARY KEY (country, year, month)
);

CREATE TABLE IF NOT EXISTS outlier_flags (
    country TEXT NOT NULL,
    year INTEGER NOT NULL,
    month INTEGER NOT NULL,
    z REAL,
    z_robust REAL,
    flag_abs_range BOOLEAN NOT NULL,
    flag_jump_gt15 BOOLEAN NOT NULL,
    flag_z_gt3 BOOLEAN NOT NULL,
    flag_zrob_gt4 BOOLEAN NOT NULL,
    flag_any_outlier BOOLEAN NOT NULL,
    PRIMARY KEY (country, year, month)
);

CREATE TABLE IF NOT EXISTS features (
    country TEXT NOT NULL,
    year INTEGER NOT NULL,
    month INTEGER NOT NULL,
    anomaly_c REAL NOT NULL,
    mon_sin REAL NOT NULL,
    mon_cos REAL NOT NULL,
    anom_lag1 REAL,
    anom_lag12 REAL,
    anom_lag24 REAL,
    roll_mean_3 REAL,
    roll_std_3 REAL,
    roll_mean_12 REAL,
    target_anom_t_plus_1 REAL,
    PRIMARY KEY (country, year, month)
);

CREATE TABLE IF NOT EXISTS folds (
    fold_id INTEGER NOT NULL,
    country TEXT NOT NULL,
    cutoff INTEGER NOT NULL,
    train_start INTEGER NOT NULL,
    val_end INTEGER NOT NULL,
    PRIMARY KEY (country, fold_id)
);

CREATE TABLE IF NOT EXISTS forecasts (
    country TEXT NOT NULL,
    year INTEGER NOT NULL,
    month INTEGER NOT NULL,
    cutoff INTEGER NOT NULL,
    horizon_step INTEGER NOT NULL,
    pred_anom_c REAL NOT NULL,
    blended_anom_c REAL NOT NULL,
    pred_temp_c REAL NOT NULL,
    truth_temp_c REAL,
    PRIMARY KEY (country, cutoff, horizon_step)
);

CREATE TABLE IF NOT EXISTS country_year (
    country TEXT NOT NULL,
    year INTEGER NOT NULL,
    temp_c REAL NOT NULL,
    base REAL NOT NULL,
    anom REAL NOT NULL,
    source TEXT NOT NULL,
    PRIMARY KEY (country, year)
);

CREATE TABLE IF NOT EXISTS consistency_report (
    country TEXT PRIMARY KEY,
    climatology_rows INTEGER,
    anomaly_rows INTEGER,
    climatology_12_ok BOOLEAN,
    mean_anom_in_ref_ok BOOLEAN,
    autocorr_lag12 REAL,
    trend_decade_c REAL,
    outlier_share REAL,
    failure TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`,
	},
	{
		Version:     2,
		Description: "Indexes for per-country chronological scans",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_observations_country ON observations(country, year, month);
CREATE INDEX IF NOT EXISTS idx_anomalies_country ON anomalies(country, year, month);
CREATE INDEX IF NOT EXISTS idx_features_country ON features(country, year, month);
CREATE INDEX IF NOT EXISTS idx_forecasts_cutoff ON forecasts(country, cutoff);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
