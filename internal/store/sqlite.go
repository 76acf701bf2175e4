package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/maxhuegel/EmissionWiz/internal/models"
)

// Store wraps the pipeline database. Each stage owns the table it writes;
// downstream stages only read upstream tables.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) UpsertObservations(obs []models.Observation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO observations (country, year, month, temp_c)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(country, year, month) DO UPDATE SET temp_c = excluded.temp_c
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.Exec(o.Country, o.Year, o.Month, o.TempC); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert observation %s %d-%02d: %w", o.Country, o.Year, o.Month, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetCountries() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT country FROM observations ORDER BY country`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var countries []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		countries = append(countries, c)
	}
	return countries, rows.Err()
}

// GetObservations returns a country's series in chronological order.
func (s *Store) GetObservations(country string) ([]models.Observation, error) {
	rows, err := s.db.Query(`
		SELECT country, year, month, temp_c FROM observations
		WHERE country = ? ORDER BY year, month
	`, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obs []models.Observation
	for rows.Next() {
		var o models.Observation
		if err := rows.Scan(&o.Country, &o.Year, &o.Month, &o.TempC); err != nil {
			return nil, err
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

func (s *Store) UpsertReferencePeriod(rp models.ReferencePeriod) error {
	completeness, err := json.Marshal(rp.CompletenessPerMonth)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO reference_periods (country, ref_start, ref_end, months_meeting_min, total_month_counts, fallback_used, full_coverage, completeness_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(country) DO UPDATE SET
			ref_start = excluded.ref_start,
			ref_end = excluded.ref_end,
			months_meeting_min = excluded.months_meeting_min,
			total_month_counts = excluded.total_month_counts,
			fallback_used = excluded.fallback_used,
			full_coverage = excluded.full_coverage,
			completeness_json = excluded.completeness_json
	`, rp.Country, rp.RefStart, rp.RefEnd, rp.MonthsMeetingMin, rp.TotalMonthCounts, rp.FallbackUsed, rp.FullCoverage, string(completeness))
	return err
}

func (s *Store) GetReferencePeriod(country string) (*models.ReferencePeriod, error) {
	var rp models.ReferencePeriod
	var completeness string
	err := s.db.QueryRow(`
		SELECT country, ref_start, ref_end, months_meeting_min, total_month_counts, fallback_used, full_coverage, completeness_json
		FROM reference_periods WHERE country = ?
	`, country).Scan(&rp.Country, &rp.RefStart, &rp.RefEnd, &rp.MonthsMeetingMin, &rp.TotalMonthCounts, &rp.FallbackUsed, &rp.FullCoverage, &completeness)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(completeness), &rp.CompletenessPerMonth); err != nil {
		return nil, fmt.Errorf("decode completeness for %s: %w", country, err)
	}
	return &rp, nil
}

// ReplaceClimatology rewrites a country's 12 climatology rows atomically.
func (s *Store) ReplaceClimatology(country string, entries []models.ClimatologyEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM climatology WHERE country = ?`, country); err != nil {
		tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO climatology (country, month, clim_temp_c, ref_start, ref_end)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.Exec(e.Country, e.Month, e.ClimTempC, e.RefStart, e.RefEnd); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert climatology %s month %d: %w", e.Country, e.Month, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetClimatology(country string) ([]models.ClimatologyEntry, error) {
	rows, err := s.db.Query(`
		SELECT country, month, clim_temp_c, ref_start, ref_end FROM climatology
		WHERE country = ? ORDER BY month
	`, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ClimatologyEntry
	for rows.Next() {
		var e models.ClimatologyEntry
		if err := rows.Scan(&e.Country, &e.Month, &e.ClimTempC, &e.RefStart, &e.RefEnd); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) UpsertAnomalies(recs []models.AnomalyRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO anomalies (country, year, month, temp_c, clim_temp_c, anomaly_c)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(country, year, month) DO UPDATE SET
			temp_c = excluded.temp_c,
			clim_temp_c = excluded.clim_temp_c,
			anomaly_c = excluded.anomaly_c
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range recs {
		if _, err := stmt.Exec(r.Country, r.Year, r.Month, r.TempC, r.ClimTempC, r.AnomalyC); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert anomaly %s %d-%02d: %w", r.Country, r.Year, r.Month, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetAnomalies(country string) ([]models.AnomalyRecord, error) {
	rows, err := s.db.Query(`
		SELECT country, year, month, temp_c, clim_temp_c, anomaly_c FROM anomalies
		WHERE country = ? ORDER BY year, month
	`, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.AnomalyRecord
	for rows.Next() {
		var r models.AnomalyRecord
		if err := rows.Scan(&r.Country, &r.Year, &r.Month, &r.TempC, &r.ClimTempC, &r.AnomalyC); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *Store) UpsertOutlierFlags(flags []models.OutlierFlags) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO outlier_flags (country, year, month, z, z_robust, flag_abs_range, flag_jump_gt15, flag_z_gt3, flag_zrob_gt4, flag_any_outlier)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(country, year, month) DO UPDATE SET
			z = excluded.z,
			z_robust = excluded.z_robust,
			flag_abs_range = excluded.flag_abs_range,
			flag_jump_gt15 = excluded.flag_jump_gt15,
			flag_z_gt3 = excluded.flag_z_gt3,
			flag_zrob_gt4 = excluded.flag_zrob_gt4,
			flag_any_outlier = excluded.flag_any_outlier
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, f := range flags {
		if _, err := stmt.Exec(f.Country, f.Year, f.Month, f.Z, f.ZRobust,
			f.FlagAbsRange, f.FlagJumpGt15, f.FlagZGt3, f.FlagZRobGt4, f.FlagAnyOutlier); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert outlier flags %s %d-%02d: %w", f.Country, f.Year, f.Month, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetOutlierFlags(country string) ([]models.OutlierFlags, error) {
	rows, err := s.db.Query(`
		SELECT country, year, month, z, z_robust, flag_abs_range, flag_jump_gt15, flag_z_gt3, flag_zrob_gt4, flag_any_outlier
		FROM outlier_flags WHERE country = ? ORDER BY year, month
	`, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []models.OutlierFlags
	for rows.Next() {
		var f models.OutlierFlags
		if err := rows.Scan(&f.Country, &f.Year, &f.Month, &f.Z, &f.ZRobust,
			&f.FlagAbsRange, &f.FlagJumpGt15, &f.FlagZGt3, &f.FlagZRobGt4, &f.FlagAnyOutlier); err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

func (s *Store) UpsertFeatures(rowsIn []models.FeatureRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO features (country, year, month, anomaly_c, mon_sin, mon_cos, anom_lag1, anom_lag12, anom_lag24, roll_mean_3, roll_std_3, roll_mean_12, target_anom_t_plus_1)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(country, year, month) DO UPDATE SET
			anomaly_c = excluded.anomaly_c,
			mon_sin = excluded.mon_sin,
			mon_cos = excluded.mon_cos,
			anom_lag1 = excluded.anom_lag1,
			anom_lag12 = excluded.anom_lag12,
			anom_lag24 = excluded.anom_lag24,
			roll_mean_3 = excluded.roll_mean_3,
			roll_std_3 = excluded.roll_std_3,
			roll_mean_12 = excluded.roll_mean_12,
			target_anom_t_plus_1 = excluded.target_anom_t_plus_1
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range rowsIn {
		if _, err := stmt.Exec(r.Country, r.Year, r.Month, r.AnomalyC, r.MonSin, r.MonCos,
			r.AnomLag1, r.AnomLag12, r.AnomLag24, r.RollMean3, r.RollStd3, r.RollMean12, r.Target); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert feature row %s %d-%02d: %w", r.Country, r.Year, r.Month, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetFeatures(country string) ([]models.FeatureRow, error) {
	rows, err := s.db.Query(`
		SELECT country, year, month, anomaly_c, mon_sin, mon_cos, anom_lag1, anom_lag12, anom_lag24, roll_mean_3, roll_std_3, roll_mean_12, target_anom_t_plus_1
		FROM features WHERE country = ? ORDER BY year, month
	`, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FeatureRow
	for rows.Next() {
		var r models.FeatureRow
		if err := rows.Scan(&r.Country, &r.Year, &r.Month, &r.AnomalyC, &r.MonSin, &r.MonCos,
			&r.AnomLag1, &r.AnomLag12, &r.AnomLag24, &r.RollMean3, &r.RollStd3, &r.RollMean12, &r.Target); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceFolds rewrites a country's fold table atomically.
func (s *Store) ReplaceFolds(country string, folds []models.Fold) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM folds WHERE country = ?`, country); err != nil {
		tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO folds (fold_id, country, cutoff, train_start, val_end)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, f := range folds {
		if _, err := stmt.Exec(f.FoldID, f.Country, f.Cutoff, f.TrainStart, f.ValEnd); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert fold %d for %s: %w", f.FoldID, f.Country, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetFolds(country string) ([]models.Fold, error) {
	rows, err := s.db.Query(`
		SELECT fold_id, country, cutoff, train_start, val_end FROM folds
		WHERE country = ? ORDER BY fold_id
	`, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folds []models.Fold
	for rows.Next() {
		var f models.Fold
		if err := rows.Scan(&f.FoldID, &f.Country, &f.Cutoff, &f.TrainStart, &f.ValEnd); err != nil {
			return nil, err
		}
		folds = append(folds, f)
	}
	return folds, rows.Err()
}

func (s *Store) UpsertForecasts(recs []models.ForecastRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO forecasts (country, year, month, cutoff, horizon_step, pred_anom_c, blended_anom_c, pred_temp_c, truth_temp_c)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(country, cutoff, horizon_step) DO UPDATE SET
			year = excluded.year,
			month = excluded.month,
			pred_anom_c = excluded.pred_anom_c,
			blended_anom_c = excluded.blended_anom_c,
			pred_temp_c = excluded.pred_temp_c,
			truth_temp_c = excluded.truth_temp_c
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range recs {
		if _, err := stmt.Exec(r.Country, r.Year, r.Month, r.Cutoff, r.HorizonStep,
			r.PredAnomC, r.BlendedAnomC, r.PredTempC, r.TruthTempC); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert forecast %s cutoff %d h%d: %w", r.Country, r.Cutoff, r.HorizonStep, err)
		}
	}
	return tx.Commit()
}

// LatestCutoff returns the most recent forecast origin stored for a country.
func (s *Store) LatestCutoff(country string) (int, bool, error) {
	var cutoff sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(cutoff) FROM forecasts WHERE country = ?`, country).Scan(&cutoff)
	if err != nil {
		return 0, false, err
	}
	if !cutoff.Valid {
		return 0, false, nil
	}
	return int(cutoff.Int64), true, nil
}

func (s *Store) GetForecastsAtCutoff(country string, cutoff int) ([]models.ForecastRecord, error) {
	rows, err := s.db.Query(`
		SELECT country, year, month, cutoff, horizon_step, pred_anom_c, blended_anom_c, pred_temp_c, truth_temp_c
		FROM forecasts WHERE country = ? AND cutoff = ? ORDER BY horizon_step
	`, country, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.ForecastRecord
	for rows.Next() {
		var r models.ForecastRecord
		if err := rows.Scan(&r.Country, &r.Year, &r.Month, &r.Cutoff, &r.HorizonStep,
			&r.PredAnomC, &r.BlendedAnomC, &r.PredTempC, &r.TruthTempC); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *Store) UpsertCountryYears(aggs []models.AnnualAggregate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO country_year (country, year, temp_c, base, anom, source)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(country, year) DO UPDATE SET
			temp_c = excluded.temp_c,
			base = excluded.base,
			anom = excluded.anom,
			source = excluded.source
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, a := range aggs {
		if _, err := stmt.Exec(a.Country, a.Year, a.TempC, a.Base, a.Anom, a.Source); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert country_year %s %d: %w", a.Country, a.Year, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetCountryYears() ([]models.AnnualAggregate, error) {
	rows, err := s.db.Query(`
		SELECT country, year, temp_c, base, anom, source FROM country_year
		ORDER BY country, year
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggs []models.AnnualAggregate
	for rows.Next() {
		var a models.AnnualAggregate
		if err := rows.Scan(&a.Country, &a.Year, &a.TempC, &a.Base, &a.Anom, &a.Source); err != nil {
			return nil, err
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

func (s *Store) UpsertCountryCheck(c models.CountryCheck) error {
	_, err := s.db.Exec(`
		INSERT INTO consistency_report (country, climatology_rows, anomaly_rows, climatology_12_ok, mean_anom_in_ref_ok, autocorr_lag12, trend_decade_c, outlier_share, failure, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(country) DO UPDATE SET
			climatology_rows = excluded.climatology_rows,
			anomaly_rows = excluded.anomaly_rows,
			climatology_12_ok = excluded.climatology_12_ok,
			mean_anom_in_ref_ok = excluded.mean_anom_in_ref_ok,
			autocorr_lag12 = excluded.autocorr_lag12,
			trend_decade_c = excluded.trend_decade_c,
			outlier_share = excluded.outlier_share,
			failure = excluded.failure,
			updated_at = CURRENT_TIMESTAMP
	`, c.Country, c.ClimatologyRows, c.AnomalyRows, c.Climatology12OK,
		c.MeanAnomInRefOK, c.AutocorrLag12, c.TrendDecadeC, c.OutlierShare, c.Failure)
	return err
}

func (s *Store) GetCountryChecks() ([]models.CountryCheck, error) {
	rows, err := s.db.Query(`
		SELECT country, climatology_rows, anomaly_rows, climatology_12_ok, mean_anom_in_ref_ok, autocorr_lag12, trend_decade_c, outlier_share, failure
		FROM consistency_report ORDER BY country
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []models.CountryCheck
	for rows.Next() {
		var c models.CountryCheck
		if err := rows.Scan(&c.Country, &c.ClimatologyRows, &c.AnomalyRows, &c.Climatology12OK,
			&c.MeanAnomInRefOK, &c.AutocorrLag12, &c.TrendDecadeC, &c.OutlierShare, &c.Failure); err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}
