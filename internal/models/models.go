package models

import (
	"database/sql"
)

// TimeIndex maps (year, month) onto a contiguous monthly index so that
// consecutive months differ by exactly 1 across year boundaries.
func TimeIndex(year, month int) int {
	return year*12 + (month - 1)
}

func FromTimeIndex(k int) (year, month int) {
	return k / 12, (k % 12) + 1
}

// Observation is one monthly temperature reading for a country, the
// normalized output of ingestion. Unique key (country, year, month).
type Observation struct {
	Country string
	Year    int
	Month   int
	TempC   float64
}

// ReferencePeriod is the chosen 30-year climate-normal window for a country.
type ReferencePeriod struct {
	Country          string
	RefStart         int
	RefEnd           int
	MonthsMeetingMin int
	TotalMonthCounts int
	FallbackUsed     bool
	FullCoverage     bool
	// CompletenessPerMonth[m-1] is the number of distinct valid years for
	// calendar month m inside the window.
	CompletenessPerMonth [12]int
}

// ClimatologyEntry is the climate-normal mean for one (country, month).
// Exactly 12 per country.
type ClimatologyEntry struct {
	Country   string
	Month     int
	ClimTempC float64
	RefStart  int
	RefEnd    int
}

// AnomalyRecord is one observation expressed relative to climatology.
type AnomalyRecord struct {
	Country   string
	Year      int
	Month     int
	TempC     float64
	ClimTempC float64
	AnomalyC  float64
}

// OutlierFlags annotates one observation; it never replaces it.
type OutlierFlags struct {
	Country        string
	Year           int
	Month          int
	Z              sql.NullFloat64
	ZRobust        sql.NullFloat64
	FlagAbsRange   bool
	FlagJumpGt15   bool
	FlagZGt3       bool
	FlagZRobGt4    bool
	FlagAnyOutlier bool
}

// FeatureRow holds the engineered features for one (country, year, month).
// Engineered fields are null while the required history has not accumulated;
// such warm-up rows are dropped before training.
type FeatureRow struct {
	Country    string
	Year       int
	Month      int
	AnomalyC   float64
	MonSin     float64
	MonCos     float64
	AnomLag1   sql.NullFloat64
	AnomLag12  sql.NullFloat64
	AnomLag24  sql.NullFloat64
	RollMean3  sql.NullFloat64
	RollStd3   sql.NullFloat64
	RollMean12 sql.NullFloat64
	// Target is the anomaly one month ahead.
	Target sql.NullFloat64
}

// Fold is one rolling-origin split for a country. Train covers time indexes
// in [TrainStart, Cutoff], validation covers (Cutoff, ValEnd].
type Fold struct {
	FoldID     int
	Country    string
	Cutoff     int
	TrainStart int
	ValEnd     int
}

// ForecastRecord is one recursive forecast step from a given cutoff.
type ForecastRecord struct {
	Country      string
	Year         int
	Month        int
	Cutoff       int
	HorizonStep  int
	PredAnomC    float64
	BlendedAnomC float64
	PredTempC    float64
	TruthTempC   sql.NullFloat64
}

// AnnualAggregate is one row of the app-facing payload. Base is the fixed
// multi-year country mean; Anom = TempC - Base.
type AnnualAggregate struct {
	Country string
	Year    int
	TempC   float64
	Base    float64
	Anom    float64
	Source  string // "observed" or "forecast"
}

// CountryCheck is one row of the consistency report.
type CountryCheck struct {
	Country          string
	ClimatologyRows  int
	AnomalyRows      int
	Climatology12OK  bool
	MeanAnomInRefOK  sql.NullBool
	AutocorrLag12    sql.NullFloat64
	TrendDecadeC     sql.NullFloat64
	OutlierShare     sql.NullFloat64
	Failure          string
}
