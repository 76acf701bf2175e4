// Package ingest loads monthly country temperature series into the store,
// from CRU .per fixed-width files, long-format CSVs, or remote archives.
package ingest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/maxhuegel/EmissionWiz/internal/metrics"
	"github.com/maxhuegel/EmissionWiz/internal/models"
)

// missingSentinel marks absent readings in CRU .per tables. Sentinel rows are
// dropped, never stored.
const missingSentinel = -999.0

var monthColumns = []string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}

var (
	countryHeaderRe   = regexp.MustCompile(`Country\s*=\s*([^:]+)`)
	filenameCountry   = regexp.MustCompile(`(?i)\.([^.]+)\.tmp\.per$`)
	nonAlphanumericRe = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// SafeName normalizes a country name into a filesystem- and key-safe token.
func SafeName(s string) string {
	s = nonAlphanumericRe.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

// countryFromFilename recovers the country from CRU archive names like
// crucy.v4.09.1901.2024.Germany.tmp.per when the header lacks it.
func countryFromFilename(path string) string {
	base := filepath.Base(path)
	if m := filenameCountry.FindStringSubmatch(base); m != nil {
		return m[1]
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.Split(stem, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return stem
}

// ParsePer reads one CRU .per file: a free-text header containing
// "Country= NAME", then a fixed-width table headed by YEAR plus the twelve
// month columns. Rows at the missing sentinel are skipped.
func ParsePer(r io.Reader, path string) ([]models.Observation, error) {
	scanner := bufio.NewScanner(r)

	var headerLines []string
	var yearHeader string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "YEAR") {
			yearHeader = line
			break
		}
		headerLines = append(headerLines, line)
	}
	if yearHeader == "" {
		return nil, fmt.Errorf("%s: no YEAR header line", filepath.Base(path))
	}

	country := ""
	for i, ln := range headerLines {
		if i >= 8 {
			break
		}
		if m := countryHeaderRe.FindStringSubmatch(ln); m != nil {
			country = strings.TrimSpace(m[1])
			break
		}
	}
	if country == "" {
		country = countryFromFilename(path)
	}
	country = SafeName(country)

	cols := strings.Fields(yearHeader)
	monthAt := make(map[int]int) // column position -> calendar month
	for i, c := range cols {
		for m, name := range monthColumns {
			if c == name {
				monthAt[i] = m + 1
			}
		}
	}
	if len(monthAt) != 12 {
		return nil, fmt.Errorf("%s: %d/12 month columns in header", filepath.Base(path), len(monthAt))
	}

	var obs []models.Observation
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < len(cols) {
			continue
		}
		year, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		for i, month := range monthAt {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil || v == missingSentinel {
				continue
			}
			obs = append(obs, models.Observation{Country: country, Year: year, Month: month, TempC: v})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	sort.Slice(obs, func(i, j int) bool {
		return models.TimeIndex(obs[i].Year, obs[i].Month) < models.TimeIndex(obs[j].Year, obs[j].Month)
	})
	return obs, nil
}

// ParseCSV reads a long-format CSV with at least country, year, month and
// temp_c columns, in any column order.
func ParseCSV(r io.Reader, path string) ([]models.Observation, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", filepath.Base(path), err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"country", "year", "month", "temp_c"} {
		if _, ok := idx[need]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", filepath.Base(path), need)
		}
	}

	var obs []models.Observation
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		year, err := strconv.Atoi(strings.TrimSpace(rec[idx["year"]]))
		if err != nil {
			continue
		}
		month, err := strconv.Atoi(strings.TrimSpace(rec[idx["month"]]))
		if err != nil || month < 1 || month > 12 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx["temp_c"]]), 64)
		if err != nil || v == missingSentinel {
			continue
		}
		obs = append(obs, models.Observation{
			Country: SafeName(rec[idx["country"]]),
			Year:    year,
			Month:   month,
			TempC:   v,
		})
	}
	sort.Slice(obs, func(i, j int) bool {
		if obs[i].Country != obs[j].Country {
			return obs[i].Country < obs[j].Country
		}
		return models.TimeIndex(obs[i].Year, obs[i].Month) < models.TimeIndex(obs[j].Year, obs[j].Month)
	})
	return obs, nil
}

// LoadDir parses every .per and .csv file in a directory. A malformed file is
// logged and skipped; the rest of the directory still loads.
func LoadDir(dir string) ([]models.Observation, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var all []models.Observation
	loaded := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".per" && ext != ".csv" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		f, err := os.Open(path)
		if err != nil {
			log.Printf("skip %s: %v", e.Name(), err)
			continue
		}
		var obs []models.Observation
		if ext == ".per" {
			obs, err = ParsePer(f, path)
		} else {
			obs, err = ParseCSV(f, path)
		}
		f.Close()
		if err != nil {
			log.Printf("skip %s: %v", e.Name(), err)
			continue
		}
		all = append(all, obs...)
		loaded++
		metrics.ObservationsIngested.WithLabelValues(strings.TrimPrefix(ext, ".")).Add(float64(len(obs)))
	}
	if loaded == 0 {
		return nil, fmt.Errorf("no parseable .per or .csv files in %s", dir)
	}
	log.Printf("loaded %d files, %d observations from %s", loaded, len(all), dir)
	return all, nil
}
