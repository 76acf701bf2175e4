package aggregate

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/maxhuegel/EmissionWiz/internal/models"
)

// WriteCSV emits the annual payload in the app-facing column contract:
// country, year, temp_c, base, anom. Source is appended for provenance.
func WriteCSV(w io.Writer, aggs []models.AnnualAggregate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"country", "year", "temp_c", "base", "anom", "source"}); err != nil {
		return err
	}
	for _, a := range aggs {
		rec := []string{
			a.Country,
			strconv.Itoa(a.Year),
			strconv.FormatFloat(a.TempC, 'f', 3, 64),
			strconv.FormatFloat(a.Base, 'f', 3, 64),
			strconv.FormatFloat(a.Anom, 'f', 3, 64),
			a.Source,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
