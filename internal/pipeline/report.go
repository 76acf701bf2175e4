package pipeline

import (
	"fmt"
	"strings"

	"github.com/maxhuegel/EmissionWiz/internal/train"
)

// RenderReport formats a run summary as markdown: global model-vs-baseline
// error tables per horizon bucket, the viability verdicts, consistency
// checks and any warnings.
func RenderReport(s *Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Pipeline Report\n\n")
	fmt.Fprintf(&b, "Countries processed: %d, failed: %d\n\n", s.Processed, s.Failed)

	fmt.Fprintf(&b, "## Global metrics (mean over countries)\n\n")
	fmt.Fprintf(&b, "| bucket | forecaster | countries | MAE | RMSE |\n")
	fmt.Fprintf(&b, "|--------|-----------|-----------|-----|------|\n")
	for _, m := range s.Global {
		fmt.Fprintf(&b, "| %s | %s | %d | %.3f | %.3f |\n", m.Bucket, m.Who, m.N, m.MAE, m.RMSE)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Decision\n\n")
	fmt.Fprintf(&b, "| bucket | countries | beat both | improvement | regressed | viable |\n")
	fmt.Fprintf(&b, "|--------|-----------|-----------|-------------|-----------|--------|\n")
	for _, d := range s.Decisions {
		fmt.Fprintf(&b, "| %s | %d | %.0f%% | %.1f%% | %.0f%% | %s |\n",
			d.Bucket, d.Countries, d.ShareBeatBoth*100, d.GlobalImprovement*100,
			d.ShareRegressed*100, verdict(d))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Consistency checks\n\n")
	fmt.Fprintf(&b, "| country | clim rows | anomaly rows | zero-mean | autocorr(12) | trend C/decade | outlier share | failure |\n")
	fmt.Fprintf(&b, "|---------|-----------|--------------|-----------|--------------|----------------|---------------|--------|\n")
	for _, c := range s.Checks {
		zm := "n/a"
		if c.MeanAnomInRefOK.Valid {
			zm = yesNo(c.MeanAnomInRefOK.Bool)
		}
		fmt.Fprintf(&b, "| %s | %d | %d | %s | %s | %s | %s | %s |\n",
			c.Country, c.ClimatologyRows, c.AnomalyRows, zm,
			nullNum(c.AutocorrLag12.Float64, c.AutocorrLag12.Valid),
			nullNum(c.TrendDecadeC.Float64, c.TrendDecadeC.Valid),
			nullNum(c.OutlierShare.Float64, c.OutlierShare.Valid),
			c.Failure)
	}
	b.WriteString("\n")

	if len(s.Warnings) > 0 {
		fmt.Fprintf(&b, "## Warnings\n\n")
		for _, w := range s.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

func verdict(d train.Decision) string {
	if d.Viable {
		return "yes"
	}
	return "no"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func nullNum(v float64, valid bool) string {
	if !valid {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", v)
}
