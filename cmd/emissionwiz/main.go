package main

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/maxhuegel/EmissionWiz/internal/aggregate"
	"github.com/maxhuegel/EmissionWiz/internal/ingest"
	"github.com/maxhuegel/EmissionWiz/internal/pipeline"
	"github.com/maxhuegel/EmissionWiz/internal/store"
)

var cli struct {
	DB          string             `help:"Path to SQLite database." default:"data/emissionwiz.db" env:"EMISSIONWIZ_DB"`
	MetricsAddr string             `help:"Serve Prometheus metrics on this address while running (empty disables)." env:"EMISSIONWIZ_METRICS_ADDR"`
	EnvFile     kongdotenv.ENVFileConfig `help:"Optional .env file." optional:""`

	Fetch  fetchCmd  `cmd:"" help:"Download source archives over HTTP or FTP."`
	Ingest ingestCmd `cmd:"" help:"Load .per and .csv files into the store."`
	Run    runCmd    `cmd:"" help:"Run the full pipeline and write the report."`
	Export exportCmd `cmd:"" help:"Export the annual country payload as CSV."`
}

type appContext struct {
	store *store.Store
}

type fetchCmd struct {
	OutDir  string   `help:"Directory to download into." default:"data/raw"`
	URL     []string `help:"HTTP URLs to fetch." name:"url"`
	FTPHost string   `help:"FTP host:port to list, e.g. ftp.example.org:21."`
	FTPDir  string   `help:"Remote directory on the FTP host." default:"/"`
	Suffix  string   `help:"Remote filename suffix filter." default:".per"`
}

func (c *fetchCmd) Run(_ *appContext) error {
	f := ingest.NewFetcher(c.OutDir)
	for _, u := range c.URL {
		p, err := f.FetchHTTP(u)
		if err != nil {
			return err
		}
		log.Printf("fetched %s", p)
	}
	if c.FTPHost != "" {
		paths, err := f.FetchFTP(c.FTPHost, c.FTPDir, c.Suffix)
		if err != nil {
			return err
		}
		log.Printf("fetched %d files via ftp", len(paths))
	}
	return nil
}

type ingestCmd struct {
	Dir string `arg:"" help:"Directory of .per or .csv files."`
}

func (c *ingestCmd) Run(app *appContext) error {
	obs, err := ingest.LoadDir(c.Dir)
	if err != nil {
		return err
	}
	if err := app.store.UpsertObservations(obs); err != nil {
		return err
	}
	log.Printf("stored %d observations", len(obs))
	return nil
}

type runCmd struct {
	Report       string `help:"Write the markdown run report here." default:"data/report.md"`
	Workers      int    `help:"Worker goroutines (0 = NumCPU)."`
	Horizon      int    `help:"Forward projection length in months." default:"60"`
	RefStart     int    `help:"Preferred reference window start year." default:"1981"`
	MinPerMonth  int    `help:"Valid years each calendar month needs in the window." default:"25"`
	EnableLag24  bool   `help:"Add the 24-month anomaly lag feature."`
	EnableRoll12 bool   `help:"Add the 12-month rolling mean feature."`
}

func (c *runCmd) Run(app *appContext) error {
	cfg := pipeline.DefaultConfig()
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}
	cfg.HorizonMonths = c.Horizon
	cfg.Reference.DefaultStart = c.RefStart
	cfg.Reference.DefaultEnd = c.RefStart + 29
	cfg.Reference.MinPerMonth = c.MinPerMonth
	cfg.Features.EnableLag24 = c.EnableLag24
	cfg.Features.EnableRollMean12 = c.EnableRoll12

	summary, err := pipeline.New(app.store, cfg).Run()
	if err != nil {
		return err
	}
	log.Printf("processed %d countries, %d failed, %d warnings",
		summary.Processed, summary.Failed, len(summary.Warnings))

	report := pipeline.RenderReport(summary)
	if err := os.MkdirAll(filepath.Dir(c.Report), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(c.Report, []byte(report), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	log.Printf("report written to %s", c.Report)
	return nil
}

type exportCmd struct {
	Out string `help:"Output CSV path." default:"data/temperature_data.csv"`
}

func (c *exportCmd) Run(app *appContext) error {
	aggs, err := app.store.GetCountryYears()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.Out), 0o755); err != nil {
		return err
	}
	f, err := os.Create(c.Out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := aggregate.WriteCSV(f, aggs); err != nil {
		return err
	}
	log.Printf("exported %d rows to %s", len(aggs), c.Out)
	return nil
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("emissionwiz"),
		kong.Description("Country temperature climatology, backtesting and forecasting pipeline."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	if err := os.MkdirAll(filepath.Dir(cli.DB), 0o755); err != nil {
		log.Fatalf("create db dir: %v", err)
	}
	db, err := sql.Open("sqlite", cli.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	if cli.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cli.MetricsAddr, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	if err := ctx.Run(&appContext{store: st}); err != nil {
		log.Fatalf("%s: %v", ctx.Command(), err)
	}
}
