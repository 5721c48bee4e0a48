// Command towerctl runs tower maintenance tasks against the configured store:
// CSV imports, path-loss calibration, and reference-loss estimates.
//
// Usage:
//
//	towerctl import -file towers.csv -source OPENCELLID
//	towerctl import -bucket imports -key mls-2026-10.csv -update-existing=false
//	towerctl calibrate -samples drive-test.csv
//	towerctl ref-loss -earfcn 6200
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/couchcryptid/cell-locator/internal/adapter/objectstore"
	"github.com/couchcryptid/cell-locator/internal/adapter/sqlstore"
	"github.com/couchcryptid/cell-locator/internal/calibration"
	"github.com/couchcryptid/cell-locator/internal/config"
	"github.com/couchcryptid/cell-locator/internal/domain"
	"github.com/couchcryptid/cell-locator/internal/geometry"
	"github.com/couchcryptid/cell-locator/internal/importer"
	"github.com/couchcryptid/cell-locator/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
)

const usage = `usage: towerctl <command> [flags]

commands:
  import     load a tower CSV into the store
  calibrate  estimate path-loss parameters from ground-truth samples
  ref-loss   reference loss at 1 m for an EARFCN or frequency`

var errUsage = errors.New(usage)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "import":
		return runImport(ctx, args[1:], out)
	case "calibrate":
		return runCalibrate(args[1:], out)
	case "ref-loss":
		return runRefLoss(args[1:], out)
	default:
		return fmt.Errorf("unknown command %q\n%w", args[0], errUsage)
	}
}

func runImport(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	file := fs.String("file", "", "local CSV file")
	bucket := fs.String("bucket", "", "object storage bucket")
	key := fs.String("key", "", "object key within -bucket")
	source := fs.String("source", "", "dataset source for rows without a source column (MLS, OPENCELLID, ...)")
	updateExisting := fs.Bool("update-existing", true, "overwrite coordinates of towers with fewer samples")
	batchSize := fs.Int("batch-size", importer.DefaultBatchSize, "rows per database batch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*file == "") == (*bucket == "" || *key == "") {
		return errors.New("import: give either -file or both -bucket and -key")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.LogLevel, "text")

	var r io.ReadCloser
	if *file != "" {
		if r, err = os.Open(*file); err != nil {
			return err
		}
	} else {
		client, err := objectstore.NewClient(cfg, logger)
		if err != nil {
			return err
		}
		if r, err = client.Open(ctx, *bucket, *key); err != nil {
			return err
		}
	}
	defer r.Close()

	dsSource := domain.SourceOther
	if *source != "" {
		dsSource = domain.ParseDatasetSource(strings.ToUpper(*source))
	}
	src, err := importer.NewCSVSource(r, dsSource)
	if err != nil {
		return err
	}

	dialect, err := sqlstore.ParseDialect(cfg.StoreDriver)
	if err != nil {
		return fmt.Errorf("import needs a database store: %w", err)
	}
	dsn := cfg.DatabaseURL
	if dialect == sqlstore.SQLite {
		dsn = cfg.SQLitePath
	}
	store, err := sqlstore.Open(ctx, dialect, dsn, clockwork.NewRealClock())
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	imp := importer.New(store, nil, logger, observability.NewMetrics())
	res, err := imp.Run(ctx, "", src, importer.Options{UpdateExisting: *updateExisting, BatchSize: *batchSize})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runCalibrate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	path := fs.String("samples", "", "CSV with tower_lat,tower_lon,rsrp,user_lat,user_lon[,tx,ref_loss]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("calibrate: -samples is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		return err
	}
	defer f.Close()
	samples, err := calibration.ReadSamples(f)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tdistance_m\trsrp\tn_effective")
	for i, s := range samples {
		est, err := calibration.EffectiveExponent(s)
		if err != nil {
			fmt.Fprintf(tw, "%d\t-\t%d\t%v\n", i+1, s.RSRP, err)
			continue
		}
		fmt.Fprintf(tw, "%d\t%.1f\t%d\t%.3f\n", i+1, est.DistanceM, s.RSRP, est.Exponent)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fit, err := calibration.Fit(samples)
	if err != nil {
		fmt.Fprintf(out, "\nfit: %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "\nfit over %d samples: PATH_LOSS_REF_LOSS=%.2f PATH_LOSS_N=%.3f (r2 %.3f)\n",
		fit.Samples, fit.RefLoss, fit.Exponent, fit.R2)
	return nil
}

func runRefLoss(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ref-loss", flag.ContinueOnError)
	earfcn := fs.Int("earfcn", -1, "LTE EARFCN")
	freq := fs.Float64("freq-mhz", 0, "carrier frequency in MHz, instead of -earfcn")
	gt := fs.Float64("gt-dbi", geometry.DefaultLinkBudget.TxGainDBi, "transmit antenna gain")
	gr := fs.Float64("gr-dbi", geometry.DefaultLinkBudget.RxGainDBi, "receive antenna gain")
	losses := fs.Float64("system-losses-db", geometry.DefaultLinkBudget.SystemLossDB, "cable and body losses")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := *freq
	if f <= 0 {
		if *earfcn < 0 {
			return errors.New("ref-loss: give -earfcn or -freq-mhz")
		}
		var ok bool
		if f, ok = geometry.EARFCNToFrequencyMHz(*earfcn); !ok {
			return fmt.Errorf("ref-loss: EARFCN %d is outside the supported LTE bands", *earfcn)
		}
	}
	lb := geometry.LinkBudget{TxGainDBi: *gt, RxGainDBi: *gr, SystemLossDB: *losses}
	fmt.Fprintf(out, "freq_mhz=%.1f ref_loss_db=%.2f\n", f, geometry.RefLossAtFrequency(f, lb))
	return nil
}
