package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/omr-eval/internal/config"
	"github.com/ironsheep/omr-eval/internal/export"
	"github.com/ironsheep/omr-eval/internal/imaging"
	"github.com/ironsheep/omr-eval/internal/keyload"
	"github.com/ironsheep/omr-eval/internal/ocr"
	"github.com/ironsheep/omr-eval/internal/omr"
	"github.com/ironsheep/omr-eval/internal/server"
	"github.com/ironsheep/omr-eval/internal/sheetid"
	"github.com/ironsheep/omr-eval/internal/store"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("omr-eval %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp(os.Stdout)
			return
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	// stdout is for MCP protocol
	log := cfg.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 && os.Args[1] == "evaluate" {
		if err := runEvaluate(ctx, cfg, log, os.Args[2:], os.Stdout); err != nil {
			log.WithError(err).Error("evaluation failed")
			os.Exit(1)
		}
		return
	}

	if err := runServer(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "omr-eval - bubble-sheet evaluation (MCP server and CLI)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  omr-eval                       Run the MCP server on stdin/stdout")
	fmt.Fprintln(w, "  omr-eval evaluate [flags] images-or-directories...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  --version, -v    Print version information")
	fmt.Fprintln(w, "  --help, -h       Print this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Evaluate flags:")
	fmt.Fprintln(w, "  -key a.csv[,B=b.csv]   Answer key files; variants default to A, B, ...")
	fmt.Fprintln(w, "  -variant A             Grade every sheet against this variant")
	fmt.Fprintln(w, "  -name Class7           Base student name")
	fmt.Fprintln(w, "  -csv out.csv           Write the summary CSV")
	fmt.Fprintln(w, "  -audit audit.csv       Write the per-question audit CSV")
	fmt.Fprintln(w, "  -workers N             Concurrent evaluations")
	fmt.Fprintln(w, "  -penalty 0.25          Points subtracted per wrong answer")
	fmt.Fprintln(w, "  -save                  Store results (needs OMR_DATABASE_URL)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintf(w, "  %s=debug           Log level (default info)\n", config.EnvLogLevel)
	fmt.Fprintf(w, "  %s=grid.json     Sheet layout override\n", config.EnvGridConfig)
	fmt.Fprintf(w, "  %s=4                 Default worker count\n", config.EnvWorkers)
	fmt.Fprintf(w, "  %s=postgres://...  Results database\n", config.EnvDatabaseURL)
	fmt.Fprintf(w, "  %s=/path     Tesseract data directory\n", config.EnvTessdataPrefix)
	fmt.Fprintf(w, "  %s=eng          Tesseract language\n", config.EnvOCRLanguage)
}

// openStore returns nil when no database is configured.
func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*sql.DB, *store.ResultRepo, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, nil
	}
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	repo := store.NewResultRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("results database ready")
	return db, repo, nil
}

func runServer(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	log.WithFields(logrus.Fields{
		"version": Version,
		"built":   BuildTime,
		"commit":  GitCommit,
		"ocr":     ocr.GetInfo().Version,
	}).Debug("starting MCP server")

	db, repo, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	srv := server.New(server.Options{
		Grid:            cfg.Grid,
		Workers:         cfg.Workers,
		Logger:          log,
		Results:         repo,
		VariantDetector: ocr.NewLabelReader(cfg.OCRLanguage, cfg.TessdataPrefix),
		SheetIDReader:   sheetid.NewReader(),
		Version:         Version,
	})
	return srv.Run(ctx)
}

// parseKeyFlag splits "a.csv,B=b.csv" into variant files. Unnamed entries
// take the letter of their position.
func parseKeyFlag(s string) ([]keyload.VariantFile, error) {
	var files []keyload.VariantFile
	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		vf := keyload.VariantFile{Variant: omr.ChoiceLetter(i), Path: part}
		if v, p, ok := strings.Cut(part, "="); ok {
			if v == "" || p == "" {
				return nil, fmt.Errorf("bad key entry %q", part)
			}
			vf = keyload.VariantFile{Variant: strings.ToUpper(v), Path: p}
		}
		files = append(files, vf)
	}
	if len(files) == 0 {
		return nil, errors.New("-key is required")
	}
	return files, nil
}

func runEvaluate(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	keyFlag := fs.String("key", "", "answer key files (.csv or .xlsx): a.csv[,B=b.xlsx]")
	variant := fs.String("variant", "", "grade against this key variant")
	name := fs.String("name", "", "base student name")
	csvPath := fs.String("csv", "", "write summary CSV here")
	auditPath := fs.String("audit", "", "write per-question audit CSV here")
	workers := fs.Int("workers", cfg.Workers, "concurrent evaluations")
	penalty := fs.Float64("penalty", 0, "points subtracted per wrong answer")
	threshold := fs.Float64("threshold", omr.DefaultFillThreshold, "fill threshold")
	margin := fs.Float64("margin", omr.DefaultAmbiguityMargin, "ambiguity margin")
	save := fs.Bool("save", false, "store results in the database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	paths, err := expandPaths(fs.Args())
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no images given")
	}

	files, err := parseKeyFlag(*keyFlag)
	if err != nil {
		return err
	}
	keys, err := keyload.LoadSet(cfg.Grid, files...)
	if err != nil {
		return err
	}

	var repo *store.ResultRepo
	if *save {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("-save needs %s", config.EnvDatabaseURL)
		}
		db, r, err := openStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer db.Close()
		repo = r
	}

	opts := omr.DefaultOptions()
	opts.FillThreshold = *threshold
	opts.AmbiguityMargin = *margin
	opts.Scoring.WrongPenalty = *penalty
	opts.Variant = *variant
	opts.VariantDetector = ocr.NewLabelReader(cfg.OCRLanguage, cfg.TessdataPrefix)
	opts.SheetIDReader = sheetid.NewReader()
	opts.Logger = log

	inputs := make([]omr.BatchInput, len(paths))
	for i, p := range paths {
		path := p
		inputs[i] = omr.BatchInput{
			Label: filepath.Base(path),
			Load:  func() (image.Image, error) { return loadImage(path) },
		}
	}

	res := omr.RunBatch(ctx, inputs, cfg.Grid, keys, omr.BatchOptions{
		Workers:  *workers,
		Name:     *name,
		Evaluate: opts,
	})

	if err := export.WriteSummary(out, cfg.Grid, res.Items); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nevaluated %d, failed %d, average %.2f, highest %d, lowest %d\n",
		res.Stats.Evaluated, res.Stats.Failed, res.Stats.AverageTotal, res.Stats.HighestTotal, res.Stats.LowestTotal)
	if res.Stats.Failed > 0 {
		fmt.Fprintln(out)
		if err := export.WriteFailures(out, res.Items); err != nil {
			return err
		}
	}

	if err := writeFile(*csvPath, func(w io.Writer) error { return export.WriteSummary(w, cfg.Grid, res.Items) }); err != nil {
		return err
	}
	if err := writeFile(*auditPath, func(w io.Writer) error { return export.WriteAudit(w, res.Items) }); err != nil {
		return err
	}

	if repo != nil {
		n, err := repo.SaveBatch(ctx, res)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"run_id": res.RunID, "saved": n}).Info("results stored")
	}

	if res.Stats.Evaluated == 0 {
		return errors.New("no sheet could be evaluated")
	}
	return nil
}

// expandPaths replaces each directory argument by the images inside it.
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, a := range args {
		info, err := os.Stat(a)
		if err != nil || !info.IsDir() {
			// missing files are reported per sheet
			paths = append(paths, a)
			continue
		}
		found, err := imaging.ListImages(a)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}

// loadImage decodes one sheet without caching it; a CLI run reads each file once.
func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	return imaging.Decode(f)
}

// writeFile is a no-op for an empty path.
func writeFile(path string, write func(io.Writer) error) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
