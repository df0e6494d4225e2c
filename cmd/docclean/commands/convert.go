package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/documentcleanflow/internal/ocr"
	"github.com/Lllllllleong/documentcleanflow/internal/services"
)

var (
	convertFormat      string
	convertZip         bool
	convertEngine      string
	convertLangs       []string
	convertDPI         float64
	convertWorkers     int
	convertOutputDir   string
	convertKeepCleaned bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>...",
	Short: "Clean and convert documents into an output directory",
	Long: `Convert cleans every PDF, runs OCR on it (images are recognized directly)
and moves the results into the output directory. A file that fails is
reported and the remaining files are still converted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	f := convertCmd.Flags()
	f.StringVarP(&convertFormat, "format", "f", "", "output format: markdown, text or json (default OUTPUT_FORMAT)")
	f.BoolVar(&convertZip, "zip", false, "also write converted.zip into the output directory")
	f.StringVarP(&convertEngine, "engine", "e", "", "ocr engine: tesseract or gemini (default OCR_ENGINE)")
	f.StringSliceVarP(&convertLangs, "lang", "l", nil, "ocr languages (default OCR_LANGUAGES)")
	f.Float64Var(&convertDPI, "dpi", 0, "render resolution")
	f.IntVarP(&convertWorkers, "workers", "w", 0, "files converted in parallel (default FILE_WORKERS)")
	f.StringVarP(&convertOutputDir, "output-dir", "o", "", "output directory (default OUTPUT_DIR)")
	f.BoolVar(&convertKeepCleaned, "keep-cleaned", false, "keep <name>.clean.pdf next to each input")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.OutputFormat = convertFormat
	}
	if flags.Changed("engine") {
		cfg.OCREngine = convertEngine
	}
	if flags.Changed("lang") {
		cfg.OCRLanguages = convertLangs
	}
	if flags.Changed("dpi") {
		cfg.RenderDPI = convertDPI
	}
	if flags.Changed("workers") {
		cfg.FileWorkers = convertWorkers
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = convertOutputDir
	}

	format, err := ocr.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return err
	}

	ctx := context.Background()
	converter, err := services.NewConverterFromConfig(ctx, cfg, convertKeepCleaned)
	if err != nil {
		return err
	}
	defer converter.Close()
	batch := services.NewBatchProcessor(converter, services.BatchOptions{
		OutputDir:   cfg.OutputDir,
		FileWorkers: cfg.FileWorkers,
	})

	res, err := batch.ProcessMultipleFiles(ctx, args, format, convertZip)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, p := range res.Outputs {
		fmt.Fprintln(out, p)
	}
	if res.ArchivePath != "" {
		fmt.Fprintln(out, res.ArchivePath)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "failed: %v\n", f)
	}
	if len(res.Failures) > 0 {
		return fmt.Errorf("%d of %d files failed", len(res.Failures), len(args))
	}
	return nil
}
