package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/documentcleanflow/internal/preprocess"
)

var (
	preprocessDPI       float64
	preprocessWorkers   int
	preprocessKeepPages bool
)

var preprocessCmd = &cobra.Command{
	Use:   "preprocess <src.pdf> <dst.pdf>",
	Short: "Clean a scanned PDF into a new image-only PDF",
	Args:  cobra.ExactArgs(2),
	RunE:  runPreprocess,
}

func init() {
	preprocessCmd.Flags().Float64Var(&preprocessDPI, "dpi", 0, "render resolution (0 uses RENDER_DPI, else 200)")
	preprocessCmd.Flags().IntVar(&preprocessWorkers, "page-workers", 0, "pages enhanced in parallel (0 uses PAGE_WORKERS)")
	preprocessCmd.Flags().BoolVar(&preprocessKeepPages, "keep-pages", false, "keep the enhanced page images")
	rootCmd.AddCommand(preprocessCmd)
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("dpi") {
		cfg.RenderDPI = preprocessDPI
	}
	if cmd.Flags().Changed("page-workers") {
		cfg.PageWorkers = preprocessWorkers
	}
	if preprocessKeepPages {
		cfg.KeepWorkspace = true
	}

	p := preprocess.NewDefaultPreprocessor(cfg.RenderDPI, cfg.PreprocessOptions())
	res, err := p.Run(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d pages)\n", res.OutputPath, res.PageCount)
	if res.WorkspaceDir != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "page images kept in %s\n", res.WorkspaceDir)
	}
	return nil
}
