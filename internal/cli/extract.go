package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/bloodlens/internal/pdfextract"
)

// pdfOpener is the PDF backend used by local commands.
var pdfOpener pdfextract.OpenFunc = pdfextract.OpenPDF

func newExtractCmd() *cobra.Command {
	var textOnly bool

	cmd := &cobra.Command{
		Use:   "extract <report.pdf>",
		Short: "Extract and check the text of a blood report PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			res, size, err := extractFile(cfg.Upload.Extractor(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !textOnly {
				fmt.Fprintf(out, "File:          %s (%s)\n", filepath.Base(args[0]), humanize.IBytes(uint64(size)))
				fmt.Fprintf(out, "Pages:         %d\n", res.Pages)
				fmt.Fprintf(out, "Matched terms: %s\n\n", strings.Join(res.MatchedTerms, ", "))
			}
			fmt.Fprintln(out, res.Text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&textOnly, "text", false, "Print only the extracted text")
	return cmd
}

// extractFile runs the upload checks and extraction on a local file.
func extractFile(cfg pdfextract.Config, path string) (*pdfextract.Result, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat report: %w", err)
	}

	res, err := pdfextract.New(cfg, logger).WithOpener(pdfOpener).Extract(filepath.Base(path), f, info.Size())
	if err != nil {
		return nil, 0, err
	}
	return res, info.Size(), nil
}
