package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/bloodlens/internal/analysis"
	"github.com/me/bloodlens/pkg/model"
)

func newReportsCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List your saved analyses on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))
			resp, err := client.AuthGet("/api/v1/reports?" + q.Encode())
			if err != nil {
				return fmt.Errorf("list reports: %w", err)
			}

			var reports []model.Report
			if err := json.Unmarshal(resp.Data, &reports); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(reports) == 0 {
				fmt.Fprintln(out, "No reports found.")
				return nil
			}

			fmt.Fprintf(out, "%-40s  %-24s  %-10s  %-22s  %s\n", "ID", "PATIENT", "DATE", "TYPE", "CREATED")
			fmt.Fprintf(out, "%-40s  %-24s  %-10s  %-22s  %s\n", "--", "-------", "----", "----", "-------")
			for _, r := range reports {
				fmt.Fprintf(out, "%-40s  %-24s  %-10s  %-22s  %s\n",
					r.ID, r.PatientName, r.ReportDate, r.AnalysisType, humanize.Time(r.CreatedAt))
			}

			if p := resp.Pagination; p != nil && p.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown; next page: --offset %d)\n", len(reports), p.Total, p.NextOffset())
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of reports")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of reports to skip")
	return cmd
}

func newReportCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "report <id>",
		Short: "Show a saved analysis, or download it with --out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.AuthGet("/api/v1/reports/" + url.PathEscape(args[0]))
			if err != nil {
				return fmt.Errorf("get report: %w", err)
			}

			var r model.Report
			if err := json.Unmarshal(resp.Data, &r); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if outDir != "" {
				path := filepath.Join(outDir, analysis.FileName(&r))
				if err := os.WriteFile(path, []byte(r.Analysis), 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(out, "Report saved to %s\n", path)
				return nil
			}

			fmt.Fprintf(out, "Patient: %s (%d, %s)\n", r.PatientName, r.Age, r.Gender)
			fmt.Fprintf(out, "Date:    %s\n", r.ReportDate)
			fmt.Fprintf(out, "Type:    %s\n\n", r.AnalysisType)
			fmt.Fprintln(out, r.Analysis)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Write the analysis file into this directory")
	return cmd
}
