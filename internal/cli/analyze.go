package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/bloodlens/internal/analysis"
	"github.com/me/bloodlens/internal/llm"
	"github.com/me/bloodlens/internal/ratelimit"
	"github.com/me/bloodlens/internal/validate"
	"github.com/me/bloodlens/pkg/model"
)

const usageFileName = "usage.json"

// now is the clock of local commands.
var now = time.Now

type analyzeOptions struct {
	sample    bool
	file      string
	name      string
	age       string
	gender    string
	date      string
	kind      string
	systolic  string
	diastolic string
	outDir    string
	quiet     bool
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a blood report with the configured LLM",
		Long: "Analyze a blood report PDF (or the built-in sample) and write the result\n" +
			"to blood_report_analysis_<patient>_<date>.txt. Local runs share one daily\n" +
			"quota stored in ~/.bloodlens/usage.json.",
		Example: "  bloodlens analyze --sample --name \"Jane Doe\" --age 42 --gender Female\n" +
			"  bloodlens analyze --file report.pdf --name \"John Roe\" --age 61 --gender Male --type cardiologist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.sample, "sample", false, "Use the built-in sample report")
	f.StringVar(&opts.file, "file", "", "Blood report PDF")
	f.StringVar(&opts.name, "name", "", "Patient name")
	f.StringVar(&opts.age, "age", "", "Patient age")
	f.StringVar(&opts.gender, "gender", "", "Patient gender (Male, Female, Other)")
	f.StringVar(&opts.date, "date", "", "Report date as YYYY-MM-DD (default today)")
	f.StringVar(&opts.kind, "type", analysis.TypeComprehensive, "Analysis type")
	f.StringVar(&opts.systolic, "systolic", "", "Systolic blood pressure (mmHg)")
	f.StringVar(&opts.diastolic, "diastolic", "", "Diastolic blood pressure (mmHg)")
	f.StringVarP(&opts.outDir, "out", "o", ".", "Directory for the analysis file")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print the analysis")
	return cmd
}

func runAnalyze(cmd *cobra.Command, opts analyzeOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req, err := buildAnalysisRequest(opts, func(path string) (string, error) {
		res, _, err := extractFile(cfg.Upload.Extractor(), path)
		if err != nil {
			return "", err
		}
		return res.Text, nil
	})
	if err != nil {
		return err
	}
	if cfg.LLM.APIKey == "" {
		return errors.New("GROQ_API_KEY is not set")
	}

	limiter := ratelimit.New(cfg.Analysis.DailyLimit, cfg.Analysis.Window.Std()).WithClock(now)
	svc := analysis.NewService(llm.NewClient(cfg.LLM.Client(), logger), limiter, logger)

	usage, err := loadUsage()
	if err != nil {
		return err
	}
	text, err := svc.Analyze(cmd.Context(), &usage, req, opts.kind)
	if saveErr := saveUsage(usage); saveErr != nil {
		logger.Warn("save usage failed", "error", saveErr)
	}
	if err != nil {
		return err
	}

	report := &model.Report{PatientName: req.PatientName, ReportDate: req.DateOfReport, Analysis: text}
	path := filepath.Join(opts.outDir, analysis.FileName(report))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write analysis: %w", err)
	}

	out := cmd.OutOrStdout()
	if !opts.quiet {
		fmt.Fprintln(out, text)
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "Analysis saved to %s (%d of %d analyses left today)\n",
		path, limiter.Remaining(usage), limiter.Limit())
	return nil
}

// buildAnalysisRequest validates the flags like the web form does.
func buildAnalysisRequest(opts analyzeOptions, extract func(path string) (string, error)) (*model.AnalysisRequest, error) {
	age, err := validate.Patient(opts.name, opts.age, opts.gender)
	if err != nil {
		return nil, err
	}

	date := now()
	if opts.date != "" {
		if date, err = time.Parse("2006-01-02", opts.date); err != nil {
			return nil, model.NewValidationError("Please enter a valid report date")
		}
	}

	req := &model.AnalysisRequest{
		PatientName:  opts.name,
		Age:          age,
		Gender:       opts.gender,
		DateOfReport: date.Format(model.ReportDateLayout),
	}

	if opts.systolic != "" || opts.diastolic != "" {
		sys, dia, err := validate.BloodPressure(opts.systolic, opts.diastolic)
		if err != nil {
			return nil, err
		}
		req.SystolicBP, req.DiastolicBP = &sys, &dia
	}

	if !analysis.IsValidType(opts.kind) {
		return nil, model.NewValidationError("Please select a valid analysis type")
	}

	switch {
	case opts.sample && opts.file != "":
		return nil, model.NewValidationError("Use either --sample or --file, not both")
	case opts.sample:
		req.ReportText = analysis.SampleReport
	case opts.file != "":
		if req.ReportText, err = extract(opts.file); err != nil {
			return nil, err
		}
	default:
		return nil, model.NewValidationError("Please upload a PDF report or use the sample report")
	}
	return req, nil
}

func usagePath() (string, error) {
	p, err := credentialsPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(p), usageFileName), nil
}

func loadUsage() (model.Usage, error) {
	var usage model.Usage
	p, err := usagePath()
	if err != nil {
		return usage, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return usage, nil
	}
	if err != nil {
		return usage, fmt.Errorf("read usage: %w", err)
	}
	if err := json.Unmarshal(data, &usage); err != nil {
		logger.Warn("ignoring corrupt usage file", "path", p, "error", err)
		return model.Usage{}, nil
	}
	return usage, nil
}

func saveUsage(usage model.Usage) error {
	p, err := usagePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(usage, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o600)
}
