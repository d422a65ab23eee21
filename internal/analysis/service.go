// Package analysis produces AI analyses of blood reports, enforcing the
// per-session quota before any call to the model.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/me/bloodlens/internal/llm"
	"github.com/me/bloodlens/internal/ratelimit"
	"github.com/me/bloodlens/pkg/model"
)

// Completer is a chat-completions backend.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Service generates analyses.
type Service struct {
	llm      Completer
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	tracer   trace.Tracer
	requests metric.Int64Counter
}

// NewService creates a Service.
func NewService(completer Completer, limiter *ratelimit.Limiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	requests, _ := otel.Meter("github.com/me/bloodlens/internal/analysis").Int64Counter(
		"analysis.requests",
		metric.WithDescription("Analysis requests by outcome"))
	return &Service{
		llm:      completer,
		limiter:  limiter,
		logger:   logger.With("component", "analysis"),
		tracer:   otel.Tracer("github.com/me/bloodlens/internal/analysis"),
		requests: requests,
	}
}

// Limiter returns the quota enforcer.
func (s *Service) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// Generate runs one analysis with the given system prompt. A denied quota
// check returns RATE_LIMITED without calling the model. The usage count is
// incremented only when the model call succeeds.
func (s *Service) Generate(ctx context.Context, usage *model.Usage, req *model.AnalysisRequest, systemPrompt string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "analysis.generate")
	defer span.End()

	if d := s.limiter.Check(usage); !d.Allowed {
		s.count(ctx, "rate_limited")
		span.SetAttributes(attribute.Bool("analysis.rate_limited", true))
		return "", model.NewRateLimitError(d.Message)
	}

	text, err := s.complete(ctx, req, systemPrompt)
	if err != nil {
		s.count(ctx, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("analysis failed", "error", err)
		return "", upstreamError(err)
	}

	s.limiter.Record(usage)
	s.count(ctx, "ok")
	s.logger.Info("analysis generated", "count", usage.Count, "chars", len(text))
	return text, nil
}

// Analyze runs the analysis named by analysisType. The specialist panel
// counts as a single analysis against the quota.
func (s *Service) Analyze(ctx context.Context, usage *model.Usage, req *model.AnalysisRequest, analysisType string) (string, error) {
	if analysisType == "" {
		analysisType = TypeComprehensive
	}
	if analysisType == TypePanel {
		return s.panel(ctx, usage, req)
	}
	prompt, ok := Prompts[analysisType]
	if !ok {
		return "", model.NewValidationError(fmt.Sprintf("Unknown analysis type %q", analysisType))
	}
	return s.Generate(ctx, usage, req, prompt)
}

func (s *Service) panel(ctx context.Context, usage *model.Usage, req *model.AnalysisRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "analysis.panel")
	defer span.End()

	if d := s.limiter.Check(usage); !d.Allowed {
		s.count(ctx, "rate_limited")
		return "", model.NewRateLimitError(d.Message)
	}

	specialists := []string{TypeCardiologist, TypePulmonologist, TypePsychologist}
	results := make([]string, len(specialists))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range specialists {
		g.Go(func() error {
			text, err := s.complete(gctx, req, Prompts[name])
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			results[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.count(ctx, "error")
		span.RecordError(err)
		s.logger.Error("specialist analysis failed", "error", err)
		return "", upstreamError(err)
	}

	final, err := s.complete(ctx, req, SynthesisPrompt(results[0], results[1], results[2]))
	if err != nil {
		s.count(ctx, "error")
		span.RecordError(err)
		s.logger.Error("synthesis failed", "error", err)
		return "", upstreamError(err)
	}

	s.limiter.Record(usage)
	s.count(ctx, "ok")

	var b strings.Builder
	b.WriteString("FINAL DIAGNOSIS\n\n")
	b.WriteString(final)
	for i, name := range specialists {
		fmt.Fprintf(&b, "\n\n%s ANALYSIS\n\n%s", strings.ToUpper(name), results[i])
	}
	return b.String(), nil
}

func (s *Service) complete(ctx context.Context, req *model.AnalysisRequest, systemPrompt string) (string, error) {
	userMsg, err := UserMessage(req)
	if err != nil {
		return "", err
	}
	return s.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userMsg},
	})
}

func (s *Service) count(ctx context.Context, outcome string) {
	s.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// UserMessage serializes the patient data into the single user turn.
func UserMessage(req *model.AnalysisRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling patient data: %w", err)
	}
	return "Analyze this patient data: " + string(data), nil
}

func upstreamError(err error) error {
	return model.NewUpstreamError("Error generating analysis: "+err.Error(), err)
}

// FileName is the download name of a report:
// blood_report_analysis_<patient>_<dd-mm-yyyy>.txt.
func FileName(r *model.Report) string {
	name := strings.Join(strings.Fields(r.PatientName), "_")
	if name == "" {
		name = "patient"
	}
	date := strings.ReplaceAll(r.ReportDate, "/", "-")
	return fmt.Sprintf("blood_report_analysis_%s_%s.txt", name, date)
}
