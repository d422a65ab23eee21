package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/me/bloodlens/internal/llm"
	"github.com/me/bloodlens/internal/ratelimit"
	"github.com/me/bloodlens/pkg/model"
)

type fakeLLM struct {
	mu    sync.Mutex
	calls [][]llm.Message
	reply func(system string) (string, error)
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, messages)
	f.mu.Unlock()
	if f.reply == nil {
		return "analysis text", nil
	}
	return f.reply(messages[0].Content)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func sampleRequest() *model.AnalysisRequest {
	return &model.AnalysisRequest{
		PatientName:  "Jane Doe",
		Age:          30,
		Gender:       "Female",
		DateOfReport: "01/03/2024",
		ReportText:   SampleReport,
	}
}

func newTestService(f *fakeLLM, limit int) *Service {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(limit, 24*time.Hour).WithClock(func() time.Time { return now })
	return NewService(f, limiter, nil)
}

func TestGenerate_Success(t *testing.T) {
	f := &fakeLLM{}
	svc := newTestService(f, 10)
	var usage model.Usage

	text, err := svc.Generate(context.Background(), &usage, sampleRequest(), Prompts[TypeComprehensive])
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "analysis text" {
		t.Errorf("text = %q", text)
	}
	if usage.Count != 1 {
		t.Errorf("count = %d, want 1", usage.Count)
	}

	msgs := f.calls[0]
	if len(msgs) != 2 || msgs[0].Role != llm.RoleSystem || msgs[1].Role != llm.RoleUser {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].Content != Prompts[TypeComprehensive] {
		t.Error("system prompt not passed through")
	}
	payload, ok := strings.CutPrefix(msgs[1].Content, "Analyze this patient data: ")
	if !ok {
		t.Fatalf("user message = %q", msgs[1].Content)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded["patient_name"] != "Jane Doe" || decoded["blood_report"] != SampleReport {
		t.Errorf("payload = %v", decoded)
	}
}

func TestGenerate_RateLimited(t *testing.T) {
	f := &fakeLLM{}
	svc := newTestService(f, 2)
	var usage model.Usage

	for i := 0; i < 2; i++ {
		if _, err := svc.Generate(context.Background(), &usage, sampleRequest(), "p"); err != nil {
			t.Fatalf("Generate %d: %v", i+1, err)
		}
	}
	_, err := svc.Generate(context.Background(), &usage, sampleRequest(), "p")
	if model.CodeOf(err) != model.ErrRateLimited {
		t.Fatalf("code = %s, want RATE_LIMITED", model.CodeOf(err))
	}
	if !strings.HasPrefix(model.UserMessage(err), "Daily analysis limit of 2 reached.") {
		t.Errorf("message = %q", model.UserMessage(err))
	}
	if f.callCount() != 2 {
		t.Errorf("LLM called %d times, want 2", f.callCount())
	}
}

func TestGenerate_UpstreamErrorDoesNotCount(t *testing.T) {
	f := &fakeLLM{reply: func(string) (string, error) { return "", errors.New("HTTP 500") }}
	svc := newTestService(f, 10)
	var usage model.Usage

	_, err := svc.Generate(context.Background(), &usage, sampleRequest(), "p")
	if model.CodeOf(err) != model.ErrUpstream {
		t.Fatalf("code = %s, want UPSTREAM_ERROR", model.CodeOf(err))
	}
	if usage.Count != 0 {
		t.Errorf("count = %d, want 0 after failure", usage.Count)
	}
}

func TestAnalyze_Types(t *testing.T) {
	tests := []struct {
		typ        string
		wantPrompt string
		wantErr    model.ErrorCode
	}{
		{"", Prompts[TypeComprehensive], ""},
		{TypeCardiologist, Prompts[TypeCardiologist], ""},
		{TypePsychologist, Prompts[TypePsychologist], ""},
		{"astrologer", "", model.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			f := &fakeLLM{}
			svc := newTestService(f, 10)
			var usage model.Usage
			_, err := svc.Analyze(context.Background(), &usage, sampleRequest(), tt.typ)
			if tt.wantErr != "" {
				if model.CodeOf(err) != tt.wantErr {
					t.Errorf("code = %s, want %s", model.CodeOf(err), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if f.calls[0][0].Content != tt.wantPrompt {
				t.Error("wrong system prompt")
			}
		})
	}
}

func TestAnalyze_Panel(t *testing.T) {
	f := &fakeLLM{reply: func(system string) (string, error) {
		switch system {
		case Prompts[TypeCardiologist]:
			return "cardio ok", nil
		case Prompts[TypePulmonologist]:
			return "lungs ok", nil
		case Prompts[TypePsychologist]:
			return "mood ok", nil
		}
		if strings.Contains(system, "Cardiology: cardio ok") && strings.Contains(system, "Psychology: mood ok") {
			return "healthy overall", nil
		}
		return "", errors.New("unexpected prompt")
	}}
	svc := newTestService(f, 10)
	var usage model.Usage

	text, err := svc.Analyze(context.Background(), &usage, sampleRequest(), TypePanel)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if f.callCount() != 4 {
		t.Errorf("LLM calls = %d, want 4", f.callCount())
	}
	if usage.Count != 1 {
		t.Errorf("panel should count once, got %d", usage.Count)
	}
	for _, want := range []string{"FINAL DIAGNOSIS", "healthy overall", "CARDIOLOGIST ANALYSIS", "lungs ok"} {
		if !strings.Contains(text, want) {
			t.Errorf("panel text missing %q", want)
		}
	}
}

func TestAnalyze_PanelFailure(t *testing.T) {
	f := &fakeLLM{reply: func(system string) (string, error) {
		if system == Prompts[TypePulmonologist] {
			return "", errors.New("timeout")
		}
		return "ok", nil
	}}
	svc := newTestService(f, 10)
	var usage model.Usage

	_, err := svc.Analyze(context.Background(), &usage, sampleRequest(), TypePanel)
	if model.CodeOf(err) != model.ErrUpstream {
		t.Fatalf("code = %s, want UPSTREAM_ERROR", model.CodeOf(err))
	}
	if usage.Count != 0 {
		t.Errorf("count = %d, want 0", usage.Count)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name, date, want string
	}{
		{"Jane Doe", "01/03/2024", "blood_report_analysis_Jane_Doe_01-03-2024.txt"},
		{"  Ann  ", "15/12/2023", "blood_report_analysis_Ann_15-12-2023.txt"},
		{"", "15/12/2023", "blood_report_analysis_patient_15-12-2023.txt"},
	}
	for _, tt := range tests {
		got := FileName(&model.Report{PatientName: tt.name, ReportDate: tt.date})
		if got != tt.want {
			t.Errorf("FileName(%q, %q) = %q, want %q", tt.name, tt.date, got, tt.want)
		}
	}
}

func TestSampleReport_PassesHeuristic(t *testing.T) {
	for _, want := range []string{"Hemoglobin", "Glucose", "Cholesterol", "Reference Range"} {
		if !strings.Contains(SampleReport, want) {
			t.Errorf("sample report missing %q", want)
		}
	}
	if !IsValidType(TypePanel) || IsValidType("nope") {
		t.Error("IsValidType mismatch")
	}
}
