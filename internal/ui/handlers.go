package ui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/me/bloodlens/internal/analysis"
	"github.com/me/bloodlens/internal/config"
	"github.com/me/bloodlens/internal/pdfextract"
	"github.com/me/bloodlens/internal/session"
	"github.com/me/bloodlens/internal/store"
	"github.com/me/bloodlens/internal/validate"
	"github.com/me/bloodlens/pkg/model"
)

// formDateLayout is the value format of <input type="date">.
const formDateLayout = "2006-01-02"

// UI handles the web user interface.
type UI struct {
	store     store.Store
	sessions  *session.Manager
	analyzer  *analysis.Service
	extractor *pdfextract.Extractor
	logger    *slog.Logger
	theme     config.ThemeConfig
	tokenTTL  time.Duration
	secure    bool // Use secure cookies (HTTPS)
	now       func() time.Time
}

// Config holds UI configuration.
type Config struct {
	Secure   bool // Use secure cookies for HTTPS
	TokenTTL time.Duration
	Theme    config.ThemeConfig
}

// New creates a new UI handler.
func New(st store.Store, sessions *session.Manager, analyzer *analysis.Service, extractor *pdfextract.Extractor, logger *slog.Logger, cfg Config) *UI {
	return &UI{
		store:     st,
		sessions:  sessions,
		analyzer:  analyzer,
		extractor: extractor,
		logger:    logger.With("component", "ui"),
		theme:     cfg.Theme,
		tokenTTL:  cfg.TokenTTL,
		secure:    cfg.Secure,
		now:       time.Now,
	}
}

// HandleLogin renders the login page.
func (ui *UI) HandleLogin(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	if ui.sessions.IsAuthenticated(sess) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	data := ui.page(r, "Login - BloodLens")
	data["Error"] = r.URL.Query().Get("error")
	ui.render(w, http.StatusOK, "login", data)
}

// HandleLoginPost processes the login form.
func (ui *UI) HandleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login?error=Invalid+request", http.StatusSeeOther)
		return
	}
	sess := SessionFromContext(r.Context())
	email := strings.TrimSpace(r.FormValue("email"))

	if err := ui.sessions.Login(r.Context(), sess, email, r.FormValue("password")); err != nil {
		ui.logger.Warn("login failed", "email", email, "error", err)
		http.Redirect(w, r, "/login?error="+url.QueryEscape(model.UserMessage(err)), http.StatusSeeOther)
		return
	}

	session.SetTokenCookie(w, sess.AuthToken, ui.tokenTTL, ui.secure)
	ui.logger.Info("user logged in", "user_id", sess.User.ID, "session_id", sess.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleSignup renders the signup page.
func (ui *UI) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if ui.sessions.IsAuthenticated(SessionFromContext(r.Context())) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := ui.page(r, "Sign up - BloodLens")
	data["Form"] = validate.SignupForm{}
	ui.render(w, http.StatusOK, "signup", data)
}

// HandleSignupPost creates an account and signs the session in.
// Failures re-render the form with the entered name and email.
func (ui *UI) HandleSignupPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/signup", http.StatusSeeOther)
		return
	}
	sess := SessionFromContext(r.Context())
	form := validate.SignupForm{
		Name:            strings.TrimSpace(r.FormValue("name")),
		Email:           strings.TrimSpace(r.FormValue("email")),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirm_password"),
	}

	if err := ui.sessions.Signup(r.Context(), sess, form); err != nil {
		ui.logger.Warn("signup failed", "email", form.Email, "error", err)
		data := ui.page(r, "Sign up - BloodLens")
		data["Error"] = model.UserMessage(err)
		data["Form"] = validate.SignupForm{Name: form.Name, Email: form.Email}
		ui.render(w, statusFor(err), "signup", data)
		return
	}

	session.SetTokenCookie(w, sess.AuthToken, ui.tokenTTL, ui.secure)
	ui.logger.Info("user signed up", "user_id", sess.User.ID, "session_id", sess.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session and redirects to login.
func (ui *UI) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	if err := ui.sessions.Logout(r.Context(), sess); err != nil {
		ui.logger.Error("logout failed", "session_id", sess.ID, "error", err)
	}
	session.ClearTokenCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// HandleIndex renders the analysis form with the chat sidebar and recent reports.
func (ui *UI) HandleIndex(w http.ResponseWriter, r *http.Request) {
	data := ui.indexData(r, analysisForm{Date: ui.now().Format(formDateLayout), Type: analysis.TypeComprehensive})
	data["Error"] = r.URL.Query().Get("error")
	ui.render(w, http.StatusOK, "index", data)
}

// analysisForm holds the values of the analysis form for re-rendering.
type analysisForm struct {
	PatientName string
	Age         string
	Gender      string
	Date        string
	IncludeBP   bool
	Systolic    string
	Diastolic   string
	Type        string
	UseSample   bool
}

func (ui *UI) indexData(r *http.Request, form analysisForm) map[string]any {
	ctx := r.Context()
	sess := SessionFromContext(ctx)
	limiter := ui.analyzer.Limiter()

	data := ui.page(r, "BloodLens - Blood Report Analysis")
	data["Form"] = form
	data["Genders"] = validate.Genders
	data["AnalysisTypes"] = analysis.Options
	data["Limit"] = limiter.Limit()
	data["Remaining"] = limiter.Remaining(sess.Usage)
	data["MaxUploadBytes"] = uint64(ui.extractor.Config().MaxSizeMB) << 20

	chats, err := ui.sessions.ListChatSessions(ctx, sess)
	if err != nil {
		ui.logger.Warn("list chats failed", "session_id", sess.ID, "error", err)
	}
	data["Chats"] = chats

	if sess.CurrentChatID != "" {
		if cs, err := ui.sessions.ChatMessages(ctx, sess, sess.CurrentChatID); err == nil {
			data["CurrentChat"] = cs
		}
	}

	reports, total, err := ui.store.ListReports(ctx, sess.User.ID, model.ListOptions{Limit: 5})
	if err != nil {
		ui.logger.Warn("list reports failed", "user_id", sess.User.ID, "error", err)
	}
	data["Reports"] = reports
	data["ReportCount"] = total
	return data
}

// HandleAnalyze validates the form, runs the analysis, stores the report and
// records the exchange in the current chat. Any failure re-renders the form
// with the entered values and a message.
func (ui *UI) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := SessionFromContext(ctx)
	maxMB := ui.extractor.Config().MaxSizeMB

	// Leave headroom over the file limit for the other fields so oversized
	// files reach the extractor's size check.
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxMB+1)<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			err = model.NewValidationError(fmt.Sprintf("File size exceeds %dMB limit", maxMB))
		} else {
			err = model.NewValidationError("Invalid request")
		}
		ui.renderAnalyzeError(w, r, analysisForm{Type: analysis.TypeComprehensive}, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := analysisForm{
		PatientName: strings.TrimSpace(r.FormValue("patient_name")),
		Age:         strings.TrimSpace(r.FormValue("age")),
		Gender:      r.FormValue("gender"),
		Date:        r.FormValue("report_date"),
		IncludeBP:   r.FormValue("include_bp") == "on",
		Systolic:    r.FormValue("systolic_bp"),
		Diastolic:   r.FormValue("diastolic_bp"),
		Type:        r.FormValue("analysis_type"),
		UseSample:   r.FormValue("use_sample") == "on",
	}

	req, err := ui.analysisRequest(r, form)
	if err != nil {
		ui.renderAnalyzeError(w, r, form, err)
		return
	}

	text, err := ui.analyzer.Analyze(ctx, &sess.Usage, req, form.Type)
	// The quota check may have rolled the window over even when denied.
	if saveErr := ui.sessions.Save(ctx, sess); saveErr != nil {
		ui.logger.Error("save session failed", "session_id", sess.ID, "error", saveErr)
	}
	if err != nil {
		ui.renderAnalyzeError(w, r, form, err)
		return
	}

	chatID := ui.recordChat(ctx, sess, req.PatientName, text)

	report := &model.Report{
		ID:            "rpt_" + uuid.New().String(),
		UserID:        sess.User.ID,
		ChatSessionID: chatID,
		PatientName:   req.PatientName,
		Age:           req.Age,
		Gender:        req.Gender,
		ReportDate:    req.DateOfReport,
		AnalysisType:  form.Type,
		Analysis:      text,
		CreatedAt:     ui.now().UTC(),
	}
	if err := ui.store.CreateReport(ctx, report); err != nil {
		ui.renderError(w, "Failed to save report", err)
		return
	}

	ui.logger.Info("report analyzed", "report_id", report.ID, "type", form.Type,
		"session_id", sess.ID, "count", sess.Usage.Count)
	http.Redirect(w, r, "/reports/"+report.ID, http.StatusSeeOther)
}

// analysisRequest validates the form and builds the request, extracting the
// report text from the uploaded PDF unless the sample report was chosen.
func (ui *UI) analysisRequest(r *http.Request, form analysisForm) (*model.AnalysisRequest, error) {
	age, err := validate.Patient(form.PatientName, form.Age, form.Gender)
	if err != nil {
		return nil, err
	}

	date := ui.now()
	if form.Date != "" {
		if date, err = time.Parse(formDateLayout, form.Date); err != nil {
			return nil, model.NewValidationError("Please enter a valid report date")
		}
	}

	req := &model.AnalysisRequest{
		PatientName:  form.PatientName,
		Age:          age,
		Gender:       form.Gender,
		DateOfReport: date.Format(model.ReportDateLayout),
	}

	if form.IncludeBP {
		sys, dia, err := validate.BloodPressure(form.Systolic, form.Diastolic)
		if err != nil {
			return nil, err
		}
		req.SystolicBP, req.DiastolicBP = &sys, &dia
	}

	if form.Type != "" && !analysis.IsValidType(form.Type) {
		return nil, model.NewValidationError("Please select a valid analysis type")
	}

	if form.UseSample {
		req.ReportText = analysis.SampleReport
		return req, nil
	}

	file, header, err := r.FormFile("report_file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, model.NewValidationError("Please upload a PDF report or use the sample report")
	}
	if err != nil {
		return nil, model.NewValidationError("Invalid request")
	}
	defer file.Close()

	res, err := ui.extractor.Extract(header.Filename, file, header.Size)
	if err != nil {
		return nil, err
	}
	req.ReportText = res.Text
	return req, nil
}

// recordChat appends the analysis exchange to the session's current chat and
// returns the chat ID. Chat history is best effort; failures are logged.
func (ui *UI) recordChat(ctx context.Context, sess *model.Session, patient, text string) string {
	chatID, err := ui.sessions.SaveChatMessage(ctx, sess, model.RoleUser, "Analyzing report for patient: "+patient)
	if err != nil {
		ui.logger.Warn("save chat message failed", "session_id", sess.ID, "error", err)
		return ""
	}
	if _, err := ui.sessions.SaveChatMessage(ctx, sess, model.RoleAssistant, text); err != nil {
		ui.logger.Warn("save chat message failed", "session_id", sess.ID, "error", err)
	}
	return chatID
}

func (ui *UI) renderAnalyzeError(w http.ResponseWriter, r *http.Request, form analysisForm, err error) {
	if model.CodeOf(err) == model.ErrInternal {
		ui.logger.Error("analysis request failed", "error", err)
	}
	data := ui.indexData(r, form)
	data["Error"] = model.UserMessage(err)
	ui.render(w, statusFor(err), "index", data)
}

// HandleExtract extracts the text of an uploaded PDF and renders a preview
// fragment (HTMX).
func (ui *UI) HandleExtract(w http.ResponseWriter, r *http.Request) {
	maxMB := ui.extractor.Config().MaxSizeMB
	data := map[string]any{}

	r.Body = http.MaxBytesReader(w, r.Body, int64(maxMB+1)<<20)
	file, header, err := r.FormFile("report_file")
	switch {
	case err == nil:
		defer file.Close()
		data["FileName"] = header.Filename
		data["Size"] = uint64(header.Size)
		res, err := ui.extractor.Extract(header.Filename, file, header.Size)
		if err != nil {
			data["Error"] = model.UserMessage(err)
			break
		}
		data["Result"] = res
	case errors.Is(err, http.ErrMissingFile):
		data["Error"] = "Please choose a PDF file"
	default:
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			data["Error"] = fmt.Sprintf("File size exceeds %dMB limit", maxMB)
		} else {
			data["Error"] = "Invalid request"
		}
	}
	ui.renderFragment(w, "extract_preview", data)
}

// HandleSample renders the built-in sample report (HTMX).
func (ui *UI) HandleSample(w http.ResponseWriter, r *http.Request) {
	ui.renderFragment(w, "sample_report", map[string]any{"Text": analysis.SampleReport})
}

// HandleReportList renders a page of the user's reports.
func (ui *UI) HandleReportList(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	opts := ui.parseListOptions(r)

	reports, total, err := ui.store.ListReports(r.Context(), sess.User.ID, opts)
	if err != nil {
		ui.renderError(w, "Failed to load reports", err)
		return
	}

	data := ui.page(r, "Reports - BloodLens")
	data["Reports"] = reports
	data["Pagination"] = model.NewPagination(opts, total)
	ui.render(w, http.StatusOK, "reports/list", data)
}

// HandleReport renders a stored analysis.
func (ui *UI) HandleReport(w http.ResponseWriter, r *http.Request) {
	report, ok := ui.loadReport(w, r)
	if !ok {
		return
	}
	data := ui.page(r, "Report for "+report.PatientName+" - BloodLens")
	data["Report"] = report
	data["FileName"] = analysis.FileName(report)
	ui.render(w, http.StatusOK, "reports/detail", data)
}

// HandleReportDownload sends a stored analysis as a text attachment.
func (ui *UI) HandleReportDownload(w http.ResponseWriter, r *http.Request) {
	report, ok := ui.loadReport(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", analysis.FileName(report)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report.Analysis))
}

// loadReport fetches the report named in the path. Reports of other users
// are reported as not found.
func (ui *UI) loadReport(w http.ResponseWriter, r *http.Request) (*model.Report, bool) {
	sess := SessionFromContext(r.Context())
	id := ui.pathParam(r, "id")

	report, err := ui.store.GetReport(r.Context(), id)
	if err != nil {
		ui.renderError(w, "Failed to load report", err)
		return nil, false
	}
	if report == nil || report.UserID != sess.User.ID {
		ui.renderNotFound(w, "Report not found")
		return nil, false
	}
	return report, true
}

// --- Chat Handlers ---

// HandleChatCreate starts a new chat and makes it current.
func (ui *UI) HandleChatCreate(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	_ = r.ParseForm()

	if _, err := ui.sessions.CreateChatSession(r.Context(), sess, strings.TrimSpace(r.FormValue("title"))); err != nil {
		ui.logger.Error("create chat failed", "session_id", sess.ID, "error", err)
		ui.redirect(w, r, "/?error="+url.QueryEscape(model.UserMessage(err)))
		return
	}
	ui.redirect(w, r, "/")
}

// HandleChatDetail renders one chat with its messages.
func (ui *UI) HandleChatDetail(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	cs, err := ui.sessions.ChatMessages(r.Context(), sess, ui.pathParam(r, "id"))
	if err != nil {
		if model.CodeOf(err) == model.ErrNotFound {
			ui.renderNotFound(w, "Chat session not found")
			return
		}
		ui.renderError(w, "Failed to load chat session", err)
		return
	}

	data := ui.page(r, cs.Title+" - BloodLens")
	data["Chat"] = cs
	data["Current"] = cs.ID == sess.CurrentChatID
	ui.render(w, http.StatusOK, "chats/detail", data)
}

// HandleChatSelect makes a chat current.
func (ui *UI) HandleChatSelect(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	if _, err := ui.sessions.SelectChatSession(r.Context(), sess, ui.pathParam(r, "id")); err != nil {
		ui.redirect(w, r, "/?error="+url.QueryEscape(model.UserMessage(err)))
		return
	}
	ui.redirect(w, r, "/")
}

// HandleChatDelete deletes a chat (HTMX).
func (ui *UI) HandleChatDelete(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	if err := ui.sessions.DeleteChatSession(r.Context(), sess, ui.pathParam(r, "id")); err != nil {
		w.Header().Set("HX-Reswap", "none")
		w.WriteHeader(statusFor(err))
		return
	}

	// Return empty response for HTMX to remove the element.
	w.WriteHeader(http.StatusOK)
}

// --- Helpers ---

// page returns the template data every page shares.
func (ui *UI) page(r *http.Request, title string) map[string]any {
	sess := SessionFromContext(r.Context())
	data := map[string]any{
		"Title": title,
		"Theme": ui.theme,
	}
	if ui.sessions.IsAuthenticated(sess) {
		data["Session"] = sess
	}
	return data
}

func (ui *UI) parseListOptions(r *http.Request) model.ListOptions {
	opts := model.DefaultListOptions()

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			opts.Limit = n
		}
	}

	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			opts.Offset = n
		}
	}

	opts.Clamp()
	return opts
}

func (ui *UI) pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// statusFor maps an error to the HTTP status of the page that reports it.
func statusFor(err error) int {
	switch model.CodeOf(err) {
	case model.ErrValidation:
		return http.StatusBadRequest
	case model.ErrUnauthorized, model.ErrSessionExpired:
		return http.StatusUnauthorized
	case model.ErrRateLimited:
		return http.StatusTooManyRequests
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (ui *UI) render(w http.ResponseWriter, status int, template string, data map[string]any) {
	var buf bytes.Buffer
	if err := renderTemplate(&buf, template, data); err != nil {
		ui.logger.Error("template render failed", "template", template, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (ui *UI) renderFragment(w http.ResponseWriter, name string, data map[string]any) {
	var buf bytes.Buffer
	if err := renderFragment(&buf, name, data); err != nil {
		ui.logger.Error("fragment render failed", "fragment", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (ui *UI) renderError(w http.ResponseWriter, message string, err error) {
	ui.logger.Error(message, "error", err)
	data := map[string]any{
		"Title":   "Error - BloodLens",
		"Theme":   ui.theme,
		"Message": message,
	}
	ui.render(w, http.StatusInternalServerError, "error", data)
}

func (ui *UI) renderNotFound(w http.ResponseWriter, message string) {
	data := map[string]any{
		"Title":   "Not Found - BloodLens",
		"Theme":   ui.theme,
		"Message": message,
	}
	ui.render(w, http.StatusNotFound, "error", data)
}
