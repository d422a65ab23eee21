package model

import "time"

// ReportDateLayout is the display format of a report date (dd/mm/yyyy).
const ReportDateLayout = "02/01/2006"

// AnalysisRequest is the patient data submitted for one analysis.
type AnalysisRequest struct {
	PatientName  string   `json:"patient_name"`
	Age          int      `json:"age"`
	Gender       string   `json:"gender"`
	DateOfReport string   `json:"date_of_report"`
	ReportText   string   `json:"blood_report"`
	SystolicBP   *float64 `json:"systolic_bp,omitempty"`
	DiastolicBP  *float64 `json:"diastolic_bp,omitempty"`
}

// Report is a stored analysis result.
type Report struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ChatSessionID string    `json:"chat_session_id,omitempty"`
	PatientName   string    `json:"patient_name"`
	Age           int       `json:"age"`
	Gender        string    `json:"gender"`
	ReportDate    string    `json:"report_date"`
	AnalysisType  string    `json:"analysis_type"`
	Analysis      string    `json:"analysis"`
	CreatedAt     time.Time `json:"created_at"`
}
