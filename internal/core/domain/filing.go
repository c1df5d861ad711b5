package domain

import "time"

// Filing is a single SEC filing known to the backend.
type Filing struct {
	ID          int64     `json:"id"`
	CIK         string    `json:"cik"`
	CompanyName string    `json:"company_name"`
	FormType    string    `json:"form_type"`
	FiledAt     time.Time `json:"filed_at"`
	Period      string    `json:"period,omitempty"`
	HasSummary  bool      `json:"has_summary"`
}

// Summary is a stored AI-generated summary for a filing.
type Summary struct {
	ID          int64     `json:"id"`
	FilingID    int64     `json:"filing_id"`
	Content     string    `json:"content"`
	Model       string    `json:"model,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}
