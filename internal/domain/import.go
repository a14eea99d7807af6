package domain

import "time"

// ImportRecord is one normalized import row. The JSON shape is what the
// bulk-upsert collaborator receives.
type ImportRecord struct {
	BusinessName string   `json:"business_name"`
	TradingName  string   `json:"trading_name"`
	Specialty    Category `json:"specialty"`
	Phone        string   `json:"phone"`
	Email        string   `json:"email"`
	Location     string   `json:"location"`
	PostalCode   string   `json:"postal_code,omitempty"`
	Website      string   `json:"website,omitempty"`
	Description  string   `json:"description,omitempty"`
	IsValid      bool     `json:"isValid"`
}

// ImportRow is an ImportRecord as the operator sees it in a preview: the
// file row it came from and why it cannot be imported. Commit requests send
// rows back so persistence errors point at the same file row.
type ImportRow struct {
	ImportRecord
	Row      int      `json:"row"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// RowErrorStage says where a row was rejected.
type RowErrorStage string

const (
	StageValidation  RowErrorStage = "validation"
	StagePersistence RowErrorStage = "persistence"
)

// RowError is a per-row rejection reason surfaced to the operator.
type RowError struct {
	Row    int           `json:"row"`
	Reason string        `json:"reason"`
	Stage  RowErrorStage `json:"stage"`
}

// ImportBatchResult summarises one upload from parse to persistence.
type ImportBatchResult struct {
	ID              string        `json:"id,omitempty"`
	SourceFile      string        `json:"source_file"`
	Valid           int           `json:"valid"`
	Invalid         int           `json:"invalid"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	RowErrors       []RowError    `json:"row_errors"`
	UnmappedHeaders []string      `json:"unmapped_headers,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
}
