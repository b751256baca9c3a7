package model

import "time"

// PerformanceExport is the JSON structure for one exported performance record.
type PerformanceExport struct {
	StudentID            string             `json:"student_id"`
	Subject              string             `json:"subject"`
	Week                 string             `json:"week"`
	CurrentQuestionIndex int                `json:"current_question_index"`
	Started              bool               `json:"started"`
	LastScore            float64            `json:"last_score"`
	UpdatedAt            time.Time          `json:"updated_at"`
	Questions            []QuestionAttempts `json:"questions"`
}

// QuestionAttempts holds the attempt history of one question for export.
type QuestionAttempts struct {
	QuestionID int             `json:"question_id"`
	Question   string          `json:"question,omitempty"`
	Attempts   []AttemptRecord `json:"attempts"`
	BestScore  float64         `json:"best_score"`
}

// PerformanceDump is the top-level export document.
type PerformanceDump struct {
	ExportedAt time.Time           `json:"exported_at"`
	Subject    string              `json:"subject,omitempty"`
	Week       string              `json:"week,omitempty"`
	Records    []PerformanceExport `json:"records"`
}
