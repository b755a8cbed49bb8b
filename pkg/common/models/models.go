package models

import (
	"time"

	"github.com/google/uuid"
)

// Register tables consumed by the cohort pipeline
type DiagnosisRecord struct {
	PersonID      string    `json:"person_id"`
	DiagnosisCode string    `json:"diagnosis_code"`
	DiagnosisDate time.Time `json:"diagnosis_date"`
}

type ChildRecord struct {
	ChildID   string     `json:"child_id"`
	FamilyID  *string    `json:"family_id"`
	BirthDate *time.Time `json:"birth_date"`
}

type PersonRecord struct {
	PersonID string  `json:"person_id"`
	MotherID *string `json:"mother_id"`
	FatherID *string `json:"father_id"`
}

type IncomeRecord struct {
	PersonID    string  `json:"person_id"`
	Year        int     `json:"year"`
	TotalIncome float64 `json:"total_income"`
}

// Cohort construction
type ExposedChild struct {
	FamilyID  *string   `json:"family_id"`
	ChildID   string    `json:"child_id"`
	IndexDate time.Time `json:"index_date"`
	// Carried from the Child table so the matcher has a key on both sides.
	BirthDate *time.Time `json:"birth_date,omitempty"`
}

type UnexposedCandidate struct {
	FamilyID  *string   `json:"family_id"`
	ChildID   string    `json:"child_id"`
	BirthDate time.Time `json:"birth_date"`
}

type MatchedChild struct {
	FamilyID  string    `json:"family_id"`
	ChildID   string    `json:"child_id"`
	IndexDate time.Time `json:"index_date"`
	MatchedTo string    `json:"matched_to"`
}

type ParentLink struct {
	ChildID  string  `json:"child_id"`
	MotherID *string `json:"mother_id"`
	FatherID *string `json:"father_id"`
}

type ParentalIncome struct {
	ChildID             string  `json:"child_id"`
	Year                int     `json:"year"`
	ParentalTotalIncome float64 `json:"parental_total_income"`
}

// Cohort runs
type CohortBuildRequest struct {
	RequestedBy string `json:"requested_by,omitempty"`
	ClearCache  bool   `json:"clear_cache,omitempty"`
	MatchPolicy string `json:"match_policy,omitempty"`
	MatchRatio  int    `json:"match_ratio,omitempty"`
}

type CohortResult struct {
	RunID          string            `json:"run_id"`
	SevereCases    int               `json:"severe_cases"`
	ExposedCount   int               `json:"exposed_count"`
	UnexposedPool  int               `json:"unexposed_pool"`
	MatchedCount   int               `json:"matched_count"`
	Outputs        map[string]string `json:"outputs,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
	Degraded       bool              `json:"degraded,omitempty"`
	CacheKeying    string            `json:"cache_keying"`
	BuildTime      time.Duration     `json:"build_time"`
	ParentalIncome int               `json:"parental_income_rows,omitempty"`
}

type CohortRun struct {
	ID           uuid.UUID  `json:"id"`
	Status       string     `json:"status"`
	RequestedBy  string     `json:"requested_by,omitempty"`
	MatchPolicy  string     `json:"match_policy"`
	ExposedCount int        `json:"exposed_count"`
	MatchedCount int        `json:"matched_count"`
	Warnings     []string   `json:"warnings,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // cohort.build, cohort.completed, cohort.failed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Date drops the clock part so register dates compare as calendar days.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func StringPtr(s string) *string {
	return &s
}

func TimePtr(t time.Time) *time.Time {
	return &t
}
