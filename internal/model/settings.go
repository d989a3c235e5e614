package model

import "time"

// Setting keys stored in the app_settings table.
const (
	SettingExamName         = "exam_name"
	SettingDurationMinutes  = "duration_minutes"
	SettingPassingGrade     = "passing_grade_percentage"
	SettingShuffleQuestions = "shuffle_questions"
	SettingDetectViolations = "detect_integrity_violations"
)

// ExamSettings is the exam configuration, immutable for a session once loaded.
type ExamSettings struct {
	ExamName                  string `json:"exam_name"`
	DurationSeconds           int    `json:"duration_seconds"`
	PassingGradePercentage    int    `json:"passing_grade_percentage"`
	ShuffleQuestions          bool   `json:"shuffle_questions"`
	DetectIntegrityViolations bool   `json:"detect_integrity_violations"`
}

// DefaultExamSettings are applied when the settings store has no value
// for a key: 60 minutes, 70% passing grade, no shuffle, detection on.
func DefaultExamSettings() ExamSettings {
	return ExamSettings{
		ExamName:                  "Computer-Based Test",
		DurationSeconds:           60 * 60,
		PassingGradePercentage:    70,
		ShuffleQuestions:          false,
		DetectIntegrityViolations: true,
	}
}

// AppSetting represents a key-value pair for global application configuration.
type AppSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
