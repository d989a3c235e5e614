package service

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/ujicara/cbt-backend/internal/model"
	"github.com/ujicara/cbt-backend/internal/repository"
)

// SettingService loads the exam configuration from the app_settings table.
type SettingService struct {
	settingRepo *repository.SettingRepository
	log         zerolog.Logger
}

// NewSettingService creates a new SettingService.
func NewSettingService(settingRepo *repository.SettingRepository, log zerolog.Logger) *SettingService {
	return &SettingService{
		settingRepo: settingRepo,
		log:         log.With().Str("component", "setting_service").Logger(),
	}
}

// LoadExamSettings builds the immutable session settings from stored rows.
// Missing or malformed values fall back to the documented defaults
// (60 minutes, 70% passing grade, no shuffle, violation detection on), so
// an empty settings table never blocks an exam.
func (s *SettingService) LoadExamSettings(ctx context.Context) (model.ExamSettings, error) {
	settings := model.DefaultExamSettings()

	rows, err := s.settingRepo.GetAll(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load settings, using defaults")
		return settings, err
	}

	for _, row := range rows {
		switch row.Key {
		case model.SettingExamName:
			if row.Value != "" {
				settings.ExamName = row.Value
			}
		case model.SettingDurationMinutes:
			if minutes, err := strconv.Atoi(row.Value); err == nil && minutes > 0 {
				// Stored in minutes; converted to seconds at session-init only.
				settings.DurationSeconds = minutes * 60
			}
		case model.SettingPassingGrade:
			if pct, err := strconv.Atoi(row.Value); err == nil && pct >= 0 && pct <= 100 {
				settings.PassingGradePercentage = pct
			}
		case model.SettingShuffleQuestions:
			if b, err := strconv.ParseBool(row.Value); err == nil {
				settings.ShuffleQuestions = b
			}
		case model.SettingDetectViolations:
			if b, err := strconv.ParseBool(row.Value); err == nil {
				settings.DetectIntegrityViolations = b
			}
		}
	}

	return settings, nil
}

// UpdateSettings bulk-upserts settings rows. Used by the seed tool.
func (s *SettingService) UpdateSettings(ctx context.Context, settingsMap map[string]string) error {
	// Simple iterative upsert since settings are low volume.
	for key, value := range settingsMap {
		if err := s.settingRepo.Upsert(ctx, key, value); err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("failed to update setting")
			return err
		}
	}
	return nil
}
