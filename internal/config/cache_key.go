package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ParticipantSessionKey returns the cache key for a participant's login session.
func (r *CacheKeyStruct) ParticipantSessionKey(participantID int) string {
	return fmt.Sprintf("login:%d", participantID)
}

// ParticipantAnswersKey returns the cache key for a participant's autosaved answers.
func (r *CacheKeyStruct) ParticipantAnswersKey(participantID int) string {
	return fmt.Sprintf("participant:%d:answers", participantID)
}

// ParticipantSessionStartKey returns the cache key for a participant's attempt start time.
func (r *CacheKeyStruct) ParticipantSessionStartKey(participantID int) string {
	return fmt.Sprintf("participant:%d:session_start", participantID)
}

// ParticipantQuestionOrderKey returns the cache key for a participant's shuffled question order.
func (r *CacheKeyStruct) ParticipantQuestionOrderKey(participantID int) string {
	return fmt.Sprintf("participant:%d:question_order", participantID)
}

// ExamPayloadKey returns the cache key for the participant-facing exam payload.
func (r *CacheKeyStruct) ExamPayloadKey() string {
	return "exam:payload"
}

// ExamAnswerKey returns the cache key for the exam's answer key hash.
func (r *CacheKeyStruct) ExamAnswerKey() string {
	return "exam:key"
}

var CacheKey = NewCacheKeyStruct()
