package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserLoginKey returns the cache key for a user's login session
func (r *CacheKeyStruct) UserLoginKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// UserSessionStartKey returns the cache key for a user's exam session start time
func (r *CacheKeyStruct) UserSessionStartKey(examID string, userID int) string {
	return fmt.Sprintf("user:%d:exam:%s:session_start", userID, examID)
}

// UserAnswersKey returns the cache key for a user's autosaved answers
func (r *CacheKeyStruct) UserAnswersKey(examID string, userID int) string {
	return fmt.Sprintf("user:%d:exam:%s:answers", userID, examID)
}

// UserHistoryKey returns the cache key for a user's attempt history list
func (r *CacheKeyStruct) UserHistoryKey(userID int) string {
	return fmt.Sprintf("user:%d:history", userID)
}

// ExamPayloadKey returns the cache key for an exam's taker payload
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamRefsKey returns the cache key for an exam's question refs (answer key)
func (r *CacheKeyStruct) ExamRefsKey(examID string) string {
	return fmt.Sprintf("exam:%s:refs", examID)
}

var CacheKey = NewCacheKeyStruct()
