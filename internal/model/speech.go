package model

import "time"

// SpeechSession は発話練習の1セッションを表す。
// Exerciseには練習メニュー名（例: "さ行の発音", "早口ことば"）を保持する。
type SpeechSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Exercise  string    `json:"exercise"`
	CreatedAt time.Time `json:"createdAt"`
}

// SpeechRecording は発話練習の録音1件を表す。
// 音声データ自体は保持せず、文字起こしと長さのみを記録する。
type SpeechRecording struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	Transcript string    `json:"transcript"`
	DurationMS int       `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SpeechAssessment は発話練習に対する評価を表す。
// Scoreは0〜100の総合点、Clarity/Paceは0〜100の観点別スコア。
type SpeechAssessment struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Score     int       `json:"score"`
	Clarity   int       `json:"clarity"`
	Pace      int       `json:"pace"`
	Feedback  string    `json:"feedback"`
	CreatedAt time.Time `json:"createdAt"`
}

// SpeechProgress はユーザーごとの練習進捗の集計を表す。
type SpeechProgress struct {
	UserID        string    `json:"userId"`
	SessionCount  int       `json:"sessionCount"`
	AverageScore  float64   `json:"averageScore"`
	LatestScore   int       `json:"latestScore"`
	LastPracticed time.Time `json:"lastPracticed"`
}
