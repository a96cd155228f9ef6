package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// EncodeSessionCookie はセッションIDをHMAC-SHA256で署名したCookie値
// 「<sessionID>.<署名>」に変換する。
// secretが空の場合は署名なしでそのまま返す（テスト用）。
func EncodeSessionCookie(secret, sessionID string) string {
	if secret == "" {
		return sessionID
	}
	return sessionID + "." + signSessionID(secret, sessionID)
}

// DecodeSessionCookie はCookie値の署名を検証してセッションIDを取り出す。
// 署名が一致しない、または形式が不正な場合はfalseを返す。
func DecodeSessionCookie(secret, value string) (string, bool) {
	if secret == "" {
		return value, value != ""
	}
	sessionID, sig, ok := strings.Cut(value, ".")
	if !ok || sessionID == "" {
		return "", false
	}
	expected := signSessionID(secret, sessionID)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return "", false
	}
	return sessionID, true
}

func signSessionID(secret, sessionID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}
