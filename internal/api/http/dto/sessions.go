package dto

import "time"

type SessionKeyDetails struct {
	Description string    `json:"description"`
	ExpiresAt   time.Time `json:"expiresAt"`
	UsageCount  int64     `json:"usageCount"`
}

type SessionResponse struct {
	SessionID    string            `json:"sessionId"`
	Key          string            `json:"keyUsed"`
	UserAgent    string            `json:"userAgent"`
	IP           string            `json:"ip"`
	LastActivity time.Time         `json:"lastActivity"`
	KeyDetails   SessionKeyDetails `json:"keyDetails"`
}

type ActiveSessionsResponse struct {
	Sessions         []SessionResponse `json:"sessions"`
	Count            int               `json:"count"`
	ThresholdMinutes int               `json:"thresholdMinutes"`
}
