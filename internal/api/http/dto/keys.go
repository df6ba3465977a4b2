package dto

import (
	"fmt"
	"time"

	"github.com/EternisAI/keygate/internal/keys"
)

type KeyRequest struct {
	Key string `json:"key" binding:"required"`
}

type CreateKeyRequest struct {
	Duration    int64  `json:"duration" binding:"required"`
	Unit        string `json:"unit" binding:"required"`
	Description string `json:"description" binding:"max=500"`
	CustomKey   string `json:"customKey" binding:"max=128"`
}

type ExtendKeyRequest struct {
	Duration int64  `json:"duration" binding:"required"`
	Unit     string `json:"unit" binding:"required"`
}

type UpdateKeyRequest struct {
	Description *string `json:"description" binding:"omitempty,max=500"`
	Status      *string `json:"status"`
}

type HeartbeatRequest struct {
	Key      string `json:"key"`
	DeviceID string `json:"deviceId" binding:"max=128"`
}

type CleanupRequest struct {
	DeleteExpiredOlderThanDays int `json:"deleteExpiredOlderThanDays" binding:"min=0"`
}

type ExtensionResponse struct {
	ExtendedAt        time.Time `json:"extendedAt"`
	Duration          int64     `json:"duration"`
	Unit              string    `json:"unit"`
	ExtendedBy        string    `json:"extendedBy,omitempty"`
	PreviousExpiresAt time.Time `json:"previousExpiresAt"`
}

type KeyResponse struct {
	Key                string              `json:"key"`
	Description        string              `json:"description"`
	Status             string              `json:"status"`
	CreatedAt          time.Time           `json:"createdAt"`
	ActivatedAt        *time.Time          `json:"activatedAt"`
	ExpiresAt          time.Time           `json:"expiresAt"`
	UpdatedAt          *time.Time          `json:"updatedAt,omitempty"`
	LastUsed           *time.Time          `json:"lastUsed"`
	LastOnline         *time.Time          `json:"lastOnline,omitempty"`
	LastOnlineDeviceID string              `json:"lastOnlineDeviceId,omitempty"`
	LastExtended       *time.Time          `json:"lastExtended,omitempty"`
	TotalDuration      string              `json:"totalDuration"`
	TotalDurationMs    int64               `json:"totalDurationMs"`
	RemainingTime      string              `json:"remainingTime"`
	RemainingTimeMs    int64               `json:"remainingTimeMs"`
	UsageCount         int64               `json:"usageCount"`
	Online             bool                `json:"online"`
	AutoRegistered     bool                `json:"autoRegistered,omitempty"`
	KeyType            string              `json:"keyType,omitempty"`
	Identifier         string              `json:"identifier,omitempty"`
	CreatedBy          string              `json:"createdBy,omitempty"`
	ExtensionHistory   []ExtensionResponse `json:"extensionHistory,omitempty"`
}

func NewKeyResponse(rec *keys.KeyRecord, now time.Time, onlineWindow time.Duration) KeyResponse {
	remaining := rec.RemainingTime(now)
	resp := KeyResponse{
		Key:                rec.Key,
		Description:        rec.Description,
		Status:             string(rec.Status),
		CreatedAt:          rec.CreatedAt,
		ActivatedAt:        rec.ActivatedAt,
		ExpiresAt:          rec.ExpiresAt,
		UpdatedAt:          rec.UpdatedAt,
		LastUsed:           rec.LastUsed,
		LastOnline:         rec.LastOnline,
		LastOnlineDeviceID: rec.LastOnlineDeviceID,
		LastExtended:       rec.LastExtended,
		TotalDuration:      FormatDuration(time.Duration(rec.TotalDuration) * time.Millisecond),
		TotalDurationMs:    rec.TotalDuration,
		RemainingTime:      FormatDuration(remaining),
		RemainingTimeMs:    remaining.Milliseconds(),
		UsageCount:         rec.UsageCount,
		Online:             keys.IsOnline(rec, now, onlineWindow),
		AutoRegistered:     rec.AutoRegistered,
		KeyType:            rec.KeyType,
		Identifier:         rec.Identifier,
		CreatedBy:          rec.CreatedBy,
	}
	for _, ext := range rec.ExtensionHistory {
		resp.ExtensionHistory = append(resp.ExtensionHistory, ExtensionResponse{
			ExtendedAt:        ext.ExtendedAt,
			Duration:          ext.Duration,
			Unit:              string(ext.Unit),
			ExtendedBy:        ext.ExtendedBy,
			PreviousExpiresAt: ext.PreviousExpiresAt,
		})
	}
	return resp
}

// KeyStateResponse is the partial record state attached to a rejected
// validation.
type KeyStateResponse struct {
	Key           string     `json:"key"`
	Status        string     `json:"status"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	RemainingTime string     `json:"remainingTime"`
	UsageCount    int64      `json:"usageCount"`
	LastUsed      *time.Time `json:"lastUsed,omitempty"`
}

func NewKeyStateResponse(rec *keys.KeyRecord, now time.Time) *KeyStateResponse {
	if rec == nil {
		return nil
	}
	return &KeyStateResponse{
		Key:           rec.Key,
		Status:        string(rec.Status),
		ExpiresAt:     rec.ExpiresAt,
		RemainingTime: FormatDuration(rec.RemainingTime(now)),
		UsageCount:    rec.UsageCount,
		LastUsed:      rec.LastUsed,
	}
}

type ValidationResponse struct {
	KeyResponse
	SessionID      string `json:"sessionId,omitempty"`
	SessionToken   string `json:"sessionToken,omitempty"`
	AutoRegistered bool   `json:"autoRegistered"`
}

// CheckUsageResponse keeps the flat flags of the check-usage reply next to
// the usual envelope fields.
type CheckUsageResponse struct {
	Success        bool        `json:"success"`
	Exists         bool        `json:"exists"`
	Used           bool        `json:"used"`
	Expired        bool        `json:"expired"`
	AutoRegistered bool        `json:"autoRegistered"`
	Message        string      `json:"message"`
	Data           KeyResponse `json:"data"`
}

type ListKeysResponse struct {
	Keys       []KeyResponse `json:"keys"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int64         `json:"totalPages"`
}

type StatsResponse struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Expired int64 `json:"expired"`
	Used    int64 `json:"used"`
	Unused  int64 `json:"unused"`
}

type CleanupResponse struct {
	UpdatedExpired int64 `json:"updatedExpired"`
	DeletedExpired int64 `json:"deletedExpired"`
}

type HeartbeatResponse struct {
	Key        string    `json:"key"`
	DeviceID   string    `json:"deviceId,omitempty"`
	LastOnline time.Time `json:"lastOnline"`
}

type OnlineKeyResponse struct {
	Key                string     `json:"key"`
	Description        string     `json:"description"`
	LastOnline         *time.Time `json:"lastOnline"`
	LastOnlineDeviceID string     `json:"lastOnlineDeviceId,omitempty"`
	ExpiresAt          time.Time  `json:"expiresAt"`
	RemainingTime      string     `json:"remainingTime"`
}

type OnlineResponse struct {
	Keys          []OnlineKeyResponse `json:"keys"`
	Count         int                 `json:"count"`
	Since         time.Time           `json:"since"`
	WindowSeconds int64               `json:"windowSeconds"`
}

// FormatDuration renders d with its two most significant units, e.g.
// "3d 4h", "2h 15m", "5m 30s" or "42s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours%24)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	}
	return fmt.Sprintf("%ds", seconds)
}
