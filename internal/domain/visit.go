package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Unknown is stored for any field the client did not send
const Unknown = "unknown"

// Domain errors
var (
	ErrStorage        = errors.New("storage failure")
	ErrInvalidBackend = errors.New("unsupported storage backend")
)

// Visit is one stored page visit (a row of the visiteurs table).
// Once created it is never updated or deleted.
type Visit struct {
	ID         int64  `json:"id"`
	IP         string `json:"ip"`
	Language   string `json:"langue"`
	UserAgent  string `json:"navigateur"`
	Platform   string `json:"appareil"`
	Timezone   string `json:"fuseau"`
	DateAccess string `json:"date_access"`
}

// Payload is the body a collector posts to the recorder.
// ReportedIP is whatever the client resolved on its own; it is never stored.
type Payload struct {
	Language   string
	UserAgent  string
	Platform   string
	Timezone   string
	Date       string
	ReportedIP string
}

// ParsePayload decodes a collector body.
//
// It always returns a complete payload: missing, null or non-string fields
// become Unknown and an unusable date becomes the current server time.
// The returned error only reports why the body could not be decoded; callers
// are expected to ingest the payload anyway.
func ParsePayload(body []byte, now time.Time) (Payload, error) {
	var raw map[string]any
	var parseErr error
	if err := json.Unmarshal(body, &raw); err != nil {
		parseErr = fmt.Errorf("malformed visit payload: %w", err)
		raw = nil
	}

	p := Payload{
		Language:   stringField(raw, "language"),
		UserAgent:  stringField(raw, "userAgent"),
		Platform:   stringField(raw, "platform"),
		Timezone:   stringField(raw, "timezone"),
		ReportedIP: stringField(raw, "ip"),
	}

	p.Date = NormalizeDate(stringField(raw, "date"), now)

	return p, parseErr
}

// NormalizeDate keeps an RFC 3339 timestamp as sent and falls back to now otherwise
func NormalizeDate(value string, now time.Time) string {
	if value != "" && value != Unknown {
		if _, err := time.Parse(time.RFC3339, value); err == nil {
			return value
		}
	}
	return now.UTC().Format(time.RFC3339)
}

func stringField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok {
		return Unknown
	}
	s, ok := v.(string)
	if !ok {
		return Unknown
	}
	return s
}

// NewVisit builds the row for a payload received from ip.
func NewVisit(p Payload, ip string) *Visit {
	return &Visit{
		IP:         ip,
		Language:   p.Language,
		UserAgent:  p.UserAgent,
		Platform:   p.Platform,
		Timezone:   p.Timezone,
		DateAccess: p.Date,
	}
}
