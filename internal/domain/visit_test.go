package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func TestParsePayload_AllFields(t *testing.T) {
	body := `{"language":"fr-FR","userAgent":"Mozilla/5.0","platform":"Win32",
		"timezone":"Europe/Paris","date":"2025-03-14T08:00:00.123Z","ip":"198.51.100.7"}`

	p, err := ParsePayload([]byte(body), fixedNow)

	require.NoError(t, err)
	assert.Equal(t, "fr-FR", p.Language)
	assert.Equal(t, "Mozilla/5.0", p.UserAgent)
	assert.Equal(t, "Win32", p.Platform)
	assert.Equal(t, "Europe/Paris", p.Timezone)
	assert.Equal(t, "2025-03-14T08:00:00.123Z", p.Date)
	assert.Equal(t, "198.51.100.7", p.ReportedIP)
}

func TestParsePayload_MissingFieldsDefaultToUnknown(t *testing.T) {
	p, err := ParsePayload([]byte(`{"language":"en-US"}`), fixedNow)

	require.NoError(t, err)
	assert.Equal(t, "en-US", p.Language)
	assert.Equal(t, Unknown, p.UserAgent)
	assert.Equal(t, Unknown, p.Platform)
	assert.Equal(t, Unknown, p.Timezone)
	assert.Equal(t, "2025-03-14T09:26:53Z", p.Date)
}

func TestParsePayload_MalformedBody(t *testing.T) {
	p, err := ParsePayload([]byte(`{not json`), fixedNow)

	assert.Error(t, err)
	assert.Equal(t, Unknown, p.Language)
	assert.Equal(t, Unknown, p.UserAgent)
	assert.Equal(t, Unknown, p.Platform)
	assert.Equal(t, Unknown, p.Timezone)
	assert.Equal(t, "2025-03-14T09:26:53Z", p.Date)
}

func TestParsePayload_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantLang string
		wantDate string
	}{
		{"empty string is kept", `{"language":""}`, "", "2025-03-14T09:26:53Z"},
		{"null becomes unknown", `{"language":null}`, Unknown, "2025-03-14T09:26:53Z"},
		{"number becomes unknown", `{"language":42}`, Unknown, "2025-03-14T09:26:53Z"},
		{"json null body", `null`, Unknown, "2025-03-14T09:26:53Z"},
		{"invalid date falls back", `{"language":"de","date":"yesterday"}`, "de", "2025-03-14T09:26:53Z"},
		{"offset date is kept", `{"language":"de","date":"2025-01-01T10:00:00+01:00"}`, "de", "2025-01-01T10:00:00+01:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := ParsePayload([]byte(tt.body), fixedNow)
			assert.Equal(t, tt.wantLang, p.Language)
			assert.Equal(t, tt.wantDate, p.Date)
		})
	}
}

func TestNewVisit_UsesGivenIP(t *testing.T) {
	p := Payload{Language: "fr", UserAgent: "ua", Platform: "Linux", Timezone: "UTC", Date: "2025-03-14T09:26:53Z", ReportedIP: "10.0.0.1"}

	v := NewVisit(p, "203.0.113.42")

	assert.Equal(t, "203.0.113.42", v.IP)
	assert.Equal(t, "fr", v.Language)
	assert.Equal(t, "2025-03-14T09:26:53Z", v.DateAccess)
	assert.Zero(t, v.ID)
}
