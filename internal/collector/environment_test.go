package collector

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(values map[string]string) func(string) string {
	return func(k string) string { return values[k] }
}

func TestDetectEnvironment(t *testing.T) {
	env := detectEnvironment(envFrom(map[string]string{
		"LANG": "fr_FR.UTF-8",
		"TZ":   "Europe/Paris",
	}), time.UTC, "", "1.2.0")

	assert.Equal(t, "fr-FR", env.Language)
	assert.Equal(t, "Europe/Paris", env.Timezone)
	assert.Equal(t, runtime.GOOS+" "+runtime.GOARCH, env.Platform)
	assert.Contains(t, env.UserAgent, "visit-recorder-beacon/1.2.0")
}

func TestDetectEnvironment_Fallbacks(t *testing.T) {
	env := detectEnvironment(envFrom(map[string]string{
		"LC_ALL": "C",
		"TZ":     "Not/AZone",
	}), time.UTC, "", "dev")

	assert.Equal(t, "", env.Language)
	assert.Equal(t, "UTC", env.Timezone)
}

// zoneinfoLink builds root/usr/share/zoneinfo/<zone> and a localtime symlink to it
func zoneinfoLink(t *testing.T, zone string) string {
	t.Helper()
	root := t.TempDir()
	target := filepath.Join(root, "usr", "share", "zoneinfo", filepath.FromSlash(zone))
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, nil, 0o644))

	link := filepath.Join(root, "localtime")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	return link
}

func TestDetectEnvironment_TimezoneFromLocaltimeLink(t *testing.T) {
	// time.Local is named "Local" when the runtime loaded /etc/localtime itself
	local := time.FixedZone("Local", 3600)

	env := detectEnvironment(envFrom(nil), local, zoneinfoLink(t, "Europe/Paris"), "dev")
	assert.Equal(t, "Europe/Paris", env.Timezone)

	env = detectEnvironment(envFrom(nil), local, zoneinfoLink(t, "Not/AZone"), "dev")
	assert.Equal(t, "", env.Timezone)

	env = detectEnvironment(envFrom(nil), local, filepath.Join(t.TempDir(), "missing"), "dev")
	assert.Equal(t, "", env.Timezone)

	// $TZ still wins over the link
	env = detectEnvironment(envFrom(map[string]string{"TZ": "Asia/Tokyo"}), local, zoneinfoLink(t, "Europe/Paris"), "dev")
	assert.Equal(t, "Asia/Tokyo", env.Timezone)
}

func TestLocaleTag(t *testing.T) {
	assert.Equal(t, "de-DE", localeTag("de_DE@euro"))
	assert.Equal(t, "en-US", localeTag("en_US.UTF-8"))
	assert.Equal(t, "pt", localeTag("pt"))
	assert.Equal(t, "", localeTag("POSIX"))
	assert.Equal(t, "", localeTag(""))
}
