package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Environment is what the collector can observe about the client without
// touching the network. Unavailable values are empty strings.
type Environment struct {
	Language  string
	UserAgent string
	Platform  string
	Timezone  string
}

// DetectEnvironment reads the host locale, platform and timezone
func DetectEnvironment(version string) Environment {
	return detectEnvironment(os.Getenv, time.Local, "/etc/localtime", version)
}

func detectEnvironment(getenv func(string) string, local *time.Location, localtime, version string) Environment {
	return Environment{
		Language:  localeTag(firstNonEmpty(getenv("LC_ALL"), getenv("LC_MESSAGES"), getenv("LANG"))),
		UserAgent: fmt.Sprintf("visit-recorder-beacon/%s (%s; %s)", version, runtime.GOOS, runtime.GOARCH),
		Platform:  runtime.GOOS + " " + runtime.GOARCH,
		Timezone:  timezoneName(getenv("TZ"), local, localtime),
	}
}

// localeTag turns a POSIX locale (fr_FR.UTF-8@euro) into a language tag (fr-FR)
func localeTag(locale string) string {
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	if locale == "C" || locale == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(locale, "_", "-")
}

// timezoneName prefers $TZ, then the name of the local zone. When the runtime
// only knows the zone as "Local", the name comes from the zoneinfo path that
// localtime links to.
func timezoneName(tz string, local *time.Location, localtime string) string {
	tz = strings.TrimPrefix(tz, ":")
	if tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}
	if local != nil && local.String() != "Local" {
		return local.String()
	}
	return zoneFromLink(localtime)
}

func zoneFromLink(localtime string) string {
	target, err := filepath.EvalSymlinks(localtime)
	if err != nil {
		return ""
	}
	_, name, ok := strings.Cut(filepath.ToSlash(target), "zoneinfo/")
	if !ok || name == "" {
		return ""
	}
	if _, err := time.LoadLocation(name); err != nil {
		return ""
	}
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
