// Package version хранит сведения о сборке shop-api.
// Значения задаются через -ldflags "-X github.com/vladislavdragonenkov/shop/internal/version.version=...";
// без них коммит и дата берутся из VCS-меток go build, если они есть.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

// Build: сведения о сборке.
type Build struct {
	Version string
	Commit  string
	Date    string
}

// Current возвращает сведения о текущем бинарнике.
func Current() Build {
	b := Build{Version: version, Commit: commit, Date: date}
	if b.Commit == "" || b.Date == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			b = b.withSettings(info.Settings)
		}
	}
	if b.Commit == "" {
		b.Commit = "unknown"
	}
	if b.Date == "" {
		b.Date = "unknown"
	}
	return b
}

func (b Build) withSettings(settings []debug.BuildSetting) Build {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == "" {
				b.Date = s.Value
			}
		}
	}
	return b
}

func (b Build) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}

// GetVersion: короткая форма для health-ответов.
func GetVersion() string { return version }

func String() string { return Current().String() }
