// Package version exposes build metadata for the callcore runtime.
// Variables can be overridden at build time using ldflags:
//
//	go build -ldflags "-X github.com/voicecollect/callcore/version.version=1.0.0"
package version

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
)

// Build-time variables, overridable with -ldflags.
var (
	version   = "dev"
	gitCommit = ""
	buildDate = ""
)

const shortCommitLen = 7

// Info is a resolved snapshot of the build metadata.
type Info struct {
	Version string
	Commit  string
	Dirty   bool
	Built   string
}

// Get resolves build metadata, preferring ldflags values and falling
// back to the module build info embedded by the Go toolchain.
func Get() Info {
	info := Info{Version: version, Commit: gitCommit, Built: buildDate}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "" && setting.Value != "" {
				info.Commit = setting.Value[:min(shortCommitLen, len(setting.Value))]
			}
		case "vcs.modified":
			if gitCommit == "" && setting.Value == "true" {
				info.Dirty = true
			}
		}
	}
	return info
}

// GetVersion returns the version string alone.
func GetVersion() string { return Get().Version }

// String renders the metadata for CLI-style output.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "callcore version %s", i.Version)
	if i.Commit != "" {
		fmt.Fprintf(&b, "\ncommit: %s", i.Commit)
	}
	if i.Built != "" {
		fmt.Fprintf(&b, "\nbuilt: %s", i.Built)
	}
	return b.String()
}

// LogAttrs returns the metadata as slog key-value pairs.
func (i Info) LogAttrs() []any {
	attrs := []any{"version", i.Version}
	if i.Commit != "" {
		attrs = append(attrs, "commit", i.Commit)
	}
	if i.Dirty {
		attrs = append(attrs, "dirty", true)
	}
	if i.Built != "" {
		attrs = append(attrs, "built", i.Built)
	}
	return attrs
}

// LogStartup logs build metadata once at debug level. Called by the
// logger package after initialization; silent unless LOG_LEVEL requests
// debug output.
func LogStartup() {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug", "trace":
	default:
		return
	}
	slog.Log(context.Background(), slog.LevelDebug, "callcore starting", Get().LogAttrs()...)
}
