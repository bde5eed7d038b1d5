// Package version reports the build version of the binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version can be set at build time with something like:
// go build -ldflags "-X github.com/grz0zrg/fas/version.Version=$(git describe --dirty)"
var Version string

// Hash is the short VCS revision of the build, suffixed with -dirty when the
// tree was modified.
var Hash = func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	return revision(info.Settings)
}()

// VersionOrHash is Version, or Hash when no version was set.
var VersionOrHash = func() string {
	if Version != "" {
		return Version
	}
	return Hash
}()

func revision(settings []debug.BuildSetting) string {
	var rev string
	modified := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if rev != "" && modified {
		rev += "-dirty"
	}
	return rev
}

// String describes the build of the named binary.
func String(name string) string {
	v := VersionOrHash
	if v == "" {
		v = "devel"
	}
	return fmt.Sprintf("%s %s (%s, %s/%s)", name, v, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
