package internal

import (
	"runtime/debug"
)

// Version is stamped at release time with
// -ldflags "-X roomchat/internal.Version=1.0.0".
var Version = "dev"

// BuildVersion reports Version, or the module version recorded by the go
// tool when the binary was not stamped.
func BuildVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
