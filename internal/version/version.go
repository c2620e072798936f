package version

import (
	"runtime"

	"github.com/alvarorichard/Gostream/internal/tracking"
)

// Version is overridden at build time with -ldflags "-X .../version.Version=..."
var Version = "0.3.0"

// Features lists optional capabilities compiled into this binary
func Features() []string {
	features := []string{runtime.Version(), runtime.GOOS + "/" + runtime.GOARCH}
	if tracking.IsCgoEnabled {
		features = append(features, "sqlite")
	} else {
		features = append(features, "no-sqlite")
	}
	return features
}
