package version

import (
	"fmt"
	"runtime"
)

// Overridden at build time with -ldflags.
var (
	Version  = "0.3.0-dev"
	Revision = "unknown"
)

func Detailed() string {
	return fmt.Sprintf("%s (rev %s; %s; %s/%s)", Version, Revision, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
