// Call site capture for signal diagnostics
// Capture stores raw program counters; frames are resolved only when a label is rendered
package validator

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const maxCallSiteFrames = 16

const unknownCallSite = "unknown"

// internalPackages are skipped when choosing the frame to label.
// Frames from _test.go files are never skipped.
var internalPackages = []string{
	"github.com/andrewh/obscheck/pkg/observation.",
	"github.com/andrewh/obscheck/pkg/validator.",
	"github.com/andrewh/obscheck/pkg/otelbridge.",
}

// CallSite is a fixed-size snapshot of the stack at the point a signal was emitted.
// The zero value renders as "unknown".
type CallSite struct {
	pcs [maxCallSiteFrames]uintptr
	n   int
}

// Capture records the stack of its caller, skipping skip additional frames.
func Capture(skip int) CallSite {
	var cs CallSite
	cs.n = runtime.Callers(skip+2, cs.pcs[:])
	return cs
}

// String returns "<package>.<function>(<file>:<line>)" for the first frame
// outside this module's instrumentation packages.
func (c CallSite) String() string {
	if c.n == 0 {
		return unknownCallSite
	}
	frames := runtime.CallersFrames(c.pcs[:c.n])
	for {
		f, more := frames.Next()
		if f.Function != "" && !isInternalFrame(f) {
			return f.Function + "(" + filepath.Base(f.File) + ":" + strconv.Itoa(f.Line) + ")"
		}
		if !more {
			return unknownCallSite
		}
	}
}

func isInternalFrame(f runtime.Frame) bool {
	if strings.HasSuffix(f.File, "_test.go") {
		return false
	}
	for _, prefix := range internalPackages {
		if strings.HasPrefix(f.Function, prefix) {
			return true
		}
	}
	return false
}
