package emberr

import (
	"fmt"
	"runtime"
)

// location returns "file:line" for the caller skip frames up the stack,
// used to stamp Error.Location without requiring every call site to pass
// it explicitly.
func location(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}
