package fault

import (
	"fmt"
	"runtime"
	"time"
)

// PanicContext records where a recovered panic originated so host bindings
// can re-raise typed errors without losing diagnostics.
type PanicContext struct {
	File      string    `json:"file"`
	Line      int       `json:"line"`
	Function  string    `json:"function"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// FromPanic converts a recovered panic value into a Runtime error carrying
// origin context. Call it directly inside the deferred recover block so the
// captured frame points at the panicking code, not at scheduling machinery.
func FromPanic(recovered any) *Error {
	msg := fmt.Sprintf("%v", recovered)
	pc := &PanicContext{
		Message:   msg,
		Timestamp: time.Now().UTC(),
	}

	// Walk up past recover/FromPanic frames to the first caller frame.
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()
			if frame.Function != "" && !isRuntimeFrame(frame.Function) {
				pc.File = frame.File
				pc.Line = frame.Line
				pc.Function = frame.Function
				break
			}
			if !more {
				break
			}
		}
	}

	err := Runtime(fmt.Sprintf("recovered panic: %s", msg), nil)
	err.Panic = pc
	return err
}

func isRuntimeFrame(fn string) bool {
	return len(fn) >= 8 && fn[:8] == "runtime."
}
