package pharos

import (
	"runtime/debug"
	"strings"
)

// callWithRecovery runs fn and converts a panic into a *HandlerPanicError.
func callWithRecovery(fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &HandlerPanicError{
				Value: recovered,
				Stack: trimStack(string(debug.Stack())),
			}
		}
	}()
	return fn()
}

// trimStack drops the goroutine header and the frames belonging to
// debug.Stack and the deferred recover.
func trimStack(stack string) string {
	lines := strings.Split(stack, "\n")
	if len(lines) <= 7 {
		return stack
	}
	return strings.Join(lines[7:], "\n")
}
