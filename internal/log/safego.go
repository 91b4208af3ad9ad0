package log

import "runtime/debug"

// SafeGo starts fn on a new goroutine with panic recovery. A recovered panic
// is logged with the goroutine's name and stack trace instead of crashing
// the process. One stuck or buggy session must never take down its peers.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				Error(CatServer, "Recovered panic in goroutine",
					"goroutine", name,
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn()
	}()
}
