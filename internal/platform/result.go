package platform

import "fmt"

// Result is the uniform outcome of a platform operation. The orchestration
// core never looks past Success; Data and Error are for the reasoning engine
// and the user-facing summary the agent writes.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func OK(data map[string]any) Result {
	return Result{Success: true, Data: data}
}

func Fail(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}
