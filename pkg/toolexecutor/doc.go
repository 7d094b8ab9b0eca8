// Package toolexecutor registers tools, validates their arguments and serves them over HTTP.
//
// Invariants:
// - Tool names are unique; registering an existing name replaces it.
// - Arguments are schema-validated before the handler runs.
// - Execute returns ErrToolNotFound, *ValidationError or *ExecutionError, never a panic.
//
// Usage:
//
//	exec := toolexecutor.New()
//	_ = toolexecutor.RegisterBuiltins(exec)
//	text, err := exec.Execute(ctx, "add", map[string]interface{}{"a": 2.0, "b": 2.0}) // "4"
//
//	srv, _ := toolexecutor.NewServer(toolexecutor.ServerOptions{Port: 8002}, exec)
//	go srv.Start()
package toolexecutor
