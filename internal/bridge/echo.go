package bridge

// EchoHandler is a reference config.ToolHandler used by `enclave serve` and
// the bridge's own tests: it echoes args back under a `received` key, and
// answers the literal tool name `t` with {"count": 42}, so the CLI's demo
// mode and the round-trip test fixtures share one handler implementation.
func EchoHandler(name string, args any) (any, error) {
	if name == "t" {
		return map[string]any{"count": 42}, nil
	}
	return map[string]any{"tool": name, "received": args}, nil
}
