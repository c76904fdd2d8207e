package tools

import "github.com/lojasmm/papo/internal/ai"

// BuildRegistry creates a Registry with every built-in tool.
func BuildRegistry(diskPath string) *ai.Registry {
	r := ai.NewRegistry()
	r.Register(NewServerStatus(diskPath))
	r.Register(NewCurrentTime())
	return r
}

// --- arg extraction helpers ---
// Missing or mistyped arguments fall back to zero values.

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}
