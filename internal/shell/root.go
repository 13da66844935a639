package shell

import (
	"context"
	"strings"
)

const (
	rootCheckCommand = "id"
	rootUIDMarker    = "uid=0"
)

// CheckRoot reports whether commands run through e execute as uid 0.
// Any failure of the check reports false.
func CheckRoot(ctx context.Context, e Executor) bool {
	result := e.Execute(ctx, rootCheckCommand)
	if !result.Succeeded {
		return false
	}

	firstLine, _, _ := strings.Cut(result.Output, "\n")

	return strings.Contains(firstLine, rootUIDMarker)
}
