//go:build !linux

package registry

import "github.com/shannon-mcp/shannon-mcp/pkg/types"

// collectResourceMetrics has no /proc equivalent wired on non-Linux
// platforms; it returns a zero snapshot rather than failing validation.
func collectResourceMetrics(pid int) types.ResourceMetrics {
	return types.ResourceMetrics{}
}
