//go:build linux

package registry

import (
	"os"
	"strconv"
	"strings"

	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

// collectResourceMetrics reads /proc/<pid>/status and the fd directory for
// a best-effort resource snapshot. Fields it cannot determine are left
// zero rather than failing the whole collection.
func collectResourceMetrics(pid int) types.ResourceMetrics {
	var m types.ResourceMetrics

	if data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			switch {
			case strings.HasPrefix(line, "VmRSS:"):
				m.RSSBytes = parseKBLine(line) * 1024
			case strings.HasPrefix(line, "Threads:"):
				m.ThreadCount = int(parseKBLine(line))
			case strings.HasPrefix(line, "voluntary_ctxt_switches:"):
				m.VoluntaryCtxSwitches = parseKBLine(line)
			case strings.HasPrefix(line, "nonvoluntary_ctxt_switches:"):
				m.InvoluntaryCtxSwitches = parseKBLine(line)
			}
		}
	}

	if entries, err := os.ReadDir("/proc/" + strconv.Itoa(pid) + "/fd"); err == nil {
		m.FDCount = len(entries)
	}

	return m
}

func parseKBLine(line string) int64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
