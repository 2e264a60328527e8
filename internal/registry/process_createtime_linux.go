//go:build linux

package registry

import (
	"os"
	"strconv"
	"strings"
)

// processCreationTime derives a Unix timestamp from /proc/<pid>/stat's
// starttime field (clock ticks since boot), the OS-reported signal the
// registry's (pid, creation-time) identity invariant depends on (spec §3).
func processCreationTime(pid int) (int64, bool) {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0, false
	}
	// Fields after the process name's closing ')' are space separated;
	// starttime is the 22nd field overall, i.e. the 19th after state.
	idx := strings.LastIndexByte(string(data), ')')
	if idx < 0 || idx+2 >= len(data) {
		return 0, false
	}
	fields := strings.Fields(string(data)[idx+2:])
	const starttimeOffset = 22 - 3
	if starttimeOffset < 0 || starttimeOffset >= len(fields) {
		return 0, false
	}
	ticks, err := strconv.ParseInt(fields[starttimeOffset], 10, 64)
	if err != nil {
		return 0, false
	}
	boot, ok := bootTimeUnix()
	if !ok {
		return 0, false
	}
	const userHZ = 100
	return boot + ticks/userHZ, true
}

func bootTimeUnix() (int64, bool) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "btime ") {
			v, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "btime ")), 10, 64)
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}
