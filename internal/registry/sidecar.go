package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/shannon-mcp/shannon-mcp/internal/config"
)

// sidecar is the JSON document written to <data-root>/pids/<process_id>.pid
// (spec §6). It lets a restarted daemon reconcile live children against the
// OS without waiting for the database to answer first.
type sidecar struct {
	ProcessID      string `json:"processID"`
	PID            int    `json:"pid"`
	CreatedAt      int64  `json:"createdAt"`
	CommandLine    string `json:"commandLine"`
	ExecutablePath string `json:"executablePath"`
	SessionID      string `json:"sessionID,omitempty"`
}

func writeSidecar(paths *config.Paths, s sidecar) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(paths.PIDFilePath(s.ProcessID), data, 0644)
}

func removeSidecar(paths *config.Paths, processID string) error {
	err := os.Remove(paths.PIDFilePath(processID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// listSidecars reads every *.pid file under the PID directory, skipping
// (and leaving in place) any that fail to parse.
func listSidecars(paths *config.Paths) ([]sidecar, error) {
	entries, err := os.ReadDir(paths.PIDsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []sidecar
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pid") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(paths.PIDsDir(), e.Name()))
		if err != nil {
			continue
		}
		var s sidecar
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
