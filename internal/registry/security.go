package registry

import (
	"os/user"
	"strconv"
	"strings"
)

// lookupUserName and lookupGroupName resolve the uid/gid captured at
// Register time to names for the Security validation category's
// allow-list checks (spec §4.2).
func lookupUserName(uid int) (string, bool) {
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return "", false
	}
	return u.Username, true
}

func lookupGroupName(gid int) (string, bool) {
	g, err := user.LookupGroupId(strconv.Itoa(gid))
	if err != nil {
		return "", false
	}
	return g.Name, true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// underAnyRoot reports whether dir is one of, or nested under, one of roots.
func underAnyRoot(dir string, roots []string) bool {
	for _, root := range roots {
		if root == "" {
			continue
		}
		if dir == root || strings.HasPrefix(dir, strings.TrimRight(root, "/")+"/") {
			return true
		}
	}
	return false
}

// firstFlaggedEnvVar reports the first KEY from flagged that appears
// (regardless of value) in env, a "KEY=VALUE" slice as captured from the
// spawned child's environment.
func firstFlaggedEnvVar(env []string, flagged []string) (string, bool) {
	present := make(map[string]bool, len(env))
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			present[kv[:i]] = true
		}
	}
	for _, key := range flagged {
		if present[key] {
			return key, true
		}
	}
	return "", false
}
