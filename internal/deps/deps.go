// Package deps verifies that the external commands configured for action
// kinds resolve to runnable binaries before the daemon accepts work.
package deps

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// Status reports the availability of one configured action command.
type Status struct {
	Kind      string
	Command   string
	Available bool
	Detail    string
}

// CheckActions resolves the first argv element of every configured action
// command via exec.LookPath. Results come back sorted by action kind.
func CheckActions(actions map[string][]string) []Status {
	results := make([]Status, 0, len(actions))
	for kind, argv := range actions {
		status := Status{Kind: kind}
		if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		command := strings.TrimSpace(argv[0])
		status.Command = command

		if _, err := exec.LookPath(command); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", command)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	sort.Slice(results, func(a, b int) bool { return results[a].Kind < results[b].Kind })
	return results
}

// Missing filters statuses down to unavailable commands.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available {
			missing = append(missing, status)
		}
	}
	return missing
}
