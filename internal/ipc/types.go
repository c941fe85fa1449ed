package ipc

import "time"

// SocketFileName is the daemon control socket below the log directory.
const SocketFileName = "warden.sock"

// Item is the wire representation of a vault item.
type Item struct {
	ID          string            `json:"id"`
	Source      string            `json:"source"`
	Subject     string            `json:"subject"`
	State       string            `json:"state"`
	ActionKind  string            `json:"action_kind"`
	Created     time.Time         `json:"created"`
	Updated     time.Time         `json:"updated"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Malformed   bool              `json:"malformed"`
}

// ProcessStatus is the wire representation of one supervised process.
type ProcessStatus struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	PID       int       `json:"pid"`
	Restarts  int       `json:"restarts"`
	LastError string    `json:"last_error"`
	Since     time.Time `json:"since"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon status information.
type StatusResponse struct {
	Running   bool            `json:"running"`
	PID       int             `json:"pid"`
	LockPath  string          `json:"lock_path"`
	VaultDir  string          `json:"vault_dir"`
	Counts    map[string]int  `json:"counts"`
	Processes []ProcessStatus `json:"processes"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Stopping bool `json:"stopping"`
}

// QueueListRequest filters the listing by state names; empty means all.
type QueueListRequest struct {
	States []string `json:"states"`
}

// QueueListResponse contains the matching items in queue order per state.
type QueueListResponse struct {
	Items []Item `json:"items"`
}

// QueueDescribeRequest fetches one item and its audit history.
type QueueDescribeRequest struct {
	ID string `json:"id"`
}

// QueueDescribeResponse contains one item with its body and history.
type QueueDescribeResponse struct {
	Item    Item     `json:"item"`
	Body    string   `json:"body"`
	History []string `json:"history"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
