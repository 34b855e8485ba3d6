package model

import "time"

// BuildRecord summarizes one completed tree build
type BuildRecord struct {
	ID          int64         `json:"id"`
	SessionID   int64         `json:"session_id"`
	RootID      NodeID        `json:"root_id"`
	Trigger     string        `json:"trigger"` // load, rebuild, toggle, expand_all, collapse_all, refresh, switch
	Visited     int           `json:"visited"`
	Failed      int           `json:"failed"`
	Depth       int           `json:"depth"`
	Truncated   bool          `json:"truncated"`
	RemoteCalls int64         `json:"remote_calls"`
	Duration    time.Duration `json:"duration"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ViewerSession groups builds done together for one focus user
type ViewerSession struct {
	ID          int64      `json:"id"`
	Key         string     `json:"key"` // random uuid, stable across journal copies
	Address     string     `json:"address"`
	RootID      NodeID     `json:"root_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Builds      int        `json:"builds"`
	MaxVisited  int        `json:"max_visited"`
	TotalFailed int        `json:"total_failed"`
}

// Build trigger constants
const (
	TriggerLoad        = "load"
	TriggerRebuild     = "rebuild"
	TriggerToggle      = "toggle"
	TriggerExpandAll   = "expand_all"
	TriggerCollapseAll = "collapse_all"
	TriggerRefresh     = "refresh"
	TriggerSwitch      = "switch"
)

// IsValidTrigger checks if a build trigger is valid
func IsValidTrigger(t string) bool {
	switch t {
	case TriggerLoad, TriggerRebuild, TriggerToggle, TriggerExpandAll, TriggerCollapseAll, TriggerRefresh, TriggerSwitch:
		return true
	}
	return false
}
