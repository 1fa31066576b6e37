package poller

import (
	"fmt"
	"time"
)

// Action is the single piece of work chosen for a tick.
type Action int

const (
	ActionNone Action = iota
	ActionInit
	ActionFetchSchedule
	ActionRecomputeStatus
	ActionPublishAll
	ActionRefreshAllowance
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionInit:
		return "init"
	case ActionFetchSchedule:
		return "fetch_schedule"
	case ActionRecomputeStatus:
		return "recompute_status"
	case ActionPublishAll:
		return "publish_all"
	case ActionRefreshAllowance:
		return "refresh_allowance"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Clock holds the independent next-due times of each action. A zero time
// is due immediately, so a zero Clock starts with an init.
type Clock struct {
	NextInit             time.Time
	NextScheduleFetch    time.Time
	NextStatusRecompute  time.Time
	NextFullPublish      time.Time
	NextAllowanceRefresh time.Time
	ForceInit            bool
}

func due(now, at time.Time) bool { return !now.Before(at) }

// Decide returns the highest priority action due at now.
func (c Clock) Decide(now time.Time) Action {
	switch {
	case c.ForceInit || due(now, c.NextInit):
		return ActionInit
	case due(now, c.NextScheduleFetch):
		return ActionFetchSchedule
	case due(now, c.NextStatusRecompute):
		return ActionRecomputeStatus
	case due(now, c.NextFullPublish):
		return ActionPublishAll
	case due(now, c.NextAllowanceRefresh):
		return ActionRefreshAllowance
	default:
		return ActionNone
	}
}

// Next returns the earliest time at which Decide stops returning ActionNone.
func (c Clock) Next() time.Time {
	if c.ForceInit {
		return time.Time{}
	}
	next := c.NextInit
	for _, t := range []time.Time{c.NextScheduleFetch, c.NextStatusRecompute, c.NextFullPublish, c.NextAllowanceRefresh} {
		if t.Before(next) {
			next = t
		}
	}
	return next
}
