package scheduler

import "fmt"

// Priority is a total order over task importance. Higher values run
// first. Four named levels are defined; callers may define additional
// intermediate levels as plain ints between the named constants.
type Priority int32

const (
	PriorityBackground Priority = 0
	PriorityLow        Priority = 10
	PriorityMedium     Priority = 20
	PriorityHigh       Priority = 30
)

func (p Priority) String() string {
	switch {
	case p >= PriorityHigh:
		return "high"
	case p >= PriorityMedium:
		return "medium"
	case p >= PriorityLow:
		return "low"
	default:
		return "background"
	}
}

// Level binds a priority floor to the maximum total
// EstimatedCPUCoreCount() allowed to execute concurrently at or above that
// floor. Levels must be supplied to New sorted descending by
// Priority, with MaxConcurrentTasks monotone non-increasing as Priority
// falls — a lower band can never afford more concurrency than the band
// above it.
type Level struct {
	Priority           Priority
	MaxConcurrentTasks int
}

func validateLevels(levels []Level) error {
	if len(levels) == 0 {
		return fmt.Errorf("scheduler: at least one priority level is required")
	}
	for i, l := range levels {
		if l.MaxConcurrentTasks < 1 {
			return fmt.Errorf("scheduler: level %s has non-positive MaxConcurrentTasks %d", l.Priority, l.MaxConcurrentTasks)
		}
		if i == 0 {
			continue
		}
		prev := levels[i-1]
		if l.Priority >= prev.Priority {
			return fmt.Errorf("scheduler: levels must be strictly descending by priority (%s before %s)", prev.Priority, l.Priority)
		}
		if l.MaxConcurrentTasks > prev.MaxConcurrentTasks {
			return fmt.Errorf("scheduler: concurrency must be monotone non-increasing (%s=%d then %s=%d)", prev.Priority, prev.MaxConcurrentTasks, l.Priority, l.MaxConcurrentTasks)
		}
	}
	return nil
}

// maxConcurrentTasks returns the concurrency budget that governs a task
// admitted at the given priority: the band whose floor is the highest
// value <= p.
func maxConcurrentTasks(levels []Level, p Priority) int {
	best := levels[len(levels)-1].MaxConcurrentTasks
	for _, l := range levels {
		if p >= l.Priority {
			return l.MaxConcurrentTasks
		}
	}
	return best
}
