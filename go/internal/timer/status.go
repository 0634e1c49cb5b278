package timer

import "fmt"

// TimerStatus is the run state shared by every client of a group.
type TimerStatus int

const (
	StatusStopped TimerStatus = iota
	StatusRunning
	StatusPrepared
)

func (s TimerStatus) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	case StatusPrepared:
		return "prepared"
	default:
		return fmt.Sprintf("TimerStatus(%d)", int(s))
	}
}
