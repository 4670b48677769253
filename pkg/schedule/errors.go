package schedule

import "fmt"

// BadSchedule reports a malformed schedule YAML document (spec §4.1, §7).
// Returned to the caller at topic creation; the topic is never created.
type BadSchedule struct {
	Reason string
}

func (e *BadSchedule) Error() string {
	return fmt.Sprintf("bad schedule: %s", e.Reason)
}
