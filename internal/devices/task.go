package devices

import (
	"time"

	"github.com/berfenger/sensorhub/internal/core/port"
)

// taskSlot is the scheduler registration a device owns. An empty name means no task.
type taskSlot struct {
	tasks  port.TaskRegistrar
	name   string
	period time.Duration
}

// replace moves the registration to name/period and runs save in between. When
// either the registration or save fails, the previous registration is restored and
// the slot is left unchanged.
func (t *taskSlot) replace(name string, period time.Duration, callback port.TaskFunc, save func() error) error {
	if name == t.name && (name == "" || period == t.period) {
		return save()
	}
	reused := name != "" && name == t.name
	if reused {
		t.tasks.RemoveTask(name)
	}
	restore := func() {
		if reused {
			_ = t.tasks.AddTask(t.name, t.period, callback)
		}
	}
	if name != "" {
		if err := t.tasks.AddTask(name, period, callback); err != nil {
			restore()
			return invalidConfig(err)
		}
	}
	if err := save(); err != nil {
		if name != "" {
			t.tasks.RemoveTask(name)
		}
		restore()
		return err
	}
	if t.name != "" && !reused {
		t.tasks.RemoveTask(t.name)
	}
	t.name, t.period = name, period
	return nil
}
