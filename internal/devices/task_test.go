package devices

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"
	"github.com/berfenger/sensorhub/internal/core/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTaskSlotRollback(t *testing.T) {
	tasks := service.NewTaskScheduler(zap.NewNop())
	var periods []time.Duration
	callback := func(tick *port.Tick) error {
		periods = append(periods, tick.Period)
		return nil
	}
	ok := func() error { return nil }
	failed := errors.New("disk full")
	fail := func() error { return failed }

	slot := taskSlot{tasks: tasks}
	require.NoError(t, slot.replace("lamp", time.Second, callback, ok))
	assert.Equal(t, []string{"lamp"}, tasks.TaskNames())

	// save fails on rename: old task stays
	assert.ErrorIs(t, slot.replace("pump", time.Second, callback, fail), failed)
	assert.Equal(t, []string{"lamp"}, tasks.TaskNames())
	assert.Equal(t, "lamp", slot.name)

	// save fails on period change: old period stays
	assert.ErrorIs(t, slot.replace("lamp", time.Minute, callback, fail), failed)
	tasks.Tick(time.Millisecond)
	assert.Equal(t, []time.Duration{time.Second}, periods)

	// collision: nothing saved, nothing moved
	require.NoError(t, tasks.AddTask("taken", time.Second, callback))
	saved := false
	err := slot.replace("taken", time.Second, callback, func() error { saved = true; return nil })
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.ErrorIs(t, err, domain.ErrDeserializationFailed)
	assert.False(t, saved)
	assert.ElementsMatch(t, []string{"lamp", "taken"}, tasks.TaskNames())

	// disable drops the task after a successful save
	require.NoError(t, slot.replace("", 0, callback, ok))
	assert.Equal(t, []string{"taken"}, tasks.TaskNames())
	assert.Empty(t, slot.name)
}
