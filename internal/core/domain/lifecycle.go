package domain

import "fmt"

// Event is a coarse lifecycle status broadcast to every event observer.
type Event int

const (
	EventClear Event = iota
	EventStarting
	EventReady
	EventUpdating
	EventRebooting
	EventRunning
	EventWifiConfig
	EventError
)

var eventNames = [...]string{"clear", "starting", "ready", "updating", "rebooting", "running", "wifi_config", "error"}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("event(%d)", int(e))
	}
	return eventNames[e]
}

func (e Event) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func ParseEvent(s string) (Event, error) {
	for i, name := range eventNames {
		if name == s {
			return Event(i), nil
		}
	}
	return EventClear, fmt.Errorf("unknown event %q", s)
}
