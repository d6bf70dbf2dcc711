package discovery

import "github.com/sirupsen/logrus"

// Machine holds the current state and logs transitions. Not safe for concurrent use: it belongs
// to the client loop.
type Machine struct {
	state  State
	logger *logrus.Logger
}

// NewMachine returns a machine in Idle
func NewMachine(logger *logrus.Logger) *Machine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Machine{state: Idle, logger: logger}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Fire applies ev and returns the resulting action
func (m *Machine) Fire(ev Event) Action {
	next, action := Next(m.state, ev)
	if next != m.state {
		m.logger.WithFields(logrus.Fields{
			"from":   m.state,
			"to":     next,
			"event":  ev.Kind,
			"action": action,
		}).Debug("Discovery state changed")
	}
	m.state = next
	return action
}
