package events

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// Manager wraps the bus with structured logging so every emission leaves a
// trace even when no subscriber is attached.
type Manager struct {
	bus    *Bus
	logger zerolog.Logger
}

// NewManager creates a new event manager.
func NewManager(bus *Bus, logger zerolog.Logger) *Manager {
	return &Manager{
		bus:    bus,
		logger: logger.With().Str("component", "event_manager").Logger(),
	}
}

// Bus exposes the underlying bus for subscription wiring.
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Emit publishes a typed event on the bus.
func (m *Manager) Emit(module string, data EventData) {
	eventType := data.EventType()

	if payload, err := json.Marshal(data); err == nil {
		m.logger.Debug().
			Str("event_type", string(eventType)).
			Str("module", module).
			RawJSON("data", payload).
			Msg("Event emitted")
	} else {
		m.logger.Debug().
			Str("event_type", string(eventType)).
			Str("module", module).
			Msg("Event emitted")
	}

	m.bus.Emit(eventType, module, data)
}

// EmitError publishes an ErrorOccurred event and logs it at error level.
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.logger.Error().
		Err(err).
		Str("module", module).
		Fields(context).
		Msg("Error event emitted")

	m.bus.Emit(ErrorOccurred, module, &ErrorEventData{
		Error:   err.Error(),
		Context: context,
	})
}
