package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/events"
)

// OutcomesStreamHandler streams decision-cycle outcomes and related engine
// events over Server-Sent Events.
type OutcomesStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewOutcomesStreamHandler creates a new outcomes stream handler.
func NewOutcomesStreamHandler(eventBus *events.Bus, log zerolog.Logger) *OutcomesStreamHandler {
	return &OutcomesStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "outcomes_stream").Logger(),
	}
}

// streamedTypes are the event types forwarded when no filter is given.
var streamedTypes = []events.EventType{
	events.ReallocationOutcome,
	events.VaultReconciled,
	events.CascadeCompleted,
	events.ErrorOccurred,
}

// ServeHTTP handles GET /api/outcomes/stream requests (SSE).
func (h *OutcomesStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	typesFilter := r.URL.Query().Get("types")
	var allowedTypes map[events.EventType]bool
	if typesFilter != "" {
		allowedTypes = make(map[events.EventType]bool)
		for _, t := range strings.Split(typesFilter, ",") {
			allowedTypes[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	h.log.Info().Str("types_filter", typesFilter).Msg("Client connected to outcomes stream")

	// Buffered so a slow client cannot block the bus.
	eventChan := make(chan *events.Event, 100)

	eventHandler := func(event *events.Event) {
		if allowedTypes != nil && !allowedTypes[event.Type] {
			return
		}
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}

	if allowedTypes == nil {
		for _, eventType := range streamedTypes {
			h.eventBus.Subscribe(eventType, eventHandler)
		}
	} else {
		for eventType := range allowedTypes {
			h.eventBus.Subscribe(eventType, eventHandler)
		}
	}

	done := r.Context().Done()

	fmt.Fprintf(w, "data: %s\n\n", h.encodeEvent(map[string]interface{}{
		"type":    "connected",
		"message": "Connected to outcomes stream",
	}))
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			h.log.Info().Msg("Client disconnected from outcomes stream")
			return

		case event := <-eventChan:
			eventJSON := h.encodeEvent(map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			})
			fmt.Fprintf(w, "data: %s\n\n", eventJSON)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", h.encodeEvent(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

// encodeEvent encodes an event map to a JSON string.
func (h *OutcomesStreamHandler) encodeEvent(event map[string]interface{}) string {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}
