package message

import (
	"encoding/json"
	"testing"
)

func TestDecodeRoundTrip(t *testing.T) {
	events := []NormalizedEvent{
		{Title: "Standup", Start: "09:30", End: "10:00", Date: "2025-06-09"},
		{Title: "Planning", Start: "13:00", End: "14:00", Day: "Wednesday"},
	}
	raw, err := json.Marshal(EventsReady(events, "2025-06-08", "sync-1"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeEventsReady || env.WeekOf != "2025-06-08" || env.SyncID != "sync-1" {
		t.Errorf("unexpected envelope %+v", env)
	}
	if len(env.Events) != 2 || env.Events[0] != events[0] || env.Events[1] != events[1] {
		t.Errorf("events did not survive the round trip: %+v", env.Events)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"Telemetry"}`)); err == nil {
		t.Error("expected unknown type to be rejected")
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Error("expected malformed payload to be rejected")
	}
}

func TestVariantConstructors(t *testing.T) {
	if env := ConsumerReady("tab-1"); env.Type != TypeConsumerReady || env.TabID != "tab-1" {
		t.Errorf("unexpected ConsumerReady %+v", env)
	}
	if env := FetchRequested("tab-2"); env.Type != TypeFetchRequested || env.TabID != "tab-2" {
		t.Errorf("unexpected FetchRequested %+v", env)
	}
	if env := FetchCommand("s"); env.Type != TypeFetchCommand || env.SyncID != "s" {
		t.Errorf("unexpected FetchCommand %+v", env)
	}
	if env := FetchFailed("boom", "s"); env.Type != TypeFetchFailed || env.Error != "boom" {
		t.Errorf("unexpected FetchFailed %+v", env)
	}
}
