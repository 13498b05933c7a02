// ABOUTME: Tests for Sendspin Protocol message types
// ABOUTME: Verifies JSON marshaling/unmarshaling of protocol messages
package protocol

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestClientHelloMarshaling(t *testing.T) {
	hello := ClientHello{
		ClientID:       "test-id",
		Name:           "Test Player",
		Version:        1,
		SupportedRoles: []string{"player"},
		DeviceInfo: &DeviceInfo{
			ProductName:     "Test Product",
			Manufacturer:    "Test Mfg",
			SoftwareVersion: "0.1.0",
		},
		PlayerV1Support: &PlayerV1Support{
			SupportedFormats: []AudioFormat{
				{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16},
				{Codec: "flac", Channels: 2, SampleRate: 48000, BitDepth: 16},
				{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 16},
			},
			BufferCapacity:    1048576,
			SupportedCommands: []string{"volume", "mute"},
		},
	}

	msg := Message{
		Type:    TypeClientHello,
		Payload: hello,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeClientHello {
		t.Errorf("expected type %s, got %s", TypeClientHello, decoded.Type)
	}
}

func TestClientStateMarshaling(t *testing.T) {
	state := ClientStateMessage{
		Player: &PlayerState{
			State:  "synchronized",
			Volume: 80,
			Muted:  false,
		},
	}

	msg := Message{
		Type:    TypeClientState,
		Payload: state,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeClientState {
		t.Errorf("expected type %s, got %s", TypeClientState, decoded.Type)
	}
}

func TestServerHelloUnmarshaling(t *testing.T) {
	data := []byte(`{
		"type": "server/hello",
		"payload": {
			"server_id": "srv-1",
			"name": "Living Room",
			"version": 1,
			"active_roles": ["player"],
			"connection_reason": "playback"
		}
	}`)

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatalf("failed to re-marshal payload: %v", err)
	}

	var hello ServerHello
	if err := json.Unmarshal(payloadBytes, &hello); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}

	if hello.ServerID != "srv-1" {
		t.Errorf("expected server_id srv-1, got %s", hello.ServerID)
	}
	if hello.ConnectionReason != "playback" {
		t.Errorf("expected connection_reason playback, got %s", hello.ConnectionReason)
	}
}

func TestStreamStartMarshaling(t *testing.T) {
	start := StreamStart{
		Player: &StreamStartPlayer{
			Codec:      "opus",
			SampleRate: 48000,
			Channels:   2,
			BitDepth:   16,
		},
	}

	msg := Message{Type: TypeStreamStart, Payload: start}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeStreamStart {
		t.Errorf("expected type %s, got %s", TypeStreamStart, decoded.Type)
	}
}

func TestStreamClearMarshaling(t *testing.T) {
	clear := StreamClear{Roles: []string{"player", "visualizer"}}
	msg := Message{Type: TypeStreamClear, Payload: clear}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if !jsonContains(t, data, `"roles"`) {
		t.Error("expected encoded message to contain roles field")
	}
}

func TestStreamEndMarshaling(t *testing.T) {
	end := StreamEnd{Roles: []string{"player"}}
	msg := Message{Type: TypeStreamEnd, Payload: end}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if !jsonContains(t, data, `"stream/end"`) {
		t.Error("expected encoded message to contain type stream/end")
	}
}

func TestClientGoodbyeMarshaling(t *testing.T) {
	goodbye := ClientGoodbye{Reason: "shutdown"}
	msg := Message{Type: TypeClientGoodbye, Payload: goodbye}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if !jsonContains(t, data, `"shutdown"`) {
		t.Error("expected encoded message to contain reason shutdown")
	}
}

func TestServerStateMarshaling(t *testing.T) {
	title := "Song Title"
	state := ServerStateMessage{
		Metadata: &MetadataState{
			Timestamp: 1000,
			Title:     &title,
		},
		Controller: &ControllerState{
			SupportedCommands: []string{"volume", "mute"},
			Volume:            50,
			Muted:             false,
		},
	}

	msg := Message{Type: TypeServerState, Payload: state}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeServerState {
		t.Errorf("expected type %s, got %s", TypeServerState, decoded.Type)
	}
}

func TestGroupUpdateMarshaling(t *testing.T) {
	state := "playing"
	update := GroupUpdate{PlaybackState: &state}
	msg := Message{Type: TypeGroupUpdate, Payload: update}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if !jsonContains(t, data, `"playing"`) {
		t.Error("expected encoded message to contain playback_state playing")
	}
}

func TestClientTimeServerTimeRoundTrip(t *testing.T) {
	ct := ClientTime{ClientTransmitted: 1000}
	msg := Message{Type: TypeClientTime, Payload: ct}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal client/time: %v", err)
	}
	if !jsonContains(t, data, `"client_transmitted":1000`) {
		t.Error("expected encoded client/time to carry client_transmitted")
	}

	st := ServerTime{ClientTransmitted: 1000, ServerReceived: 1002, ServerTransmitted: 1003}
	msg2 := Message{Type: TypeServerTime, Payload: st}
	data2, err := json.Marshal(msg2)
	if err != nil {
		t.Fatalf("failed to marshal server/time: %v", err)
	}
	if !jsonContains(t, data2, `"server_transmitted":1003`) {
		t.Error("expected encoded server/time to carry server_transmitted")
	}
}

func jsonContains(t *testing.T, data []byte, substr string) bool {
	t.Helper()
	return bytes.Contains(data, []byte(substr))
}
