package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeStartCommand(t *testing.T) {
	cmd := StartCommand(Parameters{
		InitialPopulationSize:   500,
		NumGenerations:          25,
		MutationRate:            0.01,
		AntibioticConcentration: 0.3,
	})

	data, err := EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("encoded command is not valid JSON: %v", err)
	}

	if decoded["type"] != "start_simulation" {
		t.Errorf("type = %v, want start_simulation", decoded["type"])
	}

	params, ok := decoded["parameters"].(map[string]interface{})
	if !ok {
		t.Fatal("parameters missing from encoded command")
	}
	if params["initial_population_size"] != float64(500) {
		t.Errorf("initial_population_size = %v, want 500", params["initial_population_size"])
	}
	if params["antibiotic_concentration"] != 0.3 {
		t.Errorf("antibiotic_concentration = %v, want 0.3", params["antibiotic_concentration"])
	}
}

func TestEncodePauseAndCancelOmitParameters(t *testing.T) {
	for _, cmd := range []Command{PauseCommand(), CancelCommand()} {
		data, err := EncodeCommand(cmd)
		if err != nil {
			t.Fatalf("EncodeCommand(%s) error = %v", cmd.Type, err)
		}

		var decoded map[string]interface{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatal(err)
		}
		if _, hasParams := decoded["parameters"]; hasParams {
			t.Errorf("%s should not carry parameters", cmd.Type)
		}
	}
}

func TestEncodeStartRejectsInvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		params Parameters
		want   error
	}{
		{"zero population", Parameters{NumGenerations: 10, MutationRate: 0.1}, ErrInvalidPopulation},
		{"zero generations", Parameters{InitialPopulationSize: 10, MutationRate: 0.1}, ErrInvalidGenerations},
		{"mutation rate > 1", Parameters{InitialPopulationSize: 10, NumGenerations: 10, MutationRate: 1.5}, ErrInvalidMutationRate},
		{"negative concentration", Parameters{InitialPopulationSize: 10, NumGenerations: 10, MutationRate: 0.1, AntibioticConcentration: -0.1}, ErrInvalidConcentration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeCommand(StartCommand(tt.params))
			if !errors.Is(err, tt.want) {
				t.Errorf("EncodeCommand() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeSimulationUpdate(t *testing.T) {
	raw := []byte(`{"type":"simulation_update","data":{"generation":7,"progress":28.0,"population_size":480,"resistant_count":52,"antibiotic_concentration":0.3}}`)

	event, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}

	if event.Type != EventSimulationUpdate {
		t.Errorf("Type = %s, want simulation_update", event.Type)
	}
	if event.Update == nil {
		t.Fatal("Update is nil")
	}
	if event.Update.Generation != 7 {
		t.Errorf("Generation = %d, want 7", event.Update.Generation)
	}
	if event.Update.Progress != 28.0 {
		t.Errorf("Progress = %v, want 28", event.Update.Progress)
	}
	if event.Update.ResistantCount != 52 {
		t.Errorf("ResistantCount = %d, want 52", event.Update.ResistantCount)
	}
}

func TestDecodeComplete(t *testing.T) {
	event, err := DecodeEvent([]byte(`{"type":"simulation_complete"}`))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if event.Type != EventSimulationComplete {
		t.Errorf("Type = %s, want simulation_complete", event.Type)
	}
	if !event.Known() {
		t.Error("Known() = false for simulation_complete")
	}
}

func TestDecodeError(t *testing.T) {
	event, err := DecodeEvent([]byte(`{"type":"error","message":"engine exploded"}`))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if event.Type != EventError {
		t.Errorf("Type = %s, want error", event.Type)
	}
	if event.Message != "engine exploded" {
		t.Errorf("Message = %q", event.Message)
	}
}

func TestDecodeUnknownTypeTolerated(t *testing.T) {
	event, err := DecodeEvent([]byte(`{"type":"heartbeat_v2","data":{"x":1}}`))
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v, unknown types must decode", err)
	}
	if event.Known() {
		t.Error("Known() = true for heartbeat_v2")
	}
}

func TestDecodeMalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"not json", []byte("{{{")},
		{"missing type", []byte(`{"data":{}}`)},
		{"update without data", []byte(`{"type":"simulation_update"}`)},
		{"update with bad data", []byte(`{"type":"simulation_update","data":{"generation":"seven"}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent(tt.raw)

			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Errorf("DecodeEvent() error = %v, want *ParseError", err)
			}
		})
	}
}

func TestParseErrorTruncatesRaw(t *testing.T) {
	big := make([]byte, 10_000)
	for i := range big {
		big[i] = '{'
	}

	_, err := DecodeEvent(big)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("DecodeEvent() error = %v, want *ParseError", err)
	}
	if len(parseErr.Raw) > maxRawInError {
		t.Errorf("Raw length = %d, want <= %d", len(parseErr.Raw), maxRawInError)
	}
}
