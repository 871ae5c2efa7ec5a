package protocol

import (
	"encoding/json"
	"testing"
)

func TestValidCategory(t *testing.T) {
	for _, c := range Categories {
		if !ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = false", c)
		}
	}
	for _, c := range []string{"", "Safe", "ransomware", CategoryError} {
		if ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = true", c)
		}
	}
}

func TestRequestWireFormat(t *testing.T) {
	data, err := json.Marshal(Request{Type: RequestTypeAnalyze, RequestID: "r1", Prompt: "p"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"requestType", "requestId", "prompt"} {
		if _, ok := m[key]; !ok {
			t.Errorf("request frame missing %q key: %s", key, data)
		}
	}
}

func TestResponseHelpers(t *testing.T) {
	v := Verdict{BriefAnalysis: "a", Category: CategoryScam, Confidence: 0.7}
	resp := CompletionResponse("r1", v)
	if resp.Type != ResponseTypeCompletion || resp.RequestID != "r1" || resp.Category != CategoryScam {
		t.Errorf("CompletionResponse = %+v", resp)
	}

	resp = ErrorResponse("r2", "boom")
	if resp.Type != ResponseTypeError || resp.Category != CategoryError || resp.Confidence != 0 {
		t.Errorf("ErrorResponse = %+v", resp)
	}

	resp = UnknownResponse("r3", "resources")
	if resp.Type != ResponseTypeCompletion || resp.Category != CategoryUnknownThreat || resp.Confidence != 0 {
		t.Errorf("UnknownResponse = %+v", resp)
	}
}
