// Package protocol defines the wire frames exchanged between a scanning
// client and the daemon, and the threat taxonomy shared by every layer.
package protocol

// Request types
const (
	RequestTypeAnalyze = "request"
	// RequestTypeCancel is reserved on the wire but not implemented:
	// once forwarded to the worker a request runs to completion.
	RequestTypeCancel = "cancel"
)

// Response types
const (
	ResponseTypeCompletion = "completion"
	ResponseTypeError      = "error"
)

// Threat categories a classification can produce
const (
	CategorySafe          = "safe"
	CategorySpam          = "spam"
	CategoryUnknownThreat = "unknown_threat"
	CategoryMalware       = "malware"
	CategoryExfiltration  = "data_exfiltration"
	CategoryPhishing      = "phishing"
	CategoryScam          = "scam"
	CategoryExtortion     = "extortion"
	CategoryError         = "error"
)

// Categories lists every category the output grammar permits, in the order
// they are presented to the model.
var Categories = []string{
	CategorySafe,
	CategorySpam,
	CategoryUnknownThreat,
	CategoryMalware,
	CategoryExfiltration,
	CategoryPhishing,
	CategoryScam,
	CategoryExtortion,
}

// ValidCategory reports whether c is a category the grammar can emit.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Request is a client-to-daemon analysis frame.
type Request struct {
	Type      string `json:"requestType"`
	RequestID string `json:"requestId"`
	Prompt    string `json:"prompt"`
}

// Response is a daemon-to-client terminal frame. Failures are shaped
// identically to successes and distinguished only by Type/Category, so
// clients need no special-casing.
type Response struct {
	Type          string  `json:"responseType"`
	RequestID     string  `json:"requestId"`
	BriefAnalysis string  `json:"brief_analysis"`
	Category      string  `json:"type"`
	Confidence    float64 `json:"confidence"`
}

// Verdict is the classification payload independent of request identity.
// It is what gets cached and what the engine produces.
type Verdict struct {
	BriefAnalysis string  `json:"brief_analysis"`
	Category      string  `json:"type"`
	Confidence    float64 `json:"confidence"`
}

// CompletionResponse builds a success frame for a request id.
func CompletionResponse(requestID string, v Verdict) Response {
	return Response{
		Type:          ResponseTypeCompletion,
		RequestID:     requestID,
		BriefAnalysis: v.BriefAnalysis,
		Category:      v.Category,
		Confidence:    v.Confidence,
	}
}

// ErrorResponse builds a terminal error frame for a request id.
func ErrorResponse(requestID, reason string) Response {
	return Response{
		Type:          ResponseTypeError,
		RequestID:     requestID,
		BriefAnalysis: reason,
		Category:      CategoryError,
		Confidence:    0,
	}
}

// UnknownResponse builds a synthesized unknown_threat completion, used when
// the daemon cannot run inference (resource pressure, oversized input) but
// must still deliver a terminal result.
func UnknownResponse(requestID, reason string) Response {
	return Response{
		Type:          ResponseTypeCompletion,
		RequestID:     requestID,
		BriefAnalysis: reason,
		Category:      CategoryUnknownThreat,
		Confidence:    0,
	}
}
