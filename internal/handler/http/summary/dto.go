package summary

import "time"

// Request is the JSON body of POST /summaries. Multipart uploads carry the
// same fields as form values next to a "file" part.
// Pointer fields distinguish "not sent" from zero and fall back to the
// configured defaults.
type Request struct {
	Text       string `json:"text"`
	ModelID    string `json:"model_id"`
	UseGPU     *bool  `json:"use_gpu"`
	Device     string `json:"device"`
	MinLength  *int   `json:"min_length"`
	MaxLength  *int   `json:"max_length"`
	SecondPass *bool  `json:"second_pass"`
	Deidentify bool   `json:"deidentify"`
	Credential string `json:"credential"`
}

// Response is the JSON body of a successful summarization.
type Response struct {
	Summary    string `json:"summary"`
	ModelID    string `json:"model_id"`
	Device     string `json:"device"`
	Chunks     int    `json:"chunks"`
	SecondPass bool   `json:"second_pass"`
	DurationMS int64  `json:"duration_ms"`
	Encoding   string `json:"encoding,omitempty"`
}

func durationMS(d time.Duration) int64 {
	return d.Milliseconds()
}
