package entity

import (
	"fmt"
	"strings"
	"time"
)

// DevicePreference is the request-level hint for where inference should run.
type DevicePreference string

const (
	// DevicePreferGPU selects a GPU when one is available at runtime, CPU otherwise.
	DevicePreferGPU DevicePreference = "prefer-gpu"
	// DeviceCPUOnly always runs inference on the CPU.
	DeviceCPUOnly DevicePreference = "cpu-only"
)

// ParseDevicePreference converts user input into a DevicePreference.
// "gpu", "cuda" and "prefer-gpu" map to DevicePreferGPU; "cpu" and "cpu-only" to DeviceCPUOnly.
func ParseDevicePreference(s string) (DevicePreference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prefer-gpu", "gpu", "cuda":
		return DevicePreferGPU, nil
	case "cpu-only", "cpu", "":
		return DeviceCPUOnly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDevice, s)
	}
}

// PreferenceFromGPUFlag maps a boolean "use GPU" toggle to a DevicePreference.
func PreferenceFromGPUFlag(useGPU bool) DevicePreference {
	if useGPU {
		return DevicePreferGPU
	}
	return DeviceCPUOnly
}

// Valid reports whether p is one of the known preferences.
func (p DevicePreference) Valid() bool {
	return p == DevicePreferGPU || p == DeviceCPUOnly
}

// Device is a concrete compute device that a model is bound to.
type Device string

const (
	// DeviceCPU is the host CPU.
	DeviceCPU Device = "cpu"
	// DeviceCUDA is the first CUDA device.
	DeviceCUDA Device = "cuda:0"
)

// IsGPU reports whether the device is a GPU.
func (d Device) IsGPU() bool {
	return strings.HasPrefix(string(d), "cuda")
}

// SummaryRequest carries one summarization call.
// Credential is only needed for access-restricted model sources.
type SummaryRequest struct {
	Text       string
	ModelID    string
	Device     DevicePreference
	MinLength  int
	MaxLength  int
	SecondPass bool
	Credential string
	Deidentify bool
}

// IsBlank reports whether the request text is empty or whitespace-only.
func (r SummaryRequest) IsBlank() bool {
	return strings.TrimSpace(r.Text) == ""
}

// Validate checks the length bounds and device preference.
// Text and model identifier are checked by the pipeline itself.
func (r SummaryRequest) Validate() error {
	if r.MinLength <= 0 {
		return &ValidationError{Field: "min_length", Message: "must be positive"}
	}
	if r.MaxLength <= 0 {
		return &ValidationError{Field: "max_length", Message: "must be positive"}
	}
	if r.MinLength > r.MaxLength {
		return &ValidationError{
			Field:   "min_length",
			Message: fmt.Sprintf("must be <= max_length (%d > %d)", r.MinLength, r.MaxLength),
		}
	}
	if !r.Device.Valid() {
		return &ValidationError{Field: "device", Message: "must be prefer-gpu or cpu-only"}
	}
	return nil
}

// SummaryResult is the outcome of one pipeline run.
type SummaryResult struct {
	Summary    string
	ModelID    string
	Device     Device
	Chunks     int
	SecondPass bool
	Duration   time.Duration
}
