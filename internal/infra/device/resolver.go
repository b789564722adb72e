// Package device picks the concrete compute device for a model load.
package device

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"medsum/internal/domain/entity"
)

// Probe reports whether a CUDA device is usable.
type Probe func(ctx context.Context) (bool, error)

// DefaultTTL is how long a probe result is reused.
const DefaultTTL = time.Minute

// Resolver maps a device preference to a device. GPU is chosen only when
// preferred and the probe reports one; every other case falls back to CPU
// without error.
type Resolver struct {
	probe   Probe
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu        sync.Mutex
	available bool
	checkedAt time.Time
	checked   bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTTL sets how long a probe result is cached. Zero probes every time.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithClock sets the clock used for the TTL.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver around probe.
func NewResolver(probe Probe, opts ...Option) *Resolver {
	r := &Resolver{
		probe:   probe,
		ttl:     DefaultTTL,
		timeout: 5 * time.Second,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve implements summarize.DeviceResolver.
func (r *Resolver) Resolve(pref entity.DevicePreference) entity.Device {
	if pref != entity.DevicePreferGPU {
		return entity.DeviceCPU
	}
	if r.cudaAvailable() {
		return entity.DeviceCUDA
	}
	return entity.DeviceCPU
}

func (r *Resolver) cudaAvailable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.checked && r.ttl > 0 && now.Sub(r.checkedAt) < r.ttl {
		return r.available
	}

	available := false
	if r.probe != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		ok, err := r.probe(ctx)
		cancel()
		if err != nil {
			r.logger.Warn("gpu probe failed, using cpu", slog.String("error", err.Error()))
		}
		available = ok && err == nil
	}

	r.available, r.checkedAt, r.checked = available, now, true
	return available
}

// Never is a probe for backends without device control.
func Never(context.Context) (bool, error) { return false, nil }

// Local probes the current host: CUDA_VISIBLE_DEVICES must not hide every
// device, and either an NVIDIA device node or nvidia-smi must be present.
func Local(context.Context) (bool, error) {
	return localProbe(os.LookupEnv, fileExists, exec.LookPath), nil
}

func localProbe(lookupEnv func(string) (string, bool), exists func(string) bool, lookPath func(string) (string, error)) bool {
	if v, set := lookupEnv("CUDA_VISIBLE_DEVICES"); set {
		v = strings.TrimSpace(v)
		if v == "" || v == "-1" || strings.EqualFold(v, "none") || strings.EqualFold(v, "NoDevFiles") {
			return false
		}
	}
	if exists("/dev/nvidia0") {
		return true
	}
	if _, err := lookPath("nvidia-smi"); err == nil {
		return true
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
