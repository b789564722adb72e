package summarize

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"medsum/internal/domain/entity"
)

// Handle is a loaded model bound to a resolved device.
// Handles live for the lifetime of the ModelCache that created them.
type Handle struct {
	ModelID  string
	Device   entity.Device
	Model    Model
	LoadedAt time.Time
}

// ModelCache loads models lazily and keeps one Handle per (model identifier, device).
// Concurrent requests for the same uncached key share a single load.
// The credential is used for loading only and is not part of the key.
type ModelCache struct {
	loader   Loader
	resolver DeviceResolver

	mu      sync.Locker
	handles map[string]*Handle
	loads   singleflight.Group

	now     func() time.Time
	metrics MetricsRecorder
	logger  *slog.Logger
}

// CacheOption configures a ModelCache.
type CacheOption func(*ModelCache)

// WithClock sets the clock used to stamp Handle.LoadedAt and time loads.
func WithClock(now func() time.Time) CacheOption {
	return func(c *ModelCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocker sets the lock guarding the handle map.
func WithLocker(l sync.Locker) CacheOption {
	return func(c *ModelCache) {
		if l != nil {
			c.mu = l
		}
	}
}

// WithCacheMetrics sets the metrics recorder.
func WithCacheMetrics(m MetricsRecorder) CacheOption {
	return func(c *ModelCache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *ModelCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewModelCache creates an empty cache backed by loader and resolver.
func NewModelCache(loader Loader, resolver DeviceResolver, opts ...CacheOption) *ModelCache {
	c := &ModelCache{
		loader:   loader,
		resolver: resolver,
		mu:       &sync.Mutex{},
		handles:  make(map[string]*Handle),
		now:      time.Now,
		metrics:  noopMetrics{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrLoad returns the cached handle for modelID on the device resolved from pref,
// loading it on a miss. Load failures are returned as *ModelLoadError and are not cached.
func (c *ModelCache) GetOrLoad(
	ctx context.Context,
	modelID string,
	pref entity.DevicePreference,
	credential string,
) (*Handle, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, &ModelLoadError{Err: ErrEmptyModelID}
	}
	if !pref.Valid() {
		return nil, &ModelLoadError{ModelID: modelID, Err: entity.ErrInvalidDevice}
	}

	device := c.resolver.Resolve(pref)
	key := cacheKey(modelID, device)

	if h, ok := c.lookup(key); ok {
		c.metrics.RecordCacheHit()
		c.logger.DebugContext(ctx, "model cache hit",
			slog.String("model_id", modelID),
			slog.String("device", string(device)))
		return h, nil
	}

	v, err, shared := c.loads.Do(key, func() (any, error) {
		// A concurrent flight may have stored the handle between lookup and Do.
		if h, ok := c.lookup(key); ok {
			return h, nil
		}
		return c.load(ctx, key, LoadRequest{ModelID: modelID, Device: device, Credential: credential})
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.metrics.RecordCacheHit()
	}

	return v.(*Handle), nil
}

func (c *ModelCache) load(ctx context.Context, key string, req LoadRequest) (*Handle, error) {
	c.metrics.RecordCacheMiss()
	c.logger.InfoContext(ctx, "loading model",
		slog.String("model_id", req.ModelID),
		slog.String("device", string(req.Device)),
		slog.Bool("credential", req.Credential != ""))

	start := c.now()
	model, err := c.loader.Load(ctx, req)
	duration := c.now().Sub(start)
	c.metrics.RecordModelLoad(duration, err == nil)

	if err != nil {
		c.logger.ErrorContext(ctx, "model load failed",
			slog.String("model_id", req.ModelID),
			slog.String("device", string(req.Device)),
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return nil, &ModelLoadError{ModelID: req.ModelID, Device: req.Device, Err: err}
	}

	h := &Handle{
		ModelID:  req.ModelID,
		Device:   req.Device,
		Model:    model,
		LoadedAt: c.now(),
	}

	c.mu.Lock()
	c.handles[key] = h
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "model loaded",
		slog.String("model_id", req.ModelID),
		slog.String("device", string(req.Device)),
		slog.Duration("duration", duration))

	return h, nil
}

func (c *ModelCache) lookup(key string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[key]
	return h, ok
}

// Len returns the number of loaded handles.
func (c *ModelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Keys returns the sorted cache keys ("<model>|<device>").
func (c *ModelCache) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.handles))
	for k := range c.handles {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	sort.Strings(keys)
	return keys
}

func cacheKey(modelID string, device entity.Device) string {
	return modelID + "|" + string(device)
}
