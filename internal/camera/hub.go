package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // frame decoding
	_ "image/png"  // frame decoding
	"sync"

	"go.uber.org/zap"
)

// DeviceInfo describes a video input device. Streams counts the tracks
// currently open on it.
type DeviceInfo struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Streams int    `json:"streams"`
}

// Source enumerates video input devices and opens tracks on them.
type Source interface {
	// Devices lists the available video input devices.
	Devices(ctx context.Context) ([]DeviceInfo, error)

	// Open acquires a track on the device. An empty id selects the first device.
	Open(ctx context.Context, deviceID string) (*Track, error)
}

type device struct {
	info   DeviceInfo
	denied bool
	tracks map[*Track]struct{}
}

func (d *device) snapshot() DeviceInfo {
	info := d.info
	info.Streams = len(d.tracks)
	return info
}

// Hub is a Source whose frames are pushed by the operator UI, one device
// per browser camera.
type Hub struct {
	mu      sync.Mutex
	devices map[string]*device
	order   []string
	logger  *zap.Logger
}

// NewHub creates an empty device hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		devices: make(map[string]*device),
		logger:  logger,
	}
}

// Register adds a device, or re-grants access to a revoked one.
func (h *Hub) Register(id, label string) DeviceInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	if d, ok := h.devices[id]; ok {
		d.denied = false
		if label != "" {
			d.info.Label = label
		}
		return d.snapshot()
	}

	if label == "" {
		label = fmt.Sprintf("Camera %d", len(h.order)+1)
	}
	d := &device{
		info:   DeviceInfo{ID: id, Label: label},
		tracks: make(map[*Track]struct{}),
	}
	h.devices[id] = d
	h.order = append(h.order, id)

	h.logger.Info("Registered camera", zap.String("device_id", id), zap.String("label", label))
	return d.snapshot()
}

// Revoke marks the device as denied and stops its tracks.
func (h *Hub) Revoke(id string) error {
	h.mu.Lock()
	d, ok := h.devices[id]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("device %q: %w", id, ErrNoCamera)
	}
	d.denied = true
	tracks := make([]*Track, 0, len(d.tracks))
	for t := range d.tracks {
		tracks = append(tracks, t)
	}
	h.mu.Unlock()

	for _, t := range tracks {
		t.Stop()
	}

	h.logger.Info("Revoked camera", zap.String("device_id", id), zap.Int("stopped_tracks", len(tracks)))
	return nil
}

// Devices lists the registered devices in registration order.
func (h *Hub) Devices(ctx context.Context) ([]DeviceInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]DeviceInfo, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.devices[id].snapshot())
	}
	return out, nil
}

// Open acquires a track on the device.
func (h *Hub) Open(ctx context.Context, deviceID string) (*Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if deviceID == "" {
		if len(h.order) == 0 {
			return nil, ErrNoCamera
		}
		deviceID = h.order[0]
	}

	d, ok := h.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %q: %w", deviceID, ErrNoCamera)
	}
	if d.denied {
		return nil, fmt.Errorf("device %q: %w", deviceID, ErrPermissionDenied)
	}

	t := newTrack(deviceID, h.release)
	d.tracks[t] = struct{}{}
	return t, nil
}

// Push delivers a frame to every open track of the device.
func (h *Hub) Push(deviceID string, img image.Image) error {
	h.mu.Lock()
	d, ok := h.devices[deviceID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("device %q: %w", deviceID, ErrNoCamera)
	}
	tracks := make([]*Track, 0, len(d.tracks))
	for t := range d.tracks {
		tracks = append(tracks, t)
	}
	h.mu.Unlock()

	for _, t := range tracks {
		t.deliver(img)
	}
	return nil
}

// PushEncoded decodes a JPEG or PNG frame and pushes it.
func (h *Hub) PushEncoded(deviceID string, data []byte) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	return h.Push(deviceID, img)
}

func (h *Hub) release(t *Track) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if d, ok := h.devices[t.deviceID]; ok {
		delete(d.tracks, t)
	}
}
