package camera

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DecodeCallback receives every decode attempt of a stream: the decoded
// text, or an error (wrapping ErrNotFound for frames without a code).
type DecodeCallback func(text string, err error)

// Reader runs continuous-decode streams against camera devices.
type Reader struct {
	source     Source
	newDecoder func() Decoder
	logger     *zap.Logger
}

// NewReader creates a reader. newDecoder is called once per stream since
// decoders are not safe for concurrent use.
func NewReader(source Source, newDecoder func() Decoder, logger *zap.Logger) *Reader {
	return &Reader{
		source:     source,
		newDecoder: newDecoder,
		logger:     logger,
	}
}

// ListVideoInputDevices enumerates the available cameras.
func (r *Reader) ListVideoInputDevices(ctx context.Context) ([]DeviceInfo, error) {
	devices, err := r.source.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate cameras: %w", err)
	}
	return devices, nil
}

// DecodeFromDevice opens the device and decodes every new frame until the
// returned controls are stopped. ctx bounds the acquisition only; the
// stream lives until Stop.
func (r *Reader) DecodeFromDevice(ctx context.Context, deviceID string, cb DecodeCallback) (*Controls, error) {
	track, err := r.source.Open(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	c := &Controls{
		track:  track,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go r.run(streamCtx, c, r.newDecoder(), cb)

	r.logger.Debug("Decode stream started", zap.String("device_id", track.DeviceID()))
	return c, nil
}

func (r *Reader) run(ctx context.Context, c *Controls, decoder Decoder, cb DecodeCallback) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.track.Done():
			return
		case <-c.track.Updates():
		}

		img := c.track.Frame()
		if img == nil {
			continue
		}

		text, err := decoder.Decode(img)
		if ctx.Err() != nil || !c.track.Active() {
			return
		}
		cb(text, err)
	}
}

// Controls is the stop handle of a decode stream.
type Controls struct {
	track  *Track
	cancel context.CancelFunc
	done   chan struct{}
}

// Video returns the live track the stream decodes from.
func (c *Controls) Video() Video {
	return c.track
}

// Track returns the underlying camera track.
func (c *Controls) Track() *Track {
	return c.track
}

// Stop ends the stream and releases the camera track. It does not wait for
// an in-progress callback, so it may be called from inside one.
func (c *Controls) Stop() {
	c.cancel()
	c.track.Stop()
}

// Done is closed once the stream goroutine has exited.
func (c *Controls) Done() <-chan struct{} {
	return c.done
}
