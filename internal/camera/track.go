package camera

import (
	"image"
	"sync"
)

// Video is the read side of a live track: the most recent decoded frame.
type Video interface {
	// Frame returns the latest frame, or nil before the first one arrives.
	Frame() image.Image
}

// Track is an acquired camera stream. Only its owner may stop it.
type Track struct {
	deviceID string
	release  func(*Track)

	mu     sync.Mutex
	frame  image.Image
	seq    uint64
	notify chan struct{}

	done     chan struct{}
	stopOnce sync.Once
}

func newTrack(deviceID string, release func(*Track)) *Track {
	return &Track{
		deviceID: deviceID,
		release:  release,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// DeviceID returns the id of the device the track was opened on.
func (t *Track) DeviceID() string {
	return t.deviceID
}

// Frame returns the latest frame, or nil before the first one arrives.
func (t *Track) Frame() image.Image {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frame
}

// delivered returns the number of frames delivered so far.
func (t *Track) delivered() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

// Updates signals when a new frame has been delivered. Signals coalesce.
func (t *Track) Updates() <-chan struct{} {
	return t.notify
}

// Done is closed when the track is stopped.
func (t *Track) Done() <-chan struct{} {
	return t.done
}

// Active reports whether the track is still live.
func (t *Track) Active() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Stop releases the track. It is safe to call more than once.
func (t *Track) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		close(t.done)
		t.frame = nil
		t.mu.Unlock()
		if t.release != nil {
			t.release(t)
		}
	})
}

func (t *Track) deliver(img image.Image) {
	t.mu.Lock()
	if !t.Active() {
		t.mu.Unlock()
		return
	}
	t.frame = img
	t.seq++
	t.mu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}
}
