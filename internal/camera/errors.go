// Package camera provides the video input devices of the station and the
// continuous-decode stream that reads QR codes from their frames.
package camera

import "errors"

var (
	// ErrNotFound reports a frame without a readable code. It is the normal
	// steady state while nothing is in view.
	ErrNotFound = errors.New("no code found in frame")

	// ErrNoCamera reports that no video input device is available.
	ErrNoCamera = errors.New("no camera found")

	// ErrPermissionDenied reports that camera access was refused.
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrTrackStopped reports an operation on a released track.
	ErrTrackStopped = errors.New("camera track stopped")
)
