package imagecache

import (
	"image"
	"time"
)

// frameDurationFloor is the minimum duration assigned to any decoded
// frame, per spec.md §4.2's fetch algorithm ("a floor of 20 ms").
const frameDurationFloor = 20 * time.Millisecond

// gifFrameLength is the cache-wide animation tick interval, per spec.md
// §4.2 ("GIF_FRAME_LENGTH ms (33 ms ~= 30 Hz)").
const gifFrameLength = 33 * time.Millisecond

// Frame is one decoded animation frame (or the sole frame of a static
// image): pixels plus how long it should remain the "current" frame
// before Advance moves on.
type Frame struct {
	Pixels   image.Image
	Duration time.Duration
}

func clampFrameDuration(d time.Duration) time.Duration {
	if d < frameDurationFloor {
		return frameDurationFloor
	}
	return d
}
