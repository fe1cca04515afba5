package capture

import (
	"fmt"
	"log"
	"time"
)

// Replayer plays a captured Session back at its original pacing (or a
// speed-scaled version of it), for feeding recorded traffic back through
// the dispatch loop without a live bus.
type Replayer struct {
	Session      *Session
	Speed        float64 // replay speed multiplier (1.0 = real-time)
	CurrentFrame int
}

// FrameHandler receives one replayed frame.
type FrameHandler func(frame Frame)

// NewReplayer wraps a loaded session for playback.
func NewReplayer(session *Session) *Replayer {
	return &Replayer{
		Session:      session,
		Speed:        1.0,
		CurrentFrame: 0,
	}
}

// Play replays every frame in the session, pacing delivery to match the
// original inter-frame timing (divided by Speed), and blocks until done.
func (r *Replayer) Play(handler FrameHandler) error {
	if len(r.Session.Frames) == 0 {
		return fmt.Errorf("no frames to replay")
	}

	startTime := time.Now()
	sessionStart := r.Session.Frames[0].Timestamp

	for i, frame := range r.Session.Frames {
		r.CurrentFrame = i

		targetDelay := frame.Timestamp.Sub(sessionStart)
		actualDelay := time.Since(startTime)
		adjustedDelay := time.Duration(float64(targetDelay) / r.Speed)

		if actualDelay < adjustedDelay {
			time.Sleep(adjustedDelay - actualDelay)
		}

		handler(frame)
	}

	return nil
}

func (r *Replayer) Pause() {
}

func (r *Replayer) Resume() {
}

// SetSpeed sets the playback speed multiplier, falling back to real-time
// for an invalid value.
func (r *Replayer) SetSpeed(speed float64) {
	if speed <= 0 {
		log.Printf("capture: invalid replay speed %v, using 1.0", speed)
		r.Speed = 1.0
		return
	}
	r.Speed = speed
}

// JumpTo advances CurrentFrame to the first frame at or after timestamp.
func (r *Replayer) JumpTo(timestamp time.Time) error {
	for i, frame := range r.Session.Frames {
		if !frame.Timestamp.Before(timestamp) {
			r.CurrentFrame = i
			return nil
		}
	}
	return fmt.Errorf("timestamp %s not found in session", timestamp)
}

// GetProgress reports playback progress as a 0-1 fraction of frames played.
func (r *Replayer) GetProgress() float64 {
	if len(r.Session.Frames) == 0 {
		return 0
	}
	return float64(r.CurrentFrame) / float64(len(r.Session.Frames))
}
