package proctor

// Point is a normalized 2D landmark, both axes in [0,1] of the video frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Landmarks is one face's fixed-size ordered landmark set.
type Landmarks []Point

type Direction string

const (
	DirectionCalibrating Direction = "Calibrating"
	DirectionNeutral     Direction = "Neutral"
	DirectionLeft        Direction = "Looking Left"
	DirectionRight       Direction = "Looking Right"
	DirectionUp          Direction = "Looking Up"
	DirectionDown        Direction = "Looking Down"
)

// Suspicious reports whether the direction counts toward a sustained-gaze violation.
// Looking down is expected while writing.
func (d Direction) Suspicious() bool {
	return d == DirectionLeft || d == DirectionRight || d == DirectionUp
}

type Observation struct {
	Direction Direction
	// Changed is true only on the frame where the direction differs from the last one.
	Changed bool
	// Calibrated is true only on the frame that fixed the center.
	Calibrated bool
}

// HeadTracker derives head direction from the eye-corner midpoint relative to a
// center fixed after the calibration window.
type HeadTracker struct {
	calibrationFrames int
	threshold         float64
	leftIndex         int
	rightIndex        int

	frames int
	center *Point
	last   Direction
}

func NewHeadTracker(p Policy) *HeadTracker {
	return &HeadTracker{
		calibrationFrames: p.CalibrationFrames,
		threshold:         p.HeadThreshold,
		leftIndex:         p.LeftEyeIndex,
		rightIndex:        p.RightEyeIndex,
	}
}

// Usable reports whether the landmark set contains both eye corners.
func (h *HeadTracker) Usable(lm Landmarks) bool {
	return h.leftIndex < len(lm) && h.rightIndex < len(lm)
}

func (h *HeadTracker) Observe(lm Landmarks) Observation {
	mid := Point{
		X: (lm[h.leftIndex].X + lm[h.rightIndex].X) / 2,
		Y: (lm[h.leftIndex].Y + lm[h.rightIndex].Y) / 2,
	}

	if h.center == nil {
		h.frames++
		if h.frames < h.calibrationFrames {
			return Observation{Direction: DirectionCalibrating}
		}
		h.center = &mid
		return Observation{Direction: DirectionCalibrating, Calibrated: true}
	}

	dx := mid.X - h.center.X
	dy := mid.Y - h.center.Y

	// The camera image is mirrored: the student's left is the higher X.
	dir := DirectionNeutral
	switch {
	case dx > h.threshold:
		dir = DirectionLeft
	case dx < -h.threshold:
		dir = DirectionRight
	case dy > h.threshold:
		dir = DirectionDown
	case dy < -h.threshold:
		dir = DirectionUp
	}

	obs := Observation{Direction: dir, Changed: dir != h.last}
	h.last = dir
	return obs
}

// Center returns the calibrated center, or nil while calibrating.
func (h *HeadTracker) Center() *Point {
	if h.center == nil {
		return nil
	}
	c := *h.center
	return &c
}

func (h *HeadTracker) Reset() {
	h.frames = 0
	h.center = nil
	h.last = ""
}
