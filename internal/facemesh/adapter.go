// Package facemesh ingests per-frame results of an external face-landmark model,
// redraws the overlay and forwards face count and primary landmarks to the policy engine.
//
// The host owns the frame loop: the model runs next to the camera and pushes each
// result through Ingest. Results are dropped while the adapter is stopped.
package facemesh

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sync"

	"exam-proctor-agent/internal/proctor"
)

var (
	ErrNotRunning   = errors.New("face landmark adapter is not running")
	ErrInvalidFrame = errors.New("invalid face landmark result")
)

const (
	// MaxDimension bounds the overlay raster on either side.
	MaxDimension = 4096
	// Landmarks are normalized; a small margin covers faces at the frame edge.
	minCoord = -1.0
	maxCoord = 2.0
	// Only the first faces are drawn; the count still reaches the engine.
	maxDrawnFaces = 8
)

// Result is one frame's model output. Width and Height are the video dimensions.
type Result struct {
	Width  int                 `json:"width"`
	Height int                 `json:"height"`
	Faces  []proctor.Landmarks `json:"faces"`
}

// Sink receives the derived signals; *proctor.Engine satisfies it.
type Sink interface {
	RecordFrame(faceCount int, primary proctor.Landmarks) proctor.Direction
	ResetFaceState()
}

var (
	PrimaryFaceColor   = color.RGBA{R: 0x00, G: 0xFF, B: 0x00, A: 0xFF}
	SecondaryFaceColor = color.RGBA{R: 0xFF, G: 0x00, B: 0x00, A: 0xFF}
)

// NoseTip is the landmark the "Face N" label is anchored to.
const NoseTip = 1

type Stats struct {
	Running   bool              `json:"running"`
	Frames    uint64            `json:"frames"`
	Dropped   uint64            `json:"dropped"`
	Skipped   uint64            `json:"skipped"`
	LastFaces int               `json:"last_faces"`
	Direction proctor.Direction `json:"direction,omitempty"`
}

type Adapter struct {
	mu      sync.Mutex
	overlay Overlay
	sink    Sink
	stats   Stats
}

func NewAdapter(overlay Overlay, sink Sink) *Adapter {
	return &Adapter{overlay: overlay, sink: sink}
}

func (a *Adapter) Start() {
	a.mu.Lock()
	a.stats.Running = true
	a.mu.Unlock()
}

func (a *Adapter) Stop() {
	a.mu.Lock()
	a.stats.Running = false
	a.mu.Unlock()
}

// Started and Stopped tie the adapter to the camera lifecycle (capture.Observer).
func (a *Adapter) Started() { a.Start() }
func (a *Adapter) Stopped() { a.Stop() }

// Reset clears calibration and face counters without stopping the adapter.
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.stats = Stats{Running: a.stats.Running}
	a.mu.Unlock()
	if a.sink != nil {
		a.sink.ResetFaceState()
	}
}

func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Ingest applies one model result. Frames without video dimensions are skipped;
// oversized frames and landmarks outside the normalized range are rejected.
func (a *Adapter) Ingest(r Result) (proctor.Direction, error) {
	a.mu.Lock()
	if !a.stats.Running {
		a.stats.Dropped++
		a.mu.Unlock()
		return "", ErrNotRunning
	}
	if r.Width <= 0 || r.Height <= 0 {
		a.stats.Skipped++
		a.mu.Unlock()
		return "", nil
	}
	if err := validate(r); err != nil {
		a.stats.Skipped++
		a.mu.Unlock()
		return "", err
	}
	a.stats.Frames++
	a.stats.LastFaces = len(r.Faces)
	a.draw(r)
	a.mu.Unlock()

	var primary proctor.Landmarks
	if len(r.Faces) > 0 {
		primary = r.Faces[0]
	}

	var dir proctor.Direction
	if a.sink != nil {
		dir = a.sink.RecordFrame(len(r.Faces), primary)
	}

	a.mu.Lock()
	a.stats.Direction = dir
	a.mu.Unlock()
	return dir, nil
}

// draw is called with a.mu held.
func (a *Adapter) draw(r Result) {
	if a.overlay == nil {
		return
	}
	a.overlay.Resize(r.Width, r.Height)
	a.overlay.Clear()
	for i, face := range r.Faces {
		if i == maxDrawnFaces {
			break
		}
		c := PrimaryFaceColor
		if i > 0 {
			c = SecondaryFaceColor
		}
		a.overlay.Polyline(outline(face), c)
		if NoseTip < len(face) {
			a.overlay.Label(face[NoseTip], 10, faceLabel(i), c)
		}
	}
}

func validate(r Result) error {
	if r.Width > MaxDimension || r.Height > MaxDimension {
		return fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrInvalidFrame, r.Width, r.Height, MaxDimension, MaxDimension)
	}
	for i, face := range r.Faces {
		for j, p := range face {
			if !inRange(p.X) || !inRange(p.Y) {
				return fmt.Errorf("%w: face %d landmark %d at (%g, %g)", ErrInvalidFrame, i, j, p.X, p.Y)
			}
		}
	}
	return nil
}

func inRange(v float64) bool {
	return !math.IsNaN(v) && v >= minCoord && v <= maxCoord
}

func faceLabel(i int) string {
	return fmt.Sprintf("Face %d", i+1)
}

// outline returns the closed face-oval polygon, skipping indices the set does not have.
func outline(face proctor.Landmarks) []proctor.Point {
	pts := make([]proctor.Point, 0, len(FaceOval)+1)
	for _, idx := range FaceOval {
		if idx < len(face) {
			pts = append(pts, face[idx])
		}
	}
	if len(pts) > 1 {
		pts = append(pts, pts[0])
	}
	return pts
}
