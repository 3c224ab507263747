package proctor

import (
	"time"

	"exam-proctor-agent/internal/config"
)

// GazeAction decides what a sustained off-center gaze does.
type GazeAction string

const (
	GazeAdvisory GazeAction = "advisory"
	GazeLock     GazeAction = "lock"
)

// MediaPipe face mesh indices of the outer eye corners.
const (
	LeftEyeOuterCorner  = 33
	RightEyeOuterCorner = 263
)

type Policy struct {
	MaxTabSwitches        int
	MultiFaceWarnFrames   int
	MultiFaceLockFrames   int
	CalibrationFrames     int
	HeadThreshold         float64
	SustainedGaze         time.Duration
	GazeAction            GazeAction
	BlurCountsAsTabSwitch bool
	LeftEyeIndex          int
	RightEyeIndex         int
}

func DefaultPolicy() Policy {
	return Policy{
		MaxTabSwitches:      1,
		MultiFaceWarnFrames: 3,
		MultiFaceLockFrames: 5,
		CalibrationFrames:   30,
		HeadThreshold:       0.05,
		SustainedGaze:       10 * time.Second,
		GazeAction:          GazeAdvisory,
		LeftEyeIndex:        LeftEyeOuterCorner,
		RightEyeIndex:       RightEyeOuterCorner,
	}
}

// PolicyFromConfig overlays configured values on the defaults; zero values keep the default.
func PolicyFromConfig(cfg config.ProctorConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxTabSwitches > 0 {
		p.MaxTabSwitches = cfg.MaxTabSwitches
	}
	if cfg.MultiFaceWarnFrames > 0 {
		p.MultiFaceWarnFrames = cfg.MultiFaceWarnFrames
	}
	if cfg.MultiFaceLockFrames > 0 {
		p.MultiFaceLockFrames = cfg.MultiFaceLockFrames
	}
	if cfg.CalibrationFrames > 0 {
		p.CalibrationFrames = cfg.CalibrationFrames
	}
	if cfg.HeadThreshold > 0 {
		p.HeadThreshold = cfg.HeadThreshold
	}
	if cfg.SustainedGaze > 0 {
		p.SustainedGaze = cfg.SustainedGaze
	}
	if GazeAction(cfg.GazeAction) == GazeLock {
		p.GazeAction = GazeLock
	}
	p.BlurCountsAsTabSwitch = cfg.BlurCountsAsTabSwitch
	return p
}
