package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 1, cfg.Proctor.MaxTabSwitches)
	assert.Equal(t, 3, cfg.Proctor.MultiFaceWarnFrames)
	assert.Equal(t, 5, cfg.Proctor.MultiFaceLockFrames)
	assert.Equal(t, 30, cfg.Proctor.CalibrationFrames)
	assert.InDelta(t, 0.05, cfg.Proctor.HeadThreshold, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.Proctor.SustainedGaze)
	assert.Equal(t, "advisory", cfg.Proctor.GazeAction)
	assert.Equal(t, time.Second, cfg.Proctor.TimerTick)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROCTOR_MAX_TAB_SWITCHES", "3")
	t.Setenv("PROCTOR_HEAD_THRESHOLD", "0.08")
	t.Setenv("PROCTOR_SUSTAINED_GAZE", "4s")
	t.Setenv("PROCTOR_BLUR_COUNTS_AS_TAB_SWITCH", "true")
	t.Setenv("API_BASE_URL", "http://exam.internal")
	t.Setenv("PROCTOR_CALIBRATION_FRAMES", "not-a-number")

	cfg := Load()

	assert.Equal(t, 3, cfg.Proctor.MaxTabSwitches)
	assert.InDelta(t, 0.08, cfg.Proctor.HeadThreshold, 1e-9)
	assert.Equal(t, 4*time.Second, cfg.Proctor.SustainedGaze)
	assert.True(t, cfg.Proctor.BlurCountsAsTabSwitch)
	assert.Equal(t, "http://exam.internal", cfg.API.BaseURL)
	assert.Equal(t, 30, cfg.Proctor.CalibrationFrames)
}
