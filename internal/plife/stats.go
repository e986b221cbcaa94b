package plife

import "time"

// FrameStats holds the per-phase timings of one completed frame.
type FrameStats struct {
	Frame     int64         `json:"frame"`
	Rebuild   time.Duration `json:"rebuild"`
	Forces    time.Duration `json:"forces"`
	Integrate time.Duration `json:"integrate"`
	Total     time.Duration `json:"total"`
	Recovered int           `json:"recovered"`
}

// LoopStats aggregates frame statistics over a run. The FPS figure is
// an exponentially weighted average of recent frame times, so it
// settles quickly after load changes without jumping every frame.
type LoopStats struct {
	LastFrame      FrameStats `json:"last_frame"`
	Frames         int64      `json:"frames"`
	TotalRecovered int64      `json:"total_recovered"`
	FPS            float64    `json:"fps"`

	ewmaFrameSeconds float64
}

// ewmaAlpha weights the newest frame; ~20 frames of history.
const ewmaAlpha = 0.05

func (s *LoopStats) record(fs FrameStats) {
	s.LastFrame = fs
	s.Frames++
	s.TotalRecovered += int64(fs.Recovered)

	secs := fs.Total.Seconds()
	if secs <= 0 {
		return
	}
	if s.ewmaFrameSeconds == 0 {
		s.ewmaFrameSeconds = secs
	} else {
		s.ewmaFrameSeconds = (1-ewmaAlpha)*s.ewmaFrameSeconds + ewmaAlpha*secs
	}
	s.FPS = 1 / s.ewmaFrameSeconds
}
