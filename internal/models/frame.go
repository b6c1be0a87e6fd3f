package models

// FrameImage is one still image sampled from a video. Index equals the
// sampled second (frames are taken at 1 fps).
type FrameImage struct {
	Index int
	Data  []byte
}

// TimeSeconds returns the frame's offset into the video
func (f FrameImage) TimeSeconds() float64 {
	return float64(f.Index)
}

// FrameAnalysisResult is the outcome of analyzing a single frame. Error is set
// when every attempt for the frame failed; Payload is nil in that case.
type FrameAnalysisResult struct {
	FrameIndex       int            `json:"frame_index"`
	FrameTimeSeconds float64        `json:"frame_time_seconds"`
	Payload          map[string]any `json:"payload,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// Failed reports whether the frame exhausted its retries
func (r FrameAnalysisResult) Failed() bool {
	return r.Error != ""
}
