package models

import "time"

// SummaryReport holds the narrative generated from the frame insights
type SummaryReport struct {
	Summary   string    `json:"summary,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// AnalysisReport is the terminal artifact of one pipeline run
type AnalysisReport struct {
	ID             string                `json:"id"`
	Success        bool                  `json:"success"`
	VideoURL       string                `json:"video_url"`
	TotalFrames    int                   `json:"total_frames"`
	FrameAnalyses  []FrameAnalysisResult `json:"frame_analyses"`
	SummaryReport  *SummaryReport        `json:"summary_report,omitempty"`
	DiversityScore *DiversityScore       `json:"diversity_score,omitempty"`
	Error          string                `json:"error,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// FailedFrames counts the frames whose analysis never succeeded
func (r *AnalysisReport) FailedFrames() int {
	failed := 0
	for _, fa := range r.FrameAnalyses {
		if fa.Failed() {
			failed++
		}
	}
	return failed
}

// DigestReport groups the reports produced by one scheduled run for email delivery
type DigestReport struct {
	Date    time.Time         `json:"date"`
	Reports []*AnalysisReport `json:"reports"`
	Failed  int               `json:"failed"`
}
