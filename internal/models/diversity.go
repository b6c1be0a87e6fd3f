package models

// CrowdDiversity scores the variety of people seen in the video
type CrowdDiversity struct {
	AgeGroupVariation  float64 `json:"age_group_variation"`
	GenderDistribution float64 `json:"gender_distribution"`
	EthnicDiversity    float64 `json:"ethnic_diversity"`
}

// BehavioralDiversity scores the variety of what people are doing
type BehavioralDiversity struct {
	MovementVariation      float64 `json:"movement_variation"`
	ActivityMix            float64 `json:"activity_mix"`
	GroupVsIndividualRatio float64 `json:"group_vs_individual_ratio"`
}

// EnvironmentalDiversity scores the variety of settings
type EnvironmentalDiversity struct {
	LocationTypeVariation float64 `json:"location_type_variation"`
	LightingConditions    float64 `json:"lighting_conditions"`
}

// DiversityScore is the fixed-schema rubric derived from a narrative summary.
// Every value lies in [0.0, 1.0].
type DiversityScore struct {
	CrowdDiversity         CrowdDiversity         `json:"crowd_diversity"`
	BehavioralDiversity    BehavioralDiversity    `json:"behavioral_diversity"`
	EnvironmentalDiversity EnvironmentalDiversity `json:"environmental_diversity"`
	OverallDiversityScore  float64                `json:"overall_diversity_score"`
}

// Clamped returns a copy with every value forced into [0.0, 1.0].
// NaN becomes 0.
func (d DiversityScore) Clamped() DiversityScore {
	return DiversityScore{
		CrowdDiversity: CrowdDiversity{
			AgeGroupVariation:  clampUnit(d.CrowdDiversity.AgeGroupVariation),
			GenderDistribution: clampUnit(d.CrowdDiversity.GenderDistribution),
			EthnicDiversity:    clampUnit(d.CrowdDiversity.EthnicDiversity),
		},
		BehavioralDiversity: BehavioralDiversity{
			MovementVariation:      clampUnit(d.BehavioralDiversity.MovementVariation),
			ActivityMix:            clampUnit(d.BehavioralDiversity.ActivityMix),
			GroupVsIndividualRatio: clampUnit(d.BehavioralDiversity.GroupVsIndividualRatio),
		},
		EnvironmentalDiversity: EnvironmentalDiversity{
			LocationTypeVariation: clampUnit(d.EnvironmentalDiversity.LocationTypeVariation),
			LightingConditions:    clampUnit(d.EnvironmentalDiversity.LightingConditions),
		},
		OverallDiversityScore: clampUnit(d.OverallDiversityScore),
	}
}

// Values lists every leaf in schema order
func (d DiversityScore) Values() []float64 {
	return []float64{
		d.CrowdDiversity.AgeGroupVariation,
		d.CrowdDiversity.GenderDistribution,
		d.CrowdDiversity.EthnicDiversity,
		d.BehavioralDiversity.MovementVariation,
		d.BehavioralDiversity.ActivityMix,
		d.BehavioralDiversity.GroupVsIndividualRatio,
		d.EnvironmentalDiversity.LocationTypeVariation,
		d.EnvironmentalDiversity.LightingConditions,
		d.OverallDiversityScore,
	}
}

func clampUnit(v float64) float64 {
	if v != v || v < 0 { // NaN or negative
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
