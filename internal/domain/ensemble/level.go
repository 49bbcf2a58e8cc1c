package ensemble

// Level is the coarse confidence band shown next to the ensemble label.
type Level string

const (
	LevelVeryHigh Level = "Very High"
	LevelHigh     Level = "High"
	LevelModerate Level = "Moderate"
	LevelLow      Level = "Low"
)

// Band boundaries; each band is exclusive of its lower bound.
const (
	veryHighAbove = 0.8
	highAbove     = 0.6
	moderateAbove = 0.4
)

// LevelOf bands an ensemble confidence.
func LevelOf(confidence float64) Level {
	switch {
	case confidence > veryHighAbove:
		return LevelVeryHigh
	case confidence > highAbove:
		return LevelHigh
	case confidence > moderateAbove:
		return LevelModerate
	default:
		return LevelLow
	}
}
