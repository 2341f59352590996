package scoring

// Likelihood is a qualitative rendering of an acceptance probability.
type Likelihood string

const (
	LikelihoodLikely   Likelihood = "likely"
	LikelihoodPossible Likelihood = "possible"
	LikelihoodUnlikely Likelihood = "unlikely"
)

// Label thresholds.
const (
	likelyThreshold   = 0.7
	possibleThreshold = 0.4
)

// LikelihoodOf maps a probability to its label.
func LikelihoodOf(p float64) Likelihood {
	switch {
	case p >= likelyThreshold:
		return LikelihoodLikely
	case p >= possibleThreshold:
		return LikelihoodPossible
	default:
		return LikelihoodUnlikely
	}
}
