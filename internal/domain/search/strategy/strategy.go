// Package strategy names the ranking strategies.
package strategy

// Strategy is a ranking strategy name.
type Strategy string

// Ranking strategies. Auto lets the orchestrator pick from the components that ran.
const (
	Auto   Strategy = ""
	Basic  Strategy = "basic"
	Vector Strategy = "vector"
	// Hybrid fuses filter matches with similarity scores.
	Hybrid Strategy = "hybrid"
)

// IsValid checks if the strategy is one of the supported values.
func (s Strategy) IsValid() bool {
	return s == Auto || s == Basic || s == Vector || s == Hybrid
}

// Resolve picks the strategy that can actually run given which signals are available.
// hybrid needs both signals, vector needs the similarity signal.
func Resolve(requested Strategy, filterRan, vectorRan bool) Strategy {
	switch requested {
	case Basic:
		return Basic
	case Vector:
		if !vectorRan {
			return Basic
		}
		return Vector
	case Hybrid:
		if !vectorRan {
			return Basic
		}
		if !filterRan {
			return Vector
		}
		return Hybrid
	default:
		switch {
		case filterRan && vectorRan:
			return Hybrid
		case vectorRan:
			return Vector
		default:
			return Basic
		}
	}
}
