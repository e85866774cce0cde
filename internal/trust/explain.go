package trust

import "fmt"

// Level labels are fixed-threshold discretizations of the numeric scores.

func trustLevel(score int) string {
	switch {
	case score >= 90:
		return "Very High"
	case score >= 75:
		return "High"
	case score >= 55:
		return "Medium"
	case score >= 35:
		return "Low"
	default:
		return "Very Low"
	}
}

func behaviorLevel(score int) string {
	switch {
	case score >= 85:
		return "Excellent"
	case score >= 70:
		return "Strong"
	case score >= 50:
		return "Stable"
	case score >= 35:
		return "At Risk"
	default:
		return "Poor"
	}
}

func signalLevel(score int) string {
	switch {
	case score >= 80:
		return "High"
	case score >= 55:
		return "Medium"
	default:
		return "Low"
	}
}

// trustExplanation templates a one-sentence narrative from the 30-day
// counts, with the level label prefixed and the behavior influence
// appended when nonzero.
func trustExplanation(level string, b Breakdown, influence int) string {
	var body string
	switch {
	case b.Positive30d > 0 && b.Negative30d == 0:
		body = fmt.Sprintf("%d positive events and no negative events in 30 days.", b.Positive30d)
	case b.Positive30d == 0 && b.Negative30d == 0:
		body = "No events reported in 30 days; score reflects older history."
	default:
		body = fmt.Sprintf("%d positive and %d negative events in 30 days.", b.Positive30d, b.Negative30d)
	}
	s := fmt.Sprintf("%s trust. %s", level, body)
	if influence != 0 {
		s += fmt.Sprintf(" Behavior adjustment: %+d.", influence)
	}
	return s
}

func behaviorExplanation(level string, b BehaviorBreakdown) string {
	if b.OnTimeRate30d != nil {
		return fmt.Sprintf("%s reliability. %d%% on-time completion in 30 days.", level, *b.OnTimeRate30d)
	}
	return fmt.Sprintf("%s reliability. No deadline-tracked tasks in 30 days.", level)
}
