package recurrence

// ShouldContinue reports whether a series that already has count occurrences
// (the original included) may generate another one. count must come from the
// store at call time.
func ShouldContinue(rule Rule, count int) bool {
	if rule.EndAfterOccurrences <= 0 {
		return true
	}
	return count < rule.EndAfterOccurrences
}
