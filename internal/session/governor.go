package session

// Governor decides whether another attempt may begin.
type Governor struct {
	MaxAttempts *int // nil = unlimited
}

// CanRetake is true only after a failed attempt, and only while the cap
// (if any) has not been reached. attemptsTaken is the number of the attempt
// just completed.
func (g Governor) CanRetake(passed bool, attemptsTaken int) bool {
	if passed {
		return false
	}
	return g.MaxAttempts == nil || attemptsTaken < *g.MaxAttempts
}

// CanStart reports whether a fresh session may open given the ledger's
// highest recorded attempt number.
func (g Governor) CanStart(priorMax int) bool {
	return g.MaxAttempts == nil || priorMax < *g.MaxAttempts
}

// AttemptsLeft returns -1 when attempts are unlimited.
func (g Governor) AttemptsLeft(attemptsTaken int) int {
	if g.MaxAttempts == nil {
		return -1
	}
	if left := *g.MaxAttempts - attemptsTaken; left > 0 {
		return left
	}
	return 0
}

// NextAttempt numbers are never reused.
func NextAttempt(previous int) int { return previous + 1 }
