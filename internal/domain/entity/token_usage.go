package entity

// ModelPrice is the per-model dollar cost per token, by token kind.
type ModelPrice struct {
	Input        float64
	Output       float64
	CacheRead    float64
	CacheCreation float64
}

// TokenUsage tracks consumption for the current session plus the rolled-over
// history of prior sessions (each consolidation closes one session).
type TokenUsage struct {
	Input         int64
	Output        int64
	CacheRead     int64
	CacheCreation int64

	// Sessions holds the totals of every session closed by a consolidation.
	Sessions []TokenUsage
}

// Add accumulates a turn's usage into the current session.
func (u *TokenUsage) Add(input, output, cacheRead, cacheCreation int64) {
	u.Input += input
	u.Output += output
	u.CacheRead += cacheRead
	u.CacheCreation += cacheCreation
}

// Total returns the current session's total token count.
func (u TokenUsage) Total() int64 {
	return u.Input + u.Output + u.CacheRead + u.CacheCreation
}

// Cost prices the current session against a per-model price table.
func (u TokenUsage) Cost(price ModelPrice) float64 {
	return float64(u.Input)*price.Input +
		float64(u.Output)*price.Output +
		float64(u.CacheRead)*price.CacheRead +
		float64(u.CacheCreation)*price.CacheCreation
}

// RolloverSession moves the current counts into the session history and
// resets the live counters to zero (spec §4.7 step 3 rebuild).
func (u *TokenUsage) RolloverSession() {
	closed := TokenUsage{
		Input:         u.Input,
		Output:        u.Output,
		CacheRead:     u.CacheRead,
		CacheCreation: u.CacheCreation,
	}
	u.Sessions = append(u.Sessions, closed)
	u.Input, u.Output, u.CacheRead, u.CacheCreation = 0, 0, 0, 0
}
