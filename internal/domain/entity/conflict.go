package entity

import "time"

// ConflictPhase is the per-conflict state machine position (spec §4.10).
type ConflictPhase string

const (
	ConflictProposed         ConflictPhase = "proposed"
	ConflictDiscussing       ConflictPhase = "discussing"
	ConflictMarkingConsensus ConflictPhase = "marking_consensus"
	ConflictResolved         ConflictPhase = "resolved"
	ConflictAbandoned        ConflictPhase = "abandoned"
)

// ConflictingCall is one side of a write-conflict: the agent, the tool, the
// address, and the parameters it attempted to write.
type ConflictingCall struct {
	AgentID string
	Tool    string
	Address uint64
	Params  map[string]interface{}
}

// ConflictDescriptor is the durable record of one conflict's lifecycle.
type ConflictDescriptor struct {
	Channel  string
	CallA    ConflictingCall
	CallB    ConflictingCall
	Phase    ConflictPhase
	Turn     string // agent id whose turn it currently is
	Deadline time.Time

	// ConsensusPayloads maps agent id -> the exact (post-trim) consensus
	// text it emitted via MARKED_CONSENSUS. Consensus is reached only when
	// every participant has an entry and all entries are byte-identical.
	ConsensusPayloads map[string]string

	// Participants is the fixed turn order for this conflict's deliberation.
	Participants []string
}

// AllMarked reports whether every participant has marked consensus.
func (c *ConflictDescriptor) AllMarked() bool {
	for _, p := range c.Participants {
		if _, ok := c.ConsensusPayloads[p]; !ok {
			return false
		}
	}
	return true
}

// ConsensusPayload returns the shared payload if every participant marked
// the identical (post-trim) text, and whether consensus actually holds.
func (c *ConflictDescriptor) ConsensusPayload() (string, bool) {
	if !c.AllMarked() || len(c.Participants) == 0 {
		return "", false
	}
	var first string
	for i, p := range c.Participants {
		v := c.ConsensusPayloads[p]
		if i == 0 {
			first = v
			continue
		}
		if v != first {
			return "", false
		}
	}
	return first, true
}
