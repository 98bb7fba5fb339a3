package conflict

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shells-above/swarmre/internal/domain/entity"
)

// ChannelName derives the deterministic conflict-channel name both
// participants converge on without a broker (spec §4.10).
func ChannelName(address uint64, class CollisionClass) string {
	return fmt.Sprintf("#conflict_%x_%s", address, class)
}

// DefaultDeadline is how long a conflict may sit in Discussing/MarkingConsensus
// before it is abandoned.
const DefaultDeadline = 5 * time.Minute

// Coordinator drives the per-conflict state machine described in spec §4.10.
// It owns no network I/O: callers drive frame send/receive through the
// coordination client and feed events in via its methods.
type Coordinator struct {
	mu        sync.Mutex
	conflicts map[string]*entity.ConflictDescriptor
	deadline  time.Duration
}

// NewCoordinator creates a Coordinator using deadline for new conflicts; a
// zero deadline defaults to DefaultDeadline.
func NewCoordinator(deadline time.Duration) *Coordinator {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Coordinator{conflicts: make(map[string]*entity.ConflictDescriptor), deadline: deadline}
}

// Propose opens a new conflict descriptor for a just-detected write collision
// and returns that descriptor (its Channel is the conflict channel name) and
// the CONFLICT_FORCE frame the initiator must broadcast on the common channel
// to pull the other participant in.
func (c *Coordinator) Propose(class CollisionClass, initiator entity.ConflictingCall, priorWriters []entity.ToolCallRecord) (*entity.ConflictDescriptor, entity.CoordinationFrame) {
	channel := ChannelName(initiator.Address, class)

	participants := map[string]struct{}{initiator.AgentID: {}}
	for _, w := range priorWriters {
		participants[w.AgentID] = struct{}{}
	}
	ordered := make([]string, 0, len(participants))
	for p := range participants {
		ordered = append(ordered, p)
	}
	sort.Strings(ordered)

	var priorCall entity.ConflictingCall
	if len(priorWriters) > 0 {
		w := priorWriters[0]
		priorCall = entity.ConflictingCall{AgentID: w.AgentID, Tool: w.ToolName, Address: w.Address, Params: w.Params}
	}

	descriptor := &entity.ConflictDescriptor{
		Channel:           channel,
		CallA:             priorCall,
		CallB:             initiator,
		Phase:             entity.ConflictDiscussing,
		Turn:              ordered[0],
		Deadline:          time.Now().Add(c.deadline),
		ConsensusPayloads: make(map[string]string),
		Participants:      ordered,
	}

	c.mu.Lock()
	c.conflicts[channel] = descriptor
	c.mu.Unlock()

	var target string
	for _, p := range ordered {
		if p != initiator.AgentID {
			target = p
			break
		}
	}
	force := entity.CoordinationFrame{Kind: entity.FrameConflictForce, TargetAgent: target, Channel: channel}
	return descriptor, force
}

// Get returns the live descriptor for channel, if any.
func (c *Coordinator) Get(channel string) (*entity.ConflictDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.conflicts[channel]
	return d, ok
}

// AdvanceTurn records that sender spoke on channel and passes the turn to
// the next participant in cyclic order, skipping any participant already
// waiting for consensus completion (one that has marked consensus). If every
// participant is waiting, the turn is left where it is.
func (c *Coordinator) AdvanceTurn(channel, sender string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.conflicts[channel]
	if !ok {
		return entity.ErrConflictNotFound
	}
	if d.Phase == entity.ConflictResolved || d.Phase == entity.ConflictAbandoned {
		return entity.ErrConflictAlreadyClosed
	}

	idx := indexOf(d.Participants, sender)
	if idx < 0 || len(d.Participants) == 0 {
		return nil
	}
	n := len(d.Participants)
	for step := 1; step <= n; step++ {
		next := d.Participants[(idx+step)%n]
		if _, waiting := d.ConsensusPayloads[next]; !waiting {
			d.Turn = next
			return nil
		}
	}
	return nil
}

// MarkConsensus records agentID's MARKED_CONSENSUS payload. When every
// participant has marked and all payloads are byte-identical (post-trim),
// the conflict transitions to MarkingConsensus→Resolved and the agreed
// payload is returned for re-execution of the original write. If payloads
// diverge once all have marked, every mark is cleared and discussion
// resumes.
func (c *Coordinator) MarkConsensus(channel, agentID, payload string) (resolved bool, agreedPayload string, err error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return false, "", entity.ErrConsensusPayloadEmpty
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.conflicts[channel]
	if !ok {
		return false, "", entity.ErrConflictNotFound
	}
	if d.Phase == entity.ConflictResolved || d.Phase == entity.ConflictAbandoned {
		return false, "", entity.ErrConflictAlreadyClosed
	}

	d.ConsensusPayloads[agentID] = payload
	d.Phase = entity.ConflictMarkingConsensus

	if agreed, ok := d.ConsensusPayload(); ok {
		d.Phase = entity.ConflictResolved
		return true, agreed, nil
	}
	if d.AllMarked() {
		// Every agent marked, but payloads diverge: clear and resume discussion.
		d.ConsensusPayloads = make(map[string]string)
		d.Phase = entity.ConflictDiscussing
	}
	return false, "", nil
}

// CheckTimeout abandons channel if its deadline has passed and it is not
// already closed. Returns true if it was just abandoned.
func (c *Coordinator) CheckTimeout(channel string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.conflicts[channel]
	if !ok || d.Phase == entity.ConflictResolved || d.Phase == entity.ConflictAbandoned {
		return false
	}
	if now.Before(d.Deadline) {
		return false
	}
	d.Phase = entity.ConflictAbandoned
	return true
}

// SweepTimeouts abandons every open conflict past its deadline as of now,
// returning their channel names.
func (c *Coordinator) SweepTimeouts(now time.Time) []string {
	c.mu.Lock()
	channels := make([]string, 0, len(c.conflicts))
	for ch, d := range c.conflicts {
		if d.Phase != entity.ConflictResolved && d.Phase != entity.ConflictAbandoned && !now.Before(d.Deadline) {
			channels = append(channels, ch)
		}
	}
	c.mu.Unlock()

	for _, ch := range channels {
		c.CheckTimeout(ch, now)
	}
	return channels
}

// Close removes a resolved or abandoned conflict's descriptor from the live
// table (participants have left the channel).
func (c *Coordinator) Close(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conflicts, channel)
}

func indexOf(s []string, v string) int {
	for i, e := range s {
		if e == v {
			return i
		}
	}
	return -1
}
