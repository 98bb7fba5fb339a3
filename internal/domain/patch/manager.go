// Package patch implements the Patch Manager (spec §4.2): verified,
// indexed, revertible byte and assembly edits to the host's code view.
// Grounded on original_source/patching/patch_manager.h — the Go interface
// mirrors its apply_byte_patch/apply_assembly_patch/apply_segment_injection/
// revert_patch/revert_all/list_patches/get_patch_info/statistics surface.
package patch

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shells-above/swarmre/internal/domain/entity"
	"go.uber.org/zap"
)

// Statistics summarizes the current patch table.
type Statistics struct {
	TotalPatches     int
	BytePatches      int
	AssemblyPatches  int
	SegmentInjections int
}

// Manager is the sole writer of code bytes. All mutating operations are
// serialized internally; a byte/assembly patch is atomic with respect to
// concurrent listing (spec §4.2 Thread discipline).
type Manager struct {
	mu        sync.Mutex
	host      Host
	assembler Assembler
	journal   Journal
	logger    *zap.Logger

	entries []*entity.PatchEntry // ordered by application time, for revert_all
	byAddr  map[uint64]*entity.PatchEntry
}

// NewManager creates a Patch Manager bound to a host and an assembler. journal
// may be nil to disable durable mirroring.
func NewManager(host Host, assembler Assembler, journal Journal, logger *zap.Logger) *Manager {
	return &Manager{
		host:      host,
		assembler: assembler,
		journal:   journal,
		logger:    logger,
		byAddr:    make(map[uint64]*entity.PatchEntry),
	}
}

func (m *Manager) mirrorApplied(e *entity.PatchEntry) {
	if m.journal == nil {
		return
	}
	if err := m.journal.RecordApplied(*e); err != nil {
		m.logger.Warn("patch journal mirror failed", zap.Error(err), zap.Uint64("address", e.Address))
	}
}

func (m *Manager) mirrorReverted(address uint64) {
	if m.journal == nil {
		return
	}
	if err := m.journal.RecordReverted(address); err != nil {
		m.logger.Warn("patch journal revert mirror failed", zap.Error(err), zap.Uint64("address", address))
	}
}

var whitespaceRE = regexp.MustCompile(`\s+`)

func normalizeAsm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return whitespaceRE.ReplaceAllString(s, " ")
}

// ApplyBytePatch verifies then applies a raw byte replacement at address.
// Never writes unless every precondition holds.
func (m *Manager) ApplyBytePatch(address uint64, originalHex, newHex, description string) (*entity.PatchEntry, error) {
	if description == "" {
		return nil, entity.ErrPatchDescriptionEmpty
	}
	original, err := hex.DecodeString(strings.ReplaceAll(originalHex, " ", ""))
	if err != nil {
		return nil, fmt.Errorf("decode original hex: %w", err)
	}
	patched, err := hex.DecodeString(strings.ReplaceAll(newHex, " ", ""))
	if err != nil {
		return nil, fmt.Errorf("decode new hex: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.host.IsInstructionBoundary(address) {
		return nil, entity.ErrPatchInstructionBounds
	}

	current, err := m.host.ReadBytes(address, len(original))
	if err != nil {
		return nil, fmt.Errorf("read current bytes: %w", err)
	}
	if !bytes.Equal(current, original) {
		return nil, fmt.Errorf("%w: at 0x%x expected %x, found %x",
			entity.ErrPatchBytesMismatch, address, original, current)
	}

	if err := m.host.WriteBytes(address, patched); err != nil {
		return nil, fmt.Errorf("write patched bytes: %w", err)
	}

	entry := &entity.PatchEntry{
		Address:       address,
		OriginalBytes: original,
		PatchedBytes:  patched,
		Description:   description,
		Timestamp:     time.Now(),
		Kind:          entity.PatchKindByte,
	}
	m.record(entry)
	m.logger.Info("byte patch applied", zap.Uint64("address", address), zap.String("description", description))
	return entry, nil
}

// ApplyAssemblyPatch assembles newAsm for the host's architecture, verifies
// the current disassembly matches originalAsm after normalization, pads
// with architecture NOPs when shorter, and fails if longer than the
// replaced region.
func (m *Manager) ApplyAssemblyPatch(address uint64, originalAsm, newAsm, description string) (*entity.PatchEntry, error) {
	if description == "" {
		return nil, entity.ErrPatchDescriptionEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.host.IsInstructionBoundary(address) {
		return nil, entity.ErrPatchInstructionBounds
	}

	arch := m.host.Architecture()
	assembled, err := m.assembler.Assemble(arch, address, newAsm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrPatchAssembleFailed, err)
	}

	regionLen, err := m.host.InstructionLength(address, len(assembled))
	if err != nil {
		return nil, fmt.Errorf("determine instruction boundary: %w", err)
	}

	currentAsm, err := m.host.Disassemble(address, regionLen)
	if err != nil {
		return nil, fmt.Errorf("disassemble current region: %w", err)
	}
	if normalizeAsm(currentAsm) != normalizeAsm(originalAsm) {
		return nil, fmt.Errorf("%w: expected %q, found %q", entity.ErrPatchBytesMismatch, originalAsm, currentAsm)
	}

	if len(assembled) > regionLen {
		return nil, fmt.Errorf("%w: assembled %d bytes into a %d byte region", entity.ErrPatchTooLong, len(assembled), regionLen)
	}

	original, err := m.host.ReadBytes(address, regionLen)
	if err != nil {
		return nil, fmt.Errorf("read original bytes: %w", err)
	}

	padded := make([]byte, regionLen)
	copy(padded, assembled)
	if len(assembled) < regionLen {
		nop := m.assembler.NOP(arch)
		for i := len(assembled); i < regionLen; i += len(nop) {
			copy(padded[i:], nop)
		}
	}

	if err := m.host.WriteBytes(address, padded); err != nil {
		return nil, fmt.Errorf("write patched bytes: %w", err)
	}

	entry := &entity.PatchEntry{
		Address:       address,
		OriginalBytes: original,
		PatchedBytes:  padded,
		Description:   description,
		Timestamp:     time.Now(),
		Kind:          entity.PatchKindAssembly,
		OriginalAsm:   originalAsm,
		PatchedAsm:    newAsm,
	}
	m.record(entry)
	m.logger.Info("assembly patch applied", zap.Uint64("address", address), zap.String("description", description))
	return entry, nil
}

// ApplySegmentInjection creates a new code region in the host and, if a
// binary path is known, persists the segment into the on-disk file.
func (m *Manager) ApplySegmentInjection(size uint64, code []byte, name, description string) (*entity.PatchEntry, error) {
	if description == "" {
		return nil, entity.ErrPatchDescriptionEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	base, err := m.host.CreateSegment(name, size, code)
	if err != nil {
		return nil, fmt.Errorf("create segment: %w", err)
	}

	if path := m.host.BinaryPath(); path != "" {
		if err := m.host.AddSegmentToFile(path, name, size, code); err != nil {
			return nil, fmt.Errorf("persist segment to file: %w", err)
		}
	}

	entry := &entity.PatchEntry{
		Address:      base,
		PatchedBytes: code,
		Description:  description,
		Timestamp:    time.Now(),
		Kind:         entity.PatchKindSegmentInjection,
		SegmentName:  name,
		SegmentSize:  size,
	}
	m.record(entry)
	m.logger.Info("segment injected", zap.String("name", name), zap.Uint64("base", base))
	return entry, nil
}

func (m *Manager) record(e *entity.PatchEntry) {
	m.entries = append(m.entries, e)
	m.byAddr[e.Address] = e
	m.mirrorApplied(e)
}

// RevertPatch restores the exact original bytes at address and removes the
// entry. A revert after revert is a no-op returning failure.
func (m *Manager) RevertPatch(address uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revertLocked(address)
}

func (m *Manager) revertLocked(address uint64) error {
	entry, ok := m.byAddr[address]
	if !ok {
		return entity.ErrPatchNotFound
	}

	switch entry.Kind {
	case entity.PatchKindSegmentInjection:
		if err := m.host.RemoveSegment(entry.SegmentName); err != nil {
			return fmt.Errorf("remove segment: %w", err)
		}
	default:
		if err := m.host.WriteBytes(entry.Address, entry.OriginalBytes); err != nil {
			return fmt.Errorf("restore original bytes: %w", err)
		}
	}

	delete(m.byAddr, address)
	for i, e := range m.entries {
		if e.Address == address {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}
	m.mirrorReverted(address)
	m.logger.Info("patch reverted", zap.Uint64("address", address))
	return nil
}

// RevertAll reverts every live entry in reverse chronological order.
func (m *Manager) RevertAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := append([]*entity.PatchEntry(nil), m.entries...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Timestamp.After(ordered[j].Timestamp) })

	var firstErr error
	for _, e := range ordered {
		if err := m.revertLocked(e.Address); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ListPatches returns all live entries, ordered by application time.
func (m *Manager) ListPatches() []entity.PatchEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]entity.PatchEntry, len(m.entries))
	for i, e := range m.entries {
		out[i] = *e
	}
	return out
}

// GetPatchInfo returns the live entry at address, if any.
func (m *Manager) GetPatchInfo(address uint64) (entity.PatchEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byAddr[address]
	if !ok {
		return entity.PatchEntry{}, false
	}
	return *e, true
}

// GetStatistics summarizes the live patch table by kind.
func (m *Manager) GetStatistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Statistics
	s.TotalPatches = len(m.entries)
	for _, e := range m.entries {
		switch e.Kind {
		case entity.PatchKindByte:
			s.BytePatches++
		case entity.PatchKindAssembly:
			s.AssemblyPatches++
		case entity.PatchKindSegmentInjection:
			s.SegmentInjections++
		}
	}
	return s
}

// BytesToHexString renders bytes as a space-separated uppercase hex string,
// matching the original's bytes_to_hex_string helper.
func BytesToHexString(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{v}))
	}
	return strings.Join(parts, " ")
}

// HexStringToBytes parses a space- or concatenation-delimited hex string.
func HexStringToBytes(s string) ([]byte, error) {
	return hex.DecodeString(strings.ReplaceAll(s, " ", ""))
}
