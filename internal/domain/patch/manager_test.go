package patch

import (
	"errors"
	"testing"

	"github.com/shells-above/swarmre/internal/domain/entity"
	"go.uber.org/zap"
)

// fakeHost is an in-memory Host for exercising the Patch Manager without a
// real disassembler.
type fakeHost struct {
	arch      string
	mem       map[uint64]byte
	segments  map[string]uint64
	fileAdds  []string
	binPath   string
	instrLen  int
}

func newFakeHost() *fakeHost {
	mem := make(map[uint64]byte)
	// 0x401000: 5 bytes, e8 00 00 00 00 (call rel32), instruction boundary.
	for i, b := range []byte{0xE8, 0x00, 0x00, 0x00, 0x00} {
		mem[0x401000+uint64(i)] = b
	}
	return &fakeHost{arch: "x86_64", mem: mem, segments: make(map[string]uint64), instrLen: 5}
}

func (h *fakeHost) Architecture() string { return h.arch }

func (h *fakeHost) ReadBytes(address uint64, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = h.mem[address+uint64(i)]
	}
	return out, nil
}

func (h *fakeHost) WriteBytes(address uint64, data []byte) error {
	for i, b := range data {
		h.mem[address+uint64(i)] = b
	}
	return nil
}

func (h *fakeHost) Disassemble(address uint64, byteLen int) (string, error) {
	return "call 0x0", nil
}

func (h *fakeHost) IsInstructionBoundary(address uint64) bool {
	return address == 0x401000
}

func (h *fakeHost) InstructionLength(address uint64, minBytes int) (int, error) {
	return h.instrLen, nil
}

func (h *fakeHost) CreateSegment(name string, size uint64, code []byte) (uint64, error) {
	base := uint64(0x500000)
	h.segments[name] = base
	return base, nil
}

func (h *fakeHost) RemoveSegment(name string) error {
	if _, ok := h.segments[name]; !ok {
		return errors.New("no such segment")
	}
	delete(h.segments, name)
	return nil
}

func (h *fakeHost) BinaryPath() string { return h.binPath }

func (h *fakeHost) AddSegmentToFile(path, name string, size uint64, code []byte) error {
	h.fileAdds = append(h.fileAdds, name)
	return nil
}

type fakeAssembler struct{}

func (fakeAssembler) Assemble(arch string, address uint64, asm string) ([]byte, error) {
	return []byte{0x90, 0x90}, nil
}

func (fakeAssembler) NOP(arch string) []byte { return []byte{0x90} }

func newTestManager() *Manager {
	return NewManager(newFakeHost(), fakeAssembler{}, nil, zap.NewNop())
}

// Scenario S2: byte patch verification — apply, re-apply with stale
// original bytes fails, revert restores the exact original bytes, and the
// live patch table empties.
func TestManager_BytePatchLifecycle(t *testing.T) {
	m := newTestManager()

	entry, err := m.ApplyBytePatch(0x401000, "E8 00 00 00 00", "90 90 90 90 90", "nop out call")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Kind != entity.PatchKindByte {
		t.Fatalf("expected byte patch kind, got %v", entry.Kind)
	}

	got, _ := m.GetPatchInfo(0x401000)
	if !bytesEqual(got.PatchedBytes, []byte{0x90, 0x90, 0x90, 0x90, 0x90}) {
		t.Fatalf("unexpected patched bytes: %x", got.PatchedBytes)
	}

	// Re-applying with the now-stale "original" bytes must fail: the host
	// currently holds the patched bytes, not the original E8 sequence.
	if _, err := m.ApplyBytePatch(0x401000, "E8 00 00 00 00", "CC CC CC CC CC", "second patch"); !errors.Is(err, entity.ErrPatchBytesMismatch) {
		t.Fatalf("expected bytes mismatch error, got %v", err)
	}

	if err := m.RevertPatch(0x401000); err != nil {
		t.Fatalf("unexpected revert error: %v", err)
	}
	if restored, _ := m.host.ReadBytes(0x401000, 5); !bytesEqual(restored, []byte{0xE8, 0x00, 0x00, 0x00, 0x00}) {
		t.Fatalf("expected original bytes restored after revert, got %x", restored)
	}

	if patches := m.ListPatches(); len(patches) != 0 {
		t.Fatalf("expected empty patch table after revert, got %+v", patches)
	}
}

func TestManager_BytePatch_EmptyDescriptionRejected(t *testing.T) {
	m := newTestManager()
	if _, err := m.ApplyBytePatch(0x401000, "E8 00 00 00 00", "90 90 90 90 90", ""); !errors.Is(err, entity.ErrPatchDescriptionEmpty) {
		t.Fatalf("expected empty description error, got %v", err)
	}
}

func TestManager_BytePatch_InstructionBoundaryEnforced(t *testing.T) {
	m := newTestManager()
	if _, err := m.ApplyBytePatch(0x401001, "00 00 00 00", "90 90 90 90", "misaligned"); !errors.Is(err, entity.ErrPatchInstructionBounds) {
		t.Fatalf("expected instruction boundary error, got %v", err)
	}
}

func TestManager_AssemblyPatch_PadsWithNOPs(t *testing.T) {
	m := newTestManager()
	entry, err := m.ApplyAssemblyPatch(0x401000, "call 0x0", "nop", "neutralize call")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entry.PatchedBytes) != 5 {
		t.Fatalf("expected padded region of 5 bytes, got %d", len(entry.PatchedBytes))
	}
	if entry.PatchedBytes[0] != 0x90 || entry.PatchedBytes[4] != 0x90 {
		t.Fatalf("expected NOP padding to fill the region, got %x", entry.PatchedBytes)
	}
}

func TestManager_SegmentInjection_CreatesAndReverts(t *testing.T) {
	m := newTestManager()
	entry, err := m.ApplySegmentInjection(0x100, []byte{0x90, 0x90}, "cave1", "new code cave")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Kind != entity.PatchKindSegmentInjection {
		t.Fatalf("expected segment injection kind, got %v", entry.Kind)
	}
	if err := m.RevertPatch(entry.Address); err != nil {
		t.Fatalf("unexpected revert error: %v", err)
	}
}

func TestManager_RevertAll_RemovesEveryPatch(t *testing.T) {
	m := newTestManager()
	if _, err := m.ApplyBytePatch(0x401000, "E8 00 00 00 00", "90 90 90 90 90", "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.RevertAll(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats := m.GetStatistics(); stats.TotalPatches != 0 {
		t.Fatalf("expected zero patches after revert all, got %+v", stats)
	}
}

func TestBytesToHexStringRoundTrip(t *testing.T) {
	b := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	s := BytesToHexString(b)
	if s != "DE AD BE EF" {
		t.Fatalf("unexpected hex rendering: %q", s)
	}
	back, err := HexStringToBytes(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytesEqual(back, b) {
		t.Fatalf("round trip mismatch: %x vs %x", back, b)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
