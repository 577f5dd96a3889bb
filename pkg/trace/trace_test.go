package trace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/symlift/symlift/pkg/amd64"
	"github.com/symlift/symlift/pkg/microcode"
	"github.com/symlift/symlift/pkg/num"
	"github.com/symlift/symlift/pkg/solver"
	"github.com/symlift/symlift/pkg/symexec"
)

func TestExportEventsRendersJumpAndExit(t *testing.T) {
	events := []*symexec.Event{
		{
			Kind:          symexec.EventJump,
			JumpTarget:    solver.Const(num.N64, 0x20),
			JumpCondition: solver.True(),
			JumpRelative:  true,
		},
		{Kind: symexec.EventExit},
	}
	out, err := ExportEvents(events)
	if err != nil {
		t.Fatalf("ExportEvents: %v", err)
	}
	text := string(out)
	if !strings.Contains(text, `"kind": "jump"`) {
		t.Errorf("export missing jump record: %s", text)
	}
	if !strings.Contains(text, `"kind": "exit"`) {
		t.Errorf("export missing exit record: %s", text)
	}
	if !strings.Contains(text, "0x20:n64") {
		t.Errorf("export missing rendered jump target: %s", text)
	}
}

func TestExportMicrocodeRendersPinnedText(t *testing.T) {
	enc := microcode.NewEncoder()
	inst, n, err := amd64.Decode([]byte{0xc7, 0xc0, 0x05, 0x00, 0x00, 0x00}) // mov eax, 5
	if err != nil || n == 0 {
		t.Fatalf("decode: %v", err)
	}
	if err := enc.Encode(inst); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := ExportMicrocode(enc.Finish())
	if err != nil {
		t.Fatalf("ExportMicrocode: %v", err)
	}
	text := string(out)
	if !strings.Contains(text, "Microcode [") {
		t.Errorf("export missing pinned microcode text: %s", text)
	}
}

func TestCheckpointSaveLoadRoundTrip(t *testing.T) {
	sv := solver.NewSolver()
	s := symexec.NewState(symexec.ConditionalTrees, sv)
	s.SetReg(amd64.RAX, solver.Const(num.N64, 99))

	path := filepath.Join(t.TempDir(), "checkpoint.gob")
	ckpt := &Checkpoint{State: s.Snapshot(), NextAddr: 0x4000}
	if err := SaveCheckpoint(path, ckpt); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if loaded.NextAddr != 0x4000 {
		t.Errorf("loaded.NextAddr = %#x, want 0x4000", loaded.NextAddr)
	}
	restored := symexec.Restore(loaded.State, sv)
	if got := restored.GetReg(amd64.RAX).Value; got != 99 {
		t.Errorf("restored rax = %d, want 99", got)
	}
}

func TestLoadCheckpointMissingFile(t *testing.T) {
	if _, err := LoadCheckpoint(filepath.Join(os.TempDir(), "does-not-exist.gob")); err == nil {
		t.Error("expected an error loading a nonexistent checkpoint")
	}
}
