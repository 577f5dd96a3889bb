package trace

import (
	"encoding/json"
	"fmt"

	"github.com/symlift/symlift/pkg/microcode"
	"github.com/symlift/symlift/pkg/symexec"
)

// EventRecord is the JSON-friendly shadow of one symexec.Event: plain
// strings instead of the algebra's internal pointer trees, stable and
// scriptable output for downstream tooling.
type EventRecord struct {
	Kind          string `json:"kind"`
	JumpTarget    string `json:"jump_target,omitempty"`
	JumpCondition string `json:"jump_condition,omitempty"`
	JumpRelative  bool   `json:"jump_relative,omitempty"`
	StdioKind     string `json:"stdio_kind,omitempty"`
	StdioBytes    int    `json:"stdio_bytes,omitempty"`
}

// RecordEvent converts one Event to its JSON-friendly shadow.
func RecordEvent(ev *symexec.Event) EventRecord {
	r := EventRecord{Kind: ev.Kind.String()}
	switch ev.Kind {
	case symexec.EventJump:
		r.JumpTarget = ev.JumpTarget.String()
		r.JumpCondition = ev.JumpCondition.String()
		r.JumpRelative = ev.JumpRelative
	case symexec.EventStdio:
		r.StdioKind = ev.StdioKind.String()
		r.StdioBytes = len(ev.StdioAccess)
	}
	return r
}

// ExportEvents renders a sequence of events as indented JSON.
func ExportEvents(events []*symexec.Event) ([]byte, error) {
	records := make([]EventRecord, len(events))
	for i, ev := range events {
		records[i] = RecordEvent(ev)
	}
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("trace: export events: %w", err)
	}
	return out, nil
}

// MicrocodeRecord is the JSON-friendly shadow of one Microcode value:
// its pinned text rendering alongside the operation count, so a
// script can sanity-check length without re-parsing the text.
type MicrocodeRecord struct {
	Ops  int    `json:"ops"`
	Text string `json:"text"`
}

// ExportMicrocode renders code as indented JSON.
func ExportMicrocode(code microcode.Microcode) ([]byte, error) {
	record := MicrocodeRecord{Ops: len(code.Ops), Text: code.String()}
	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("trace: export microcode: %w", err)
	}
	return out, nil
}
