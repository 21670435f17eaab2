package editor

import (
	"fmt"
	"imagedesk/core"
)

type Phase string

const (
	PhaseImage Phase = "image"
	PhaseNotes Phase = "notes"
)

type Tool string

const (
	ToolPan      Tool = "pan"
	ToolRect     Tool = "rect"
	ToolArrow    Tool = "arrow"
	ToolText     Tool = "text"
	ToolCircle   Tool = "circle"
	ToolFreehand Tool = "freehand"
	ToolSelect   Tool = "select"
)

var allTools = []Tool{ToolPan, ToolSelect, ToolRect, ToolArrow, ToolCircle, ToolFreehand, ToolText}

func ParseTool(s string) (Tool, error) {
	for _, t := range allTools {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
}

// IsShape reports whether the tool creates annotation items.
func (t Tool) IsShape() bool {
	switch t {
	case ToolRect, ToolArrow, ToolText, ToolCircle, ToolFreehand:
		return true
	}
	return false
}

// VisibleTools is the set of tools a UI offers in phase p.
func VisibleTools(p Phase) []Tool {
	if p == PhaseImage {
		return []Tool{ToolPan}
	}
	return append([]Tool(nil), allTools...)
}

// modes is the phase and tool state machine. Image phase pins the tool to
// pan; notes phase restores whatever was last chosen there.
type modes struct {
	phase     Phase
	tool      Tool
	notesTool Tool
}

func newModes() modes {
	return modes{phase: PhaseImage, tool: ToolPan, notesTool: ToolSelect}
}

func (m *modes) setPhase(p Phase) error {
	switch p {
	case PhaseImage:
		m.phase, m.tool = PhaseImage, ToolPan
	case PhaseNotes:
		m.phase, m.tool = PhaseNotes, m.notesTool
	default:
		return fmt.Errorf("%w: unknown phase %q", core.ErrInvalid, p)
	}
	return nil
}

func (m *modes) setTool(t Tool) error {
	if _, err := ParseTool(string(t)); err != nil {
		return err
	}
	if m.phase == PhaseImage {
		if t != ToolPan {
			return ErrToolUnavailable
		}
		return nil
	}
	m.tool = t
	if t != ToolPan {
		m.notesTool = t
	}
	return nil
}

// overlayActive reports whether pointer input goes to the annotation layer.
func (m *modes) overlayActive() bool {
	return m.phase == PhaseNotes
}
