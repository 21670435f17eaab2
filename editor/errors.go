package editor

import (
	"errors"
	"time"
)

var (
	ErrNoImage         = errors.New("no image chosen")
	ErrImageLoad       = errors.New("failed to load image")
	ErrRasterize       = errors.New("failed to export image")
	ErrWrongPhase      = errors.New("not available in the current phase")
	ErrToolUnavailable = errors.New("tool not available in the current phase")
	ErrUnknownTool     = errors.New("unknown tool")
	ErrUnknownFormat   = errors.New("unknown export format")
	ErrSessionClosed   = errors.New("editor session closed")
	ErrSessionNotFound = errors.New("editor session not found")
)

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice kinds.
const (
	NoticeLoadFailure      = "load-failure"
	NoticeRasterizeFailure = "rasterize-failure"
	NoticeUploadFailure    = "upload-failure"
	NoticeValidation       = "validation"
	NoticeApplied          = "applied"
)

// Notice is a user-visible, non-fatal message raised by a session.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Kind    string      `json:"kind"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}
