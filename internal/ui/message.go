package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/pubkytree/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTick MsgKind = iota
	MsgSyncEvent
	MsgOperationDone
	MsgAuthURL
	MsgConnected
)

type operationResult struct {
	status string
	err    error
}

type authURLResult struct {
	url string
	err error
}

// tickMsg is the constructor for [MsgTick]
func tickMsg() Msg {
	return Msg{kind: MsgTick}
}

// syncEventMsg is the constructor for [MsgSyncEvent]
func syncEventMsg(ev tasks.SyncEvent) Msg {
	return Msg{kind: MsgSyncEvent, data: ev}
}

// operationDoneMsg is the constructor for [MsgOperationDone]
func operationDoneMsg(status string, err error) Msg {
	return Msg{kind: MsgOperationDone, data: operationResult{status: status, err: err}}
}

// authURLMsg is the constructor for [MsgAuthURL]
func authURLMsg(url string, err error) Msg {
	return Msg{kind: MsgAuthURL, data: authURLResult{url: url, err: err}}
}

// connectedMsg is the constructor for [MsgConnected]
func connectedMsg(err error) Msg {
	return Msg{kind: MsgConnected, data: err}
}
