package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/agin/internal/downloads"
	"github.com/desertthunder/agin/internal/notify"
	"github.com/desertthunder/agin/internal/queue"
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
	MsgDownloads MsgKind = iota
	MsgQueue
	MsgNotice
	MsgConfirm
	MsgOpDone
	MsgClosed
)

// downloadsMsg is the constructor for [MsgDownloads]
func downloadsMsg(s downloads.Snapshot) Msg {
	return Msg{kind: MsgDownloads, data: s}
}

// queueMsg is the constructor for [MsgQueue]
func queueMsg(s queue.Snapshot) Msg {
	return Msg{kind: MsgQueue, data: s}
}

// noticeMsg is the constructor for [MsgNotice]
func noticeMsg(n notify.Notice) Msg {
	return Msg{kind: MsgNotice, data: n}
}

// confirmMsg is the constructor for [MsgConfirm]
func confirmMsg(req confirmRequest) Msg {
	return Msg{kind: MsgConfirm, data: req}
}

// opDoneMsg is the constructor for [MsgOpDone]
func opDoneMsg(action string, err error) Msg {
	return Msg{
		kind: MsgOpDone,
		data: struct {
			action string
			err    error
		}{action, err},
	}
}

// closedMsg reports that a feed channel was closed and its waiter should stop.
func closedMsg() Msg {
	return Msg{kind: MsgClosed}
}
