package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/videofetcher/internal/models"
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
	MsgTasksFetched MsgKind = iota
	MsgActionDone
	MsgTick
)

type tasksFetched struct {
	tasks []models.TaskView
	err   error
}

type actionDone struct {
	action string
	ids    []string
	err    error
}

// tasksFetchedMsg is the constructor for [MsgTasksFetched]
func tasksFetchedMsg(tasks []models.TaskView, err error) Msg {
	return Msg{kind: MsgTasksFetched, data: tasksFetched{tasks, err}}
}

// actionDoneMsg is the constructor for [MsgActionDone]
func actionDoneMsg(action string, ids []string, err error) Msg {
	return Msg{kind: MsgActionDone, data: actionDone{action, ids, err}}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}
