package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/ytlib/internal/models"
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
	MsgJobsFetched MsgKind = iota
	MsgJobFetched
	MsgStreamUpdate
	MsgJobCancelled
	MsgTick
)

type jobsFetched struct {
	jobs []*models.Job
	err  error
}

type jobCancelled struct {
	id  string
	err error
}

// jobsFetchedMsg is the constructor for [MsgJobsFetched]
func jobsFetchedMsg(jobs []*models.Job, err error) Msg {
	return Msg{kind: MsgJobsFetched, data: jobsFetched{jobs, err}}
}

// jobFetchedMsg is the constructor for [MsgJobFetched]
func jobFetchedMsg(job *models.Job) Msg {
	return Msg{kind: MsgJobFetched, data: job}
}

// streamUpdateMsg is the constructor for [MsgStreamUpdate]. gen ties the update to the stream that sent it.
func streamUpdateMsg(gen int) Msg {
	return Msg{kind: MsgStreamUpdate, data: gen}
}

// jobCancelledMsg is the constructor for [MsgJobCancelled]
func jobCancelledMsg(id string, err error) Msg {
	return Msg{kind: MsgJobCancelled, data: jobCancelled{id, err}}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg() Msg {
	return Msg{kind: MsgTick}
}
