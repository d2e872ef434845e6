package ui

import (
	"branchchat/model"
	"branchchat/storage"
)

// conversationUpdateMsg carries the latest published snapshot of the tree.
type conversationUpdateMsg struct {
	update model.Update
}

// turnDoneMsg is sent when a turn-running operation returns.
type turnDoneMsg struct {
	err error
}

type markdownRenderedMsg struct {
	messageID string
	content   string
	width     int
	rendered  string
}

type sessionSavedMsg struct {
	session *storage.Session
	err     error
}

type searchResultsMsg struct {
	query   string
	matches []storage.SessionMessageMatch
	err     error
}

type previewMsg struct {
	wire []byte
	err  error
}

// statusMsg replaces the status line text.
type statusMsg struct {
	text  string
	isErr bool
}

type overlayMsg struct {
	text string
}
