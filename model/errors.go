package model

import (
	"errors"
	"fmt"
)

var (
	ErrNoActiveModel     = errors.New("no active model selected")
	ErrUnknownModel      = errors.New("active model is not configured")
	ErrMissingCredential = errors.New("missing API key")
	ErrTurnInProgress    = errors.New("a turn is already in progress")
	ErrUnknownToolCall   = errors.New("no open tool call with that id")
	ErrNodeNotFound      = errors.New("message not found")
	ErrAutoChainLimit    = errors.New("automatic tool chain limit reached")
)

// StatusError is a non-success HTTP response from a provider.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
