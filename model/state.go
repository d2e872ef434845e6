package model

import (
	"encoding/json"
	"fmt"

	"branchchat/config"
)

// State is the exported form of a conversation: configuration, the message
// tree and the head pointer.
type State struct {
	Config     config.Config
	MessageMap MessageMap
	HeadID     string
}

type stateJSON struct {
	Config     config.Config `json:"config"`
	MessageMap MessageMap    `json:"messageMap"`
	HeadID     nullableID    `json:"headId"`
}

func (s State) MarshalJSON() ([]byte, error) {
	messages := s.MessageMap
	if messages == nil {
		messages = MessageMap{}
	}
	return json.Marshal(stateJSON{
		Config:     s.Config,
		MessageMap: messages,
		HeadID:     nullableID(s.HeadID),
	})
}

func (s *State) UnmarshalJSON(data []byte) error {
	var w stateJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.Config = w.Config
	s.MessageMap = w.MessageMap
	if s.MessageMap == nil {
		s.MessageMap = MessageMap{}
	}
	s.HeadID = string(w.HeadID)
	// keys win over embedded ids
	for id, msg := range s.MessageMap {
		if msg.ID != id {
			msg.ID = id
			s.MessageMap[id] = msg
		}
	}
	if _, ok := s.MessageMap.Get(s.HeadID); !ok {
		s.HeadID = ""
	}
	return nil
}

// DecodeState parses an exported conversation.
func DecodeState(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("failed to decode conversation: %w", err)
	}
	s.Config.ApplyDefaults()
	return s, nil
}

// Encode serializes the state as indented JSON.
func (s State) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode conversation: %w", err)
	}
	return data, nil
}
