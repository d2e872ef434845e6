package model

import (
	"context"
	"fmt"
	"sync"

	"branchchat/config"
	"branchchat/mcp"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Update is a consistent view of the tree and head published after every
// mutation.
type Update struct {
	Messages MessageMap
	HeadID   string
	// Streaming is true while a turn is still consuming a provider stream.
	Streaming bool
}

// Options wires the collaborators of a Conversation.
type Options struct {
	NewProvider ProviderFactory
	Executor    Executor
	// OnUpdate receives every published snapshot, in order. It is called
	// without the conversation lock held.
	OnUpdate func(Update)
}

// Conversation owns one message tree and its head pointer. All mutations are
// serialized behind mu and only one turn can be in flight at a time.
type Conversation struct {
	mu         sync.Mutex
	cfg        *config.Config
	messages   MessageMap
	headID     string
	turnActive bool

	newProvider ProviderFactory
	executor    Executor
	onUpdate    func(Update)
}

// NewConversation creates a conversation from an initial state. The state's
// config is ignored in favor of cfg.
func NewConversation(cfg *config.Config, state State, opts Options) *Conversation {
	messages := state.MessageMap
	if messages == nil {
		messages = MessageMap{}
	}
	return &Conversation{
		cfg:         cfg,
		messages:    messages,
		headID:      state.HeadID,
		newProvider: opts.NewProvider,
		executor:    opts.Executor,
		onUpdate:    opts.OnUpdate,
	}
}

// Snapshot returns the current tree and head.
func (c *Conversation) Snapshot() (MessageMap, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages, c.headID
}

// Thread returns the projection of the current head.
func (c *Conversation) Thread() []Message {
	messages, head := c.Snapshot()
	return Project(messages, head)
}

// State returns the exportable state of the conversation.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Config: *c.cfg, MessageMap: c.messages, HeadID: c.headID}
}

// Config returns the live configuration.
func (c *Conversation) Config() *config.Config {
	return c.cfg
}

// Busy reports whether a turn is in flight.
func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turnActive
}

// Load replaces the whole tree and head, as on import.
func (c *Conversation) Load(state State) error {
	c.mu.Lock()
	if c.turnActive {
		c.mu.Unlock()
		return ErrTurnInProgress
	}
	c.messages = state.MessageMap
	if c.messages == nil {
		c.messages = MessageMap{}
	}
	c.headID = state.HeadID
	c.mu.Unlock()

	c.publish(false)
	return nil
}

// SetHead points the head at an existing node.
func (c *Conversation) SetHead(id string) error {
	c.mu.Lock()
	if c.turnActive {
		c.mu.Unlock()
		return ErrTurnInProgress
	}
	if _, ok := c.messages.Get(id); !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	c.headID = id
	c.mu.Unlock()

	c.publish(false)
	return nil
}

// Navigate moves the head to the newest leaf of a sibling branch of nodeID.
// An empty nodeID navigates from the head itself.
func (c *Conversation) Navigate(nodeID string, dir Direction) error {
	c.mu.Lock()
	if c.turnActive {
		c.mu.Unlock()
		return ErrTurnInProgress
	}
	if nodeID == "" {
		nodeID = c.headID
	}
	next := Navigate(c.messages, nodeID, dir)
	if _, ok := c.messages.Get(next); !ok || next == nodeID {
		c.mu.Unlock()
		return nil
	}
	c.headID = next
	c.mu.Unlock()

	c.publish(false)
	return nil
}

// ActiveModel returns the id of the model the next turn will use.
func (c *Conversation) ActiveModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.ActiveModel
}

// SetActiveModel switches the model used for the next turn.
func (c *Conversation) SetActiveModel(id string) error {
	if _, ok := c.cfg.FindModel(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turnActive {
		return ErrTurnInProgress
	}
	c.cfg.ActiveModel = id
	return nil
}

// SendUserMessage appends a user message under the head and answers it.
func (c *Conversation) SendUserMessage(ctx context.Context, text string) error {
	prov, err := c.resolveProvider(ctx)
	if err != nil {
		return err
	}
	if err := c.claimTurn(); err != nil {
		return err
	}
	defer c.releaseTurn()

	msg := NewMessage(RoleUser, text)
	c.mu.Lock()
	c.messages = c.messages.Append(c.headID, msg)
	c.headID = msg.ID
	c.mu.Unlock()
	c.publish(true)

	return c.runTurns(ctx, msg.ID, prov)
}

// EditMessage creates a sibling of the user message nodeID with new text and
// answers it. The original branch is kept.
func (c *Conversation) EditMessage(ctx context.Context, nodeID, text string) error {
	c.mu.Lock()
	node, ok := c.messages.Get(nodeID)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if node.Role != RoleUser {
		return fmt.Errorf("only user messages can be edited, %s is a %s message", nodeID, node.Role)
	}

	prov, err := c.resolveProvider(ctx)
	if err != nil {
		return err
	}
	if err := c.claimTurn(); err != nil {
		return err
	}
	defer c.releaseTurn()

	msg := NewMessage(RoleUser, text)
	c.mu.Lock()
	c.messages = c.messages.Append(node.ParentID, msg)
	c.headID = msg.ID
	c.mu.Unlock()
	c.publish(true)

	return c.runTurns(ctx, msg.ID, prov)
}

// Regenerate produces a new sibling answer for the model message nodeID. For
// any other role it answers nodeID itself.
func (c *Conversation) Regenerate(ctx context.Context, nodeID string) error {
	c.mu.Lock()
	if nodeID == "" {
		nodeID = c.headID
	}
	node, ok := c.messages.Get(nodeID)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	from := nodeID
	if node.Role == RoleModel {
		from = node.ParentID
	}

	prov, err := c.resolveProvider(ctx)
	if err != nil {
		return err
	}
	if err := c.claimTurn(); err != nil {
		return err
	}
	defer c.releaseTurn()

	return c.runTurns(ctx, from, prov)
}

// Continue runs a turn answering the current head.
func (c *Conversation) Continue(ctx context.Context) error {
	prov, err := c.resolveProvider(ctx)
	if err != nil {
		return err
	}
	if err := c.claimTurn(); err != nil {
		return err
	}
	defer c.releaseTurn()

	c.mu.Lock()
	head := c.headID
	c.mu.Unlock()
	return c.runTurns(ctx, head, prov)
}

// SubmitToolResult answers one open tool call of the trailing model turn.
// Once every call of that turn has a result, the conversation continues.
func (c *Conversation) SubmitToolResult(ctx context.Context, callID, result string, isError bool) error {
	if err := c.claimTurn(); err != nil {
		return err
	}
	defer c.releaseTurn()

	c.mu.Lock()
	_, open := OpenToolCalls(Project(c.messages, c.headID))
	found := false
	for _, call := range open {
		if call.ID == callID {
			found = true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownToolCall, callID)
	}

	node := NewMessage(RoleTool, "")
	node.ToolResults = []ToolResult{{CallID: callID, Result: result, IsError: isError}}
	c.messages = c.messages.Append(c.headID, node)
	c.headID = node.ID
	_, stillOpen := OpenToolCalls(Project(c.messages, c.headID))
	c.mu.Unlock()
	c.publish(false)

	config.Debugf("[Turn] Manual result for %s, %d call(s) still open", callID, len(stillOpen))
	if len(stillOpen) > 0 {
		return nil
	}

	prov, err := c.resolveProvider(ctx)
	if err != nil {
		return err
	}
	return c.runTurns(ctx, node.ID, prov)
}

// PreviewRequest returns the wire body the next turn would send.
func (c *Conversation) PreviewRequest(ctx context.Context) ([]byte, error) {
	prov, err := c.resolveProvider(ctx)
	if err != nil {
		return nil, err
	}
	req, err := prov.BuildRequest(c.Thread(), c.cfg.SystemInstruction(), c.activeTools())
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return req.Wire()
}

// resolveProvider turns the active model selection into a provider. Every
// failure here is a configuration error and happens before any node exists.
func (c *Conversation) resolveProvider(ctx context.Context) (Provider, error) {
	active := c.ActiveModel()
	if active == "" {
		return nil, ErrNoActiveModel
	}
	m, ok := c.cfg.FindModel(active)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, active)
	}
	key := c.cfg.ResolveAPIKey(m)
	if key == "" && RequiresAPIKey(m.Provider) {
		return nil, fmt.Errorf("%w for model %s (provider %s)", ErrMissingCredential, m.ID, m.Provider)
	}
	if c.newProvider == nil {
		return nil, fmt.Errorf("no provider factory configured")
	}
	prov, err := c.newProvider(ctx, m, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider for %s: %w", m.ID, err)
	}
	return prov, nil
}

// RequiresAPIKey reports whether a provider family needs a credential.
func RequiresAPIKey(provider string) bool {
	return provider != "ollama"
}

func (c *Conversation) activeTools() []mcptypes.Tool {
	tools, errs := mcp.ToolsFromConfig(c.cfg.ActiveTools())
	for _, err := range errs {
		config.Debugf("[Turn] Skipping tool: %v", err)
	}
	return tools
}

func (c *Conversation) claimTurn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turnActive {
		return ErrTurnInProgress
	}
	c.turnActive = true
	return nil
}

func (c *Conversation) releaseTurn() {
	c.mu.Lock()
	c.turnActive = false
	c.mu.Unlock()
	c.publish(false)
}

func (c *Conversation) publish(streaming bool) {
	if c.onUpdate == nil {
		return
	}
	c.mu.Lock()
	u := Update{Messages: c.messages, HeadID: c.headID, Streaming: streaming}
	c.mu.Unlock()
	c.onUpdate(u)
}
