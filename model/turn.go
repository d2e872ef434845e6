package model

import (
	"context"
	"fmt"

	"branchchat/config"
)

// runTurns answers the node from and keeps going for as long as every tool
// call of the latest answer was executed automatically. The caller holds the
// turn.
func (c *Conversation) runTurns(ctx context.Context, from string, prov Provider) error {
	limit := c.cfg.MaxAutoChain
	if limit <= 0 {
		limit = config.DefaultMaxAutoChain
	}

	for chained := 0; ; chained++ {
		if chained > 0 {
			if chained > limit {
				config.Debugf("[Turn] Stopping after %d chained turns", limit)
				return fmt.Errorf("%w (%d)", ErrAutoChainLimit, limit)
			}
			var err error
			if prov, err = c.resolveProvider(ctx); err != nil {
				return err
			}
		}

		next, cont, err := c.turn(ctx, from, prov)
		if err != nil || !cont {
			return err
		}
		from = next
	}
}

// turn runs one model response under parentID. It returns the id of the tool
// node to continue from and whether the conversation should continue.
func (c *Conversation) turn(ctx context.Context, parentID string, prov Provider) (string, bool, error) {
	pending := NewMessage(RoleModel, "")

	c.mu.Lock()
	history := Project(c.messages, parentID)
	c.messages = c.messages.Append(parentID, pending)
	c.headID = pending.ID
	c.mu.Unlock()
	c.publish(true)

	config.Debugf("[Turn] Started %s with %d message(s) of context", pending.ID, len(history))

	var text string
	var calls []ToolCall

	fail := func(err error) (string, bool, error) {
		content := "Error: " + err.Error()
		if text != "" {
			content = text + "\n\n" + content
		}
		c.write(pending.ID, Patch{Content: content, ToolCalls: calls})
		config.Debugf("[Turn] %s failed: %v", pending.ID, err)
		return "", false, err
	}

	req, err := prov.BuildRequest(history, c.cfg.SystemInstruction(), c.activeTools())
	if err != nil {
		return fail(fmt.Errorf("failed to build request: %w", err))
	}

	for chunk, err := range prov.Stream(ctx, req) {
		if err != nil {
			return fail(err)
		}
		text += chunk.TextDelta
		if chunk.ToolCalls != nil {
			calls = chunk.ToolCalls
		}
		c.write(pending.ID, Patch{Content: text, ToolCalls: calls})
	}

	if len(calls) == 0 {
		config.Debugf("[Turn] %s finished with %d chars", pending.ID, len(text))
		return "", false, nil
	}

	results := runAutoTools(ctx, c.cfg, c.executor, calls)
	if len(results) == 0 {
		return "", false, nil
	}

	node := NewMessage(RoleTool, "")
	node.ToolResults = results

	c.mu.Lock()
	c.messages = c.messages.Append(pending.ID, node)
	c.headID = node.ID
	c.mu.Unlock()

	cont := len(results) == len(calls)
	c.publish(cont)
	config.Debugf("[Turn] %d/%d tool call(s) executed automatically", len(results), len(calls))

	return node.ID, cont, nil
}

// write stores streamed content into the pending node and publishes it.
func (c *Conversation) write(id string, patch Patch) {
	c.mu.Lock()
	c.messages = c.messages.Update(id, patch)
	c.mu.Unlock()
	c.publish(true)
}
