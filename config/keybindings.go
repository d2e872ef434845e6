package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// KeyBindingsConfig is <data_dir>/keybindings.toml: two modifier slots plus
// optional per-action overrides. An override may list alternatives separated
// by commas ("ctrl+r,f5").
type KeyBindingsConfig struct {
	Modifiers ModifierConfig    `toml:"modifiers"`
	Actions   map[string]string `toml:"actions"`
}

type ModifierConfig struct {
	Primary   string `toml:"primary"`
	Secondary string `toml:"secondary"`
}

type modifierSlot int

const (
	slotNone modifierSlot = iota
	slotPrimary
	slotSecondary
)

type binding struct {
	slot modifierSlot
	key  string
}

var defaultBindings = map[string]binding{
	"regenerate":  {slotPrimary, "r"},
	"branch_prev": {slotPrimary, "p"},
	"branch_next": {slotPrimary, "n"},
	"cancel_turn": {slotNone, "esc"},

	"yank_last_response": {slotPrimary, "y"},
	"yank_conversation":  {slotSecondary, "y"},

	"half_page_down":   {slotSecondary, "j"},
	"half_page_up":     {slotSecondary, "k"},
	"page_down":        {slotNone, "pgdown"},
	"page_up":          {slotNone, "pgup"},
	"scroll_to_top":    {slotSecondary, "g"},
	"scroll_to_bottom": {slotSecondary, "b"},

	"help":        {slotSecondary, "h"},
	"new_session": {slotSecondary, "n"},
	"quit":        {slotPrimary, "c"},
}

const (
	defaultPrimary   = "ctrl"
	defaultSecondary = "alt"
)

func DefaultKeybindings() *KeyBindingsConfig {
	return &KeyBindingsConfig{
		Modifiers: ModifierConfig{Primary: defaultPrimary, Secondary: defaultSecondary},
	}
}

func keybindingsPath(dataDir string) string {
	return filepath.Join(dataDir, "keybindings.toml")
}

// LoadKeybindings reads keybindings.toml, writing the commented template on
// first run.
func LoadKeybindings(dataDir string) (*KeyBindingsConfig, error) {
	kb := DefaultKeybindings()
	path := keybindingsPath(dataDir)

	if !FileExists(path) {
		if err := EnsureDir(dataDir); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(keybindingsTemplate), 0600); err != nil {
			return nil, fmt.Errorf("failed to write keybindings: %w", err)
		}
		return kb, nil
	}

	if _, err := toml.DecodeFile(path, kb); err != nil {
		return nil, fmt.Errorf("failed to parse keybindings: %w", err)
	}
	return kb, nil
}

const keybindingsTemplate = `# branchchat keybindings
# Location: <data_directory>/keybindings.toml

[modifiers]
primary = "ctrl"   # regenerate, branch navigation, copy, quit
secondary = "alt"  # scrolling, help, new session

[actions]
# Override single actions. Separate alternatives with commas:
#   regenerate = "ctrl+r,f5"
#   branch_prev = "alt+left"
#   branch_next = "alt+right"
#
# Actions: regenerate, branch_prev, branch_next, cancel_turn,
# yank_last_response, yank_conversation, half_page_down, half_page_up,
# page_down, page_up, scroll_to_top, scroll_to_bottom, help, new_session, quit
`

func (kb *KeyBindingsConfig) Primary() string {
	if kb.Modifiers.Primary == "" {
		return defaultPrimary
	}
	return kb.Modifiers.Primary
}

func (kb *KeyBindingsConfig) Secondary() string {
	if kb.Modifiers.Secondary == "" {
		return defaultSecondary
	}
	return kb.Modifiers.Secondary
}

// withModifier joins a modifier chain and a key the way bubbletea reports
// the press. Terminals send shift+letter as the uppercase letter, so a
// "shift" in the chain is folded into the key for single letters.
func withModifier(mod, key string) string {
	if mod == "" {
		return key
	}
	parts := strings.Split(mod, "+")
	if len(key) == 1 && key[0] >= 'a' && key[0] <= 'z' {
		kept := parts[:0:0]
		shifted := false
		for _, p := range parts {
			if strings.EqualFold(p, "shift") {
				shifted = true
				continue
			}
			kept = append(kept, p)
		}
		if shifted {
			key = strings.ToUpper(key)
			parts = kept
		}
	}
	if len(parts) == 0 {
		return key
	}
	return strings.Join(parts, "+") + "+" + key
}

// actionKeys returns every key that triggers action, override first.
func (kb *KeyBindingsConfig) actionKeys(action string) []string {
	if override := strings.TrimSpace(kb.Actions[action]); override != "" {
		var keys []string
		for _, k := range strings.Split(override, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		return keys
	}

	b, ok := defaultBindings[action]
	if !ok {
		return nil
	}
	switch b.slot {
	case slotPrimary:
		return []string{withModifier(kb.Primary(), b.key)}
	case slotSecondary:
		return []string{withModifier(kb.Secondary(), b.key)}
	default:
		return []string{b.key}
	}
}

// GetActionKey returns the main key for action, or "" for unknown actions.
func (kb *KeyBindingsConfig) GetActionKey(action string) string {
	keys := kb.actionKeys(action)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// Matches reports whether a pressed key (bubbletea's KeyMsg.String form)
// triggers action.
func (kb *KeyBindingsConfig) Matches(action, pressed string) bool {
	if pressed == "" {
		return false
	}
	for _, k := range kb.actionKeys(action) {
		if k == pressed {
			return true
		}
	}
	return false
}

// DisplayActionKey renders the main key for the status bar and help:
// "alt+Y" becomes "Alt+Shift+Y".
func (kb *KeyBindingsConfig) DisplayActionKey(action string) string {
	key := kb.GetActionKey(action)
	if key == "" {
		return ""
	}

	parts := strings.Split(key, "+")
	hasShift := false
	for _, p := range parts {
		if strings.EqualFold(p, "shift") {
			hasShift = true
		}
	}

	out := make([]string, 0, len(parts)+1)
	for i, p := range parts {
		if p == "" {
			continue
		}
		upperLetter := len(p) == 1 && p[0] >= 'A' && p[0] <= 'Z'
		if upperLetter && !hasShift && i > 0 {
			out = append(out, "Shift")
		}
		out = append(out, strings.ToUpper(p[:1])+p[1:])
	}
	return strings.Join(out, "+")
}

// Validate returns false and a message when the modifiers would clash with
// each other or with typing.
func (kb *KeyBindingsConfig) Validate() (bool, string) {
	primary, secondary := kb.Primary(), kb.Secondary()
	switch {
	case strings.EqualFold(primary, "shift") || strings.EqualFold(secondary, "shift"):
		return false, "Shift alone conflicts with typing"
	case strings.EqualFold(primary, secondary):
		return false, "Primary and secondary modifiers must differ"
	}
	return true, ""
}
