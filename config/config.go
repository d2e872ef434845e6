package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

// ModelConfig is one selectable model endpoint.
type ModelConfig struct {
	ID        string `toml:"id" json:"id"`
	Provider  string `toml:"provider" json:"provider"`
	Model     string `toml:"model" json:"model"`
	BaseURL   string `toml:"base_url,omitempty" json:"baseUrl,omitempty"`
	APIKey    string `toml:"api_key,omitempty" json:"apiKey,omitempty"`
	MaxTokens int    `toml:"max_tokens,omitempty" json:"maxTokens,omitempty"`
}

// Memory is a named block of text appended to the system instruction while active.
type Memory struct {
	Name    string `toml:"name" json:"name"`
	Content string `toml:"content" json:"content"`
	Active  bool   `toml:"active" json:"active"`
}

// ToolConfig registers a function the model may call. Parameters holds a JSON
// schema document; Source is interpreted Go code run by the sandbox.
type ToolConfig struct {
	Name        string `toml:"name" json:"name"`
	Description string `toml:"description" json:"description"`
	Parameters  string `toml:"parameters" json:"parameters"`
	Active      bool   `toml:"active" json:"active"`
	AutoExecute bool   `toml:"auto_execute" json:"autoExecute"`
	Source      string `toml:"source,omitempty" json:"source,omitempty"`
}

type UserConfig struct {
	ActiveModel        string        `toml:"active_model"`
	SystemPrompt       string        `toml:"system_prompt,omitempty"`
	ToolTimeoutSeconds int           `toml:"tool_timeout_seconds,omitempty"`
	MaxAutoChain       int           `toml:"max_auto_chain,omitempty"`
	Models             []ModelConfig `toml:"models"`
	Memories           []Memory      `toml:"memories"`
	Tools              []ToolConfig  `toml:"tools"`
}

// Config is the runtime configuration. It is also the "config" member of an
// exported conversation, so it carries JSON tags.
type Config struct {
	DataDirectory      string        `json:"-"`
	ActiveModel        string        `json:"activeModel"`
	Models             []ModelConfig `json:"models"`
	SystemPrompt       string        `json:"systemPrompt"`
	Memories           []Memory      `json:"memories"`
	Tools              []ToolConfig  `json:"tools"`
	ToolTimeoutSeconds int           `json:"toolTimeoutSeconds,omitempty"`
	MaxAutoChain       int           `json:"maxAutoChain,omitempty"`

	CredentialStore *CredentialStore   `json:"-"`
	Keybindings     *KeyBindingsConfig `json:"-"`
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// FindModel returns the model entry with the given id.
func (c *Config) FindModel(id string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// FindTool returns the registered tool with the given name.
func (c *Config) FindTool(name string) (ToolConfig, bool) {
	for _, t := range c.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolConfig{}, false
}

// ActiveTools returns the tools that should be offered to the model.
func (c *Config) ActiveTools() []ToolConfig {
	var tools []ToolConfig
	for _, t := range c.Tools {
		if t.Active && t.Name != "" {
			tools = append(tools, t)
		}
	}
	return tools
}

// SystemInstruction joins the system prompt with every active memory block.
func (c *Config) SystemInstruction() string {
	var parts []string
	if s := strings.TrimSpace(c.SystemPrompt); s != "" {
		parts = append(parts, s)
	}
	for _, m := range c.Memories {
		if !m.Active || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Name != "" {
			parts = append(parts, fmt.Sprintf("[%s]\n%s", m.Name, strings.TrimSpace(m.Content)))
		} else {
			parts = append(parts, strings.TrimSpace(m.Content))
		}
	}
	return strings.Join(parts, "\n\n")
}

// ResolveAPIKey finds the credential for a model: inline key first, then the
// credential store (by model id, then provider id), then <PROVIDER>_API_KEY.
func (c *Config) ResolveAPIKey(m ModelConfig) string {
	if m.APIKey != "" {
		return m.APIKey
	}
	if c.CredentialStore != nil {
		if key := c.CredentialStore.Get(m.ID); key != "" {
			return key
		}
		if key := c.CredentialStore.Get(m.Provider); key != "" {
			return key
		}
	}
	if m.Provider != "" {
		return os.Getenv(strings.ToUpper(m.Provider) + "_API_KEY")
	}
	return ""
}

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv("BRANCHCHAT_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if model := os.Getenv("BRANCHCHAT_MODEL"); model != "" {
		c.ActiveModel = model
	}
}

func (c *Config) applyUserConfig(userCfg *UserConfig) {
	c.ActiveModel = userCfg.ActiveModel
	c.SystemPrompt = userCfg.SystemPrompt
	c.ToolTimeoutSeconds = userCfg.ToolTimeoutSeconds
	c.MaxAutoChain = userCfg.MaxAutoChain
	c.Models = userCfg.Models
	c.Memories = userCfg.Memories
	c.Tools = userCfg.Tools
}

// UserConfig converts the runtime config back into its on-disk form.
func (c *Config) UserConfig() *UserConfig {
	return &UserConfig{
		ActiveModel:        c.ActiveModel,
		SystemPrompt:       c.SystemPrompt,
		ToolTimeoutSeconds: c.ToolTimeoutSeconds,
		MaxAutoChain:       c.MaxAutoChain,
		Models:             c.Models,
		Memories:           c.Memories,
		Tools:              c.Tools,
	}
}

func CheckDebug() bool {
	debug := os.Getenv("BRANCHCHAT_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600: prompts and tool output end up in here
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (BRANCHCHAT_DEBUG=%s) ===", os.Getenv("BRANCHCHAT_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// Debugf writes to the debug log when debug logging is on. The logged file
// and line are the caller's.
func Debugf(format string, args ...any) {
	if Debug && DebugLog != nil {
		DebugLog.Output(2, fmt.Sprintf(format, args...))
	}
}

func Load() (*Config, error) {
	cfg := &Config{
		DataDirectory: GetDefaultDataDir(),
	}

	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}
	if systemCfg.DataDirectory != "" {
		cfg.DataDirectory = systemCfg.DataDirectory
	}
	if dataDir := os.Getenv("BRANCHCHAT_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Ensure data directory has correct permissions (fix if needed)
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.applyUserConfig(userCfg)
	cfg.applyEnvOverrides()
	cfg.ApplyDefaults()

	cfg.CredentialStore = NewCredentialStore()
	if err := cfg.CredentialStore.Load(dataDir); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	cfg.Keybindings, err = LoadKeybindings(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load keybindings: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills unset limits. Imported configs go through this too.
func (c *Config) ApplyDefaults() {
	if c.ToolTimeoutSeconds <= 0 {
		c.ToolTimeoutSeconds = DefaultToolTimeoutSeconds
	}
	if c.MaxAutoChain <= 0 {
		c.MaxAutoChain = DefaultMaxAutoChain
	}
}

// Save writes the user portion of the config back to <data_dir>/config.toml.
func (c *Config) Save() error {
	return SaveUserConfig(c.UserConfig(), c.DataDir())
}
