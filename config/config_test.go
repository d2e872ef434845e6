package config

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSystemInstruction(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "empty", cfg: Config{}, want: ""},
		{name: "prompt only", cfg: Config{SystemPrompt: "  Be brief.  "}, want: "Be brief."},
		{
			name: "prompt and memories",
			cfg: Config{
				SystemPrompt: "Be brief.",
				Memories: []Memory{
					{Name: "user", Content: "Likes Go.", Active: true},
					{Name: "off", Content: "Ignored.", Active: false},
					{Content: "Unnamed note.", Active: true},
					{Name: "blank", Content: "   ", Active: true},
				},
			},
			want: "Be brief.\n\n[user]\nLikes Go.\n\nUnnamed note.",
		},
		{
			name: "memories without prompt",
			cfg:  Config{Memories: []Memory{{Name: "m", Content: "x", Active: true}}},
			want: "[m]\nx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.SystemInstruction(); got != tt.want {
				t.Errorf("SystemInstruction() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveAPIKey(t *testing.T) {
	store := NewCredentialStore()
	store.Set("by-id", "id-key")
	store.Set("openai", "provider-key")

	cfg := &Config{CredentialStore: store}
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("GEMINI_API_KEY", "")

	tests := []struct {
		name  string
		model ModelConfig
		want  string
	}{
		{name: "inline wins", model: ModelConfig{ID: "by-id", Provider: "openai", APIKey: "inline"}, want: "inline"},
		{name: "store by model id", model: ModelConfig{ID: "by-id", Provider: "openai"}, want: "id-key"},
		{name: "store by provider", model: ModelConfig{ID: "other", Provider: "openai"}, want: "provider-key"},
		{name: "environment", model: ModelConfig{ID: "claude", Provider: "anthropic"}, want: "env-key"},
		{name: "nothing", model: ModelConfig{ID: "g", Provider: "gemini"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.ResolveAPIKey(tt.model); got != tt.want {
				t.Errorf("ResolveAPIKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActiveTools(t *testing.T) {
	cfg := &Config{Tools: []ToolConfig{
		{Name: "a", Active: true},
		{Name: "b", Active: false},
		{Name: "", Active: true},
		{Name: "c", Active: true, AutoExecute: true},
	}}

	var names []string
	for _, tool := range cfg.ActiveTools() {
		names = append(names, tool.Name)
	}
	if diff := cmp.Diff([]string{"a", "c"}, names); diff != "" {
		t.Errorf("ActiveTools() mismatch (-want +got):\n%s", diff)
	}

	if _, ok := cfg.FindTool("b"); !ok {
		t.Error("FindTool(b) should find inactive tools")
	}
	if _, ok := cfg.FindTool("missing"); ok {
		t.Error("FindTool(missing) = true")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	if cfg.ToolTimeoutSeconds != DefaultToolTimeoutSeconds || cfg.MaxAutoChain != DefaultMaxAutoChain {
		t.Errorf("ApplyDefaults() = %d/%d", cfg.ToolTimeoutSeconds, cfg.MaxAutoChain)
	}

	cfg = &Config{ToolTimeoutSeconds: 5, MaxAutoChain: 2}
	cfg.ApplyDefaults()
	if cfg.ToolTimeoutSeconds != 5 || cfg.MaxAutoChain != 2 {
		t.Errorf("ApplyDefaults() overwrote explicit values: %d/%d", cfg.ToolTimeoutSeconds, cfg.MaxAutoChain)
	}
}

func TestLoadAndSave(t *testing.T) {
	home := t.TempDir()
	dataDir := filepath.Join(home, "data")
	t.Setenv("HOME", home)
	t.Setenv("BRANCHCHAT_DATA_DIR", dataDir)
	t.Setenv("BRANCHCHAT_MODEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !FileExists(GetSettingsFilePath()) {
		t.Error("settings template was not written")
	}
	if !FileExists(UserConfigPath(dataDir)) {
		t.Error("user config template was not written")
	}
	if cfg.ActiveModel != "gemini-flash" || len(cfg.Models) != 2 {
		t.Errorf("defaults not applied: active=%q models=%d", cfg.ActiveModel, len(cfg.Models))
	}

	cfg.ActiveModel = "local"
	cfg.Models = append(cfg.Models, ModelConfig{ID: "local", Provider: "ollama", Model: "llama3.1"})
	cfg.Tools = []ToolConfig{{
		Name:        "get_weather",
		Description: "Weather",
		Parameters:  `{"type":"object"}`,
		Active:      true,
		AutoExecute: true,
		Source:      "func Run(args string) (string, error) { return \"sunny\", nil }",
	}}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(UserConfigPath(dataDir))
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config.toml perms = %v, want 0600", info.Mode().Perm())
	}

	reloaded, err := Load()
	if err != nil {
		t.Fatalf("Load() after Save error = %v", err)
	}
	if diff := cmp.Diff(cfg.UserConfig(), reloaded.UserConfig()); diff != "" {
		t.Errorf("reloaded config mismatch (-want +got):\n%s", diff)
	}

	t.Setenv("BRANCHCHAT_MODEL", "gpt-4o-mini")
	overridden, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if overridden.ActiveModel != "gpt-4o-mini" {
		t.Errorf("BRANCHCHAT_MODEL override ignored: %q", overridden.ActiveModel)
	}
}

func TestCredentialStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	store := NewCredentialStore()
	if err := store.Load(dir); err != nil {
		t.Fatalf("Load() on missing file error = %v", err)
	}
	store.Set("openai", "sk-1")
	store.Set("gemini", "g-1")
	store.Delete("gemini")
	if err := store.Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded := NewCredentialStore()
	if err := loaded.Load(dir); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := loaded.Get("openai"); got != "sk-1" {
		t.Errorf("Get(openai) = %q", got)
	}
	if got := loaded.Get("gemini"); got != "" {
		t.Errorf("deleted key survived: %q", got)
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("BC_SUB", "x")

	tests := map[string]string{
		"":               "",
		"~/data":         "/home/tester/data",
		"/var/$BC_SUB/y": "/var/x/y",
		"rel/../dir":     "dir",
	}
	for in, want := range tests {
		if got := ExpandPath(in); got != want {
			t.Errorf("ExpandPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDebugfReportsCallerLine(t *testing.T) {
	prevDebug, prevLog := Debug, DebugLog
	t.Cleanup(func() { Debug, DebugLog = prevDebug, prevLog })

	var buf bytes.Buffer
	Debug = true
	DebugLog = log.New(&buf, "", log.Lshortfile)

	Debugf("[Test] value=%d", 7)

	got := buf.String()
	if !strings.HasPrefix(got, "config_test.go:") {
		t.Errorf("log line should name the caller, got %q", got)
	}
	if !strings.Contains(got, "[Test] value=7") {
		t.Errorf("message missing from %q", got)
	}

	buf.Reset()
	Debug = false
	Debugf("hidden")
	if buf.Len() != 0 {
		t.Errorf("Debugf wrote while disabled: %q", buf.String())
	}
}
