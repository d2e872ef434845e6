package config

const (
	DefaultToolTimeoutSeconds = 30
	DefaultMaxAutoChain       = 10
)

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/branchchat",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		ActiveModel:        "gemini-flash",
		ToolTimeoutSeconds: DefaultToolTimeoutSeconds,
		MaxAutoChain:       DefaultMaxAutoChain,
		Models: []ModelConfig{
			{ID: "gemini-flash", Provider: "gemini", Model: "gemini-2.5-flash"},
			{ID: "gpt-4o-mini", Provider: "openai", Model: "gpt-4o-mini", BaseURL: "https://api.openai.com/v1"},
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# branchchat System Configuration
# Location: ~/.config/branchchat/settings.toml
# This file uses TOML format: https://toml.io

# Directory where sessions and user config are stored
data_directory = "~/.local/share/branchchat"
`
}

func GenerateUserConfigTemplate() string {
	return `# branchchat User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# Model id (from [[models]]) used for new turns
active_model = "gemini-flash"

# System prompt sent with every turn (optional)
system_prompt = ""

# Limits for automatically executed tools
tool_timeout_seconds = 30
max_auto_chain = 10

# API keys are read from api_key, credentials.toml, or <PROVIDER>_API_KEY
[[models]]
id = "gemini-flash"
provider = "gemini"
model = "gemini-2.5-flash"

[[models]]
id = "gpt-4o-mini"
provider = "openai"
model = "gpt-4o-mini"
base_url = "https://api.openai.com/v1"

# Memories are appended to the system prompt while active
# [[memories]]
# name = "style"
# content = "Answer briefly."
# active = true

# Tools: parameters is a JSON schema; source is Go code defining
#   func Run(args map[string]interface{}) (interface{}, error)
# or
#   func Run(args string) (string, error)
# [[tools]]
# name = "get_weather"
# description = "Get the weather for a city"
# parameters = '{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}'
# active = true
# auto_execute = true
# source = '''
# func Run(args map[string]interface{}) (interface{}, error) { return "sunny", nil }
# '''
`
}
