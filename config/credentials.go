package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// CredentialStore keeps API keys in <data_dir>/credentials.toml, keyed by
// model id or provider id.
type CredentialStore struct {
	credentials map[string]string
}

type credentialsFile struct {
	Credentials map[string]string `toml:"credentials"`
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		credentials: make(map[string]string),
	}
}

// Load reads credentials from disk. A missing file is not an error.
func (c *CredentialStore) Load(dataDir string) error {
	path := credentialsPath(dataDir)
	if !FileExists(path) {
		return nil
	}

	var cf credentialsFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if cf.Credentials != nil {
		c.credentials = cf.Credentials
	}
	return nil
}

// Save writes credentials to disk with 0600 permissions.
func (c *CredentialStore) Save(dataDir string) error {
	if err := EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	f, err := os.OpenFile(credentialsPath(dataDir), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create credentials file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(credentialsFile{Credentials: c.credentials}); err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	return nil
}

func (c *CredentialStore) Get(key string) string {
	return c.credentials[key]
}

func (c *CredentialStore) Set(key, apiKey string) {
	c.credentials[key] = apiKey
}

func (c *CredentialStore) Delete(key string) {
	delete(c.credentials, key)
}

func credentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.toml")
}
