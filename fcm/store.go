package fcm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// credentialsFile is the credentials file name inside the session directory.
const credentialsFile = "fcm_credentials.json"

// credentialStore keeps Credentials as JSON in the session directory.
type credentialStore struct {
	path string
}

func newCredentialStore(sessionDir string) credentialStore {
	return credentialStore{path: filepath.Join(sessionDir, credentialsFile)}
}

// load returns os.ErrNotExist (wrapped) when nothing has been saved yet.
func (s credentialStore) load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing FCM credentials: %w", err)
	}
	return &creds, nil
}

// save replaces the file atomically, so a crash never leaves half a file behind.
func (s credentialStore) save(creds *Credentials) error {
	if creds == nil {
		return fmt.Errorf("no credentials to save")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing FCM credentials: %w", err)
	}

	tmp, err := os.CreateTemp(dir, credentialsFile+".*")
	if err != nil {
		return fmt.Errorf("writing FCM credentials: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing FCM credentials: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing FCM credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing FCM credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("writing FCM credentials: %w", err)
	}
	return nil
}
