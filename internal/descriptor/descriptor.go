// Package descriptor persists the broker's connection details so
// clients can discover how to reach it. The daemon writes the file once
// the listener is bound; clients read it, or watch it to notice a
// broker restarting on a fresh address or key.
package descriptor

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"

	"github.com/beanfork/mbus/internal/wire"
)

// Descriptor is the serialized (address, authkey) pair.
type Descriptor struct {
	// Address is the broker's listen address, host:port.
	Address string `json:"address"`
	// AuthKey is the hex-encoded shared secret.
	AuthKey string `json:"authkey"`
}

// URL returns the websocket URL for the broker's relay endpoint,
// ready to hand to bridge.Dial.
func (d Descriptor) URL() string {
	return "ws://" + d.Address + wire.RelayPath
}

// Key decodes the hex authkey into its raw bytes.
func (d Descriptor) Key() ([]byte, error) {
	key, err := hex.DecodeString(d.AuthKey)
	if err != nil {
		return nil, fmt.Errorf("descriptor: bad authkey: %w", err)
	}
	return key, nil
}

// Write stores d at path with owner-only permissions. Unless overwrite
// is set, an existing file is an error rather than silently replaced;
// the key inside is a secret someone may still be using.
func Write(fs afero.Fs, path string, d Descriptor, overwrite bool) error {
	if !overwrite {
		if _, err := fs.Stat(path); err == nil {
			return fmt.Errorf("descriptor: %s already exists", path)
		}
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("descriptor: encoding: %w", err)
	}
	if err := afero.WriteFile(fs, path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("descriptor: writing %s: %w", path, err)
	}
	return nil
}

// Read loads the descriptor stored at path.
func Read(fs afero.Fs, path string) (Descriptor, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Descriptor{}, fmt.Errorf("descriptor: %s not found (is the broker running?): %w", path, err)
		}
		return Descriptor{}, fmt.Errorf("descriptor: reading %s: %w", path, err)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("descriptor: parsing %s: %w", path, err)
	}
	if d.Address == "" || d.AuthKey == "" {
		return Descriptor{}, fmt.Errorf("descriptor: %s is incomplete", path)
	}
	return d, nil
}
