package keystore

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/theblitlabs/parity-stake/pkg/logger"
)

const (
	DirName  = ".parity"
	FileName = "keystore.json"
)

var ErrNoPrivateKey = errors.New("no private key found in keystore")

// Config locates the keystore file.
type Config struct {
	DirPath  string
	FileName string
}

// Entry is the on-disk keystore document. A saved private key and a saved
// API token live side by side.
type Entry struct {
	PrivateKey string `json:"private_key,omitempty"`
	AuthToken  string `json:"auth_token,omitempty"`
	CreatedAt  int64  `json:"created_at,omitempty"`
}

// Keystore reads and writes a single JSON file with owner-only permissions.
type Keystore struct {
	path string
}

// DefaultConfig points at ~/.parity/keystore.json.
func DefaultConfig() (Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get home directory: %w", err)
	}
	return Config{DirPath: filepath.Join(homeDir, DirName), FileName: FileName}, nil
}

// NewKeystore creates the keystore directory if needed.
func NewKeystore(cfg Config) (*Keystore, error) {
	if cfg.DirPath == "" {
		return nil, fmt.Errorf("keystore directory is required")
	}
	if cfg.FileName == "" {
		cfg.FileName = FileName
	}
	if err := os.MkdirAll(cfg.DirPath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}
	return &Keystore{path: filepath.Join(cfg.DirPath, cfg.FileName)}, nil
}

// Path is the keystore file location.
func (k *Keystore) Path() string {
	return k.path
}

func (k *Keystore) load() (Entry, error) {
	var entry Entry
	data, err := os.ReadFile(k.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entry, nil
		}
		return entry, fmt.Errorf("failed to read keystore: %w", err)
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, fmt.Errorf("invalid keystore format: %w", err)
	}
	return entry, nil
}

func (k *Keystore) save(entry Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keystore: %w", err)
	}
	if err := os.WriteFile(k.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write keystore file: %w", err)
	}
	return nil
}

// SavePrivateKey validates and stores a hex private key, keeping any saved
// token. It returns the key's address.
func (k *Keystore) SavePrivateKey(privateKeyHex string) (common.Address, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid private key format: %w", err)
	}

	entry, err := k.load()
	if err != nil {
		return common.Address{}, err
	}
	entry.PrivateKey = privateKeyHex
	if err := k.save(entry); err != nil {
		return common.Address{}, err
	}

	address := crypto.PubkeyToAddress(key.PublicKey)
	log := logger.WithComponent("keystore")
	log.Info().Str("path", k.path).Str("address", address.Hex()).Msg("Saved private key to keystore")
	return address, nil
}

func (k *Keystore) LoadPrivateKey() (*ecdsa.PrivateKey, error) {
	entry, err := k.load()
	if err != nil {
		return nil, err
	}
	if entry.PrivateKey == "" {
		return nil, fmt.Errorf("%w at %s", ErrNoPrivateKey, k.path)
	}
	key, err := crypto.HexToECDSA(entry.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key in keystore: %w", err)
	}
	return key, nil
}

// SaveToken stores an issued API token, keeping any saved private key.
func (k *Keystore) SaveToken(token string, now time.Time) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	entry, err := k.load()
	if err != nil {
		return err
	}
	entry.AuthToken = token
	entry.CreatedAt = now.Unix()
	if err := k.save(entry); err != nil {
		return err
	}

	log := logger.WithComponent("keystore")
	log.Info().
		Str("path", k.path).
		Str("token_preview", token[:min(len(token), 10)]+"...").
		Msg("Saved token to keystore")
	return nil
}

// LoadToken returns the saved API token and when it was saved.
func (k *Keystore) LoadToken() (string, time.Time, error) {
	entry, err := k.load()
	if err != nil {
		return "", time.Time{}, err
	}
	if entry.AuthToken == "" {
		return "", time.Time{}, fmt.Errorf("no token found in keystore at %s", k.path)
	}
	return entry.AuthToken, time.Unix(entry.CreatedAt, 0), nil
}
