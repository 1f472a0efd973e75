// Package vault is the encrypt-at-rest credential store. The plaintext
// is a JSON tree {customer: {device: credential}}; the on-disk file is
// a single AES-256-GCM blob. The master key comes from the environment
// and is never persisted.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

// MasterKeyEnv names the environment variable holding the base64
// encoded 32-byte master key. The unprefixed form is also accepted.
const (
	MasterKeyEnv       = "DRIFTWATCH_MASTER_KEY"
	MasterKeyEnvLegacy = "MASTER_KEY"
)

type tree map[string]map[string]schema.Credential

// Vault guards one encrypted credential file. Concurrent writers are
// not supported by the file format; the mutex serializes callers in
// this process.
type Vault struct {
	path string
	key  []byte

	mu sync.Mutex
}

// Open binds a vault to its file path, reading the master key from the
// environment. The file itself may not exist yet.
func Open(path string) (*Vault, error) {
	key, err := masterKey()
	if err != nil {
		return nil, err
	}
	return &Vault{path: path, key: key}, nil
}

func masterKey() ([]byte, error) {
	encoded := os.Getenv(MasterKeyEnv)
	if encoded == "" {
		encoded = os.Getenv(MasterKeyEnvLegacy)
	}
	if encoded == "" {
		return nil, fmt.Errorf("%w: set %s", util.ErrMasterKeyNotFound, MasterKeyEnv)
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("%w: key must be base64 of 32 bytes", util.ErrMasterKeyNotFound)
	}
	return key, nil
}

// GenerateKey returns a fresh base64-encoded master key.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Save merges one credential into the tree and rewrites the file
// atomically.
func (v *Vault) Save(customer, device string, cred schema.Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	t, err := v.load()
	if err != nil && err != util.ErrVaultMissing {
		return err
	}
	if t == nil {
		t = tree{}
	}
	if t[customer] == nil {
		t[customer] = map[string]schema.Credential{}
	}
	t[customer][device] = cred

	if err := v.store(t); err != nil {
		return err
	}
	util.WithFields(map[string]interface{}{
		"customer": customer,
		"device":   device,
	}).Info("credential saved")
	return nil
}

// Get returns the credential for (customer, device).
func (v *Vault) Get(customer, device string) (schema.Credential, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	t, err := v.load()
	if err != nil {
		if err == util.ErrVaultMissing {
			return schema.Credential{}, fmt.Errorf("%w: %s/%s", util.ErrCredentialNotFound, customer, device)
		}
		return schema.Credential{}, err
	}
	cred, ok := t[customer][device]
	if !ok {
		return schema.Credential{}, fmt.Errorf("%w: %s/%s", util.ErrCredentialNotFound, customer, device)
	}
	return cred, nil
}

// Delete removes one credential. Missing entries are not an error.
func (v *Vault) Delete(customer, device string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	t, err := v.load()
	if err != nil {
		if err == util.ErrVaultMissing {
			return nil
		}
		return err
	}
	if devices, ok := t[customer]; ok {
		delete(devices, device)
		if len(devices) == 0 {
			delete(t, customer)
		}
	}
	return v.store(t)
}

// ListCustomers returns every customer with stored credentials, sorted.
func (v *Vault) ListCustomers() ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	t, err := v.load()
	if err != nil {
		if err == util.ErrVaultMissing {
			return nil, nil
		}
		return nil, err
	}
	customers := make([]string, 0, len(t))
	for c := range t {
		customers = append(customers, c)
	}
	sort.Strings(customers)
	return customers, nil
}

// ListDevices returns every device of one customer, sorted.
func (v *Vault) ListDevices(customer string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	t, err := v.load()
	if err != nil {
		if err == util.ErrVaultMissing {
			return nil, nil
		}
		return nil, err
	}
	devices := make([]string, 0, len(t[customer]))
	for d := range t[customer] {
		devices = append(devices, d)
	}
	sort.Strings(devices)
	return devices, nil
}

// SNMPCommunities flattens the tree to {(customer, device): community}
// for the devices that carry one.
func (v *Vault) SNMPCommunities() (map[[2]string]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	t, err := v.load()
	if err != nil {
		if err == util.ErrVaultMissing {
			return map[[2]string]string{}, nil
		}
		return nil, err
	}
	out := map[[2]string]string{}
	for customer, devices := range t {
		for device, cred := range devices {
			if cred.SNMPCommunity != "" {
				out[[2]string{customer, device}] = cred.SNMPCommunity
			}
		}
	}
	return out, nil
}

func (v *Vault) load() (tree, error) {
	blob, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, util.ErrVaultMissing
		}
		return nil, fmt.Errorf("%w: %v", util.ErrVaultCorrupted, err)
	}

	plaintext, err := v.decrypt(blob)
	if err != nil {
		return nil, err
	}
	var t tree
	if err := json.Unmarshal(plaintext, &t); err != nil {
		return nil, fmt.Errorf("%w: payload is not valid JSON", util.ErrVaultCorrupted)
	}
	return t, nil
}

func (v *Vault) store(t tree) error {
	plaintext, err := json.Marshal(t)
	if err != nil {
		return err
	}
	blob, err := v.encrypt(plaintext)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(v.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	// chmod may fail on filesystems without POSIX modes; the write
	// above already requested 0600
	_ = os.Chmod(tmp, 0o600)
	return os.Rename(tmp, v.path)
}

func (v *Vault) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(encoded, sealed)
	return encoded, nil
}

func (v *Vault) decrypt(blob []byte) ([]byte, error) {
	sealed := make([]byte, base64.StdEncoding.DecodedLen(len(blob)))
	n, err := base64.StdEncoding.Decode(sealed, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: not a vault blob", util.ErrVaultCorrupted)
	}
	sealed = sealed[:n]

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: blob too short", util.ErrVaultCorrupted)
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decryption failed", util.ErrVaultCorrupted)
	}
	return plaintext, nil
}
