package vault

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is a decrypted signing identity, valid only for the call that
// requested it. Callers must invoke Zero when done to scrub the key.
type Signer struct {
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// Zero scrubs the private key's scalar from memory. It does not make the
// key unrecoverable (Go's GC may have already copied it), but it removes
// the one long-lived copy the vault controls.
func (s *Signer) Zero() {
	if s.Key == nil {
		return
	}
	s.Key.D.SetInt64(0)
}

// Vault is the key-vault collaborator's contract from the core's side: a
// way to resolve an owner key to a decrypted signer for one call.
type Vault interface {
	Resolve(ctx context.Context, ownerKey string) (*Signer, error)
}

// LocalVault is a development/self-hosted Vault implementation: private
// keys are encrypted at rest with a single master passphrase and held
// in-memory, encrypted, until resolved.
type LocalVault struct {
	mu         sync.RWMutex
	passphrase []byte
	records    map[string]sealedKey
}

// NewLocalVault builds a LocalVault whose records are encrypted under masterPassphrase.
func NewLocalVault(masterPassphrase string) *LocalVault {
	return &LocalVault{
		passphrase: []byte(masterPassphrase),
		records:    make(map[string]sealedKey),
	}
}

// Register encrypts privateKeyHex and stores it under ownerKey, replacing
// any prior registration for that owner.
func (v *LocalVault) Register(ownerKey, privateKeyHex string) error {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return fmt.Errorf("vault: parsing private key for %s: %w", ownerKey, err)
	}
	defer key.D.SetInt64(0)

	sealed, err := seal(crypto.FromECDSA(key), v.passphrase)
	if err != nil {
		return fmt.Errorf("vault: sealing key for %s: %w", ownerKey, err)
	}

	v.mu.Lock()
	v.records[ownerKey] = sealed
	v.mu.Unlock()
	return nil
}

// Resolve decrypts and returns the signer registered for ownerKey.
func (v *LocalVault) Resolve(ctx context.Context, ownerKey string) (*Signer, error) {
	v.mu.RLock()
	sealed, ok := v.records[ownerKey]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("vault: no signer registered for owner %q", ownerKey)
	}

	raw, err := sealed.open(v.passphrase)
	if err != nil {
		return nil, fmt.Errorf("vault: resolving signer for %q: %w", ownerKey, err)
	}
	defer zero(raw)

	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("vault: reconstructing key for %q: %w", ownerKey, err)
	}

	return &Signer{Address: crypto.PubkeyToAddress(key.PublicKey), Key: key}, nil
}

// Export serializes ownerKey's sealed record, e.g. for persisting to disk
// between process restarts.
func (v *LocalVault) Export(ownerKey string) ([]byte, error) {
	v.mu.RLock()
	sealed, ok := v.records[ownerKey]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("vault: no signer registered for owner %q", ownerKey)
	}
	return sealed.serialize(), nil
}

// Import loads a previously exported sealed record under ownerKey.
func (v *LocalVault) Import(ownerKey string, blob []byte) error {
	sealed, err := deserializeSealedKey(blob)
	if err != nil {
		return fmt.Errorf("vault: importing record for %q: %w", ownerKey, err)
	}
	v.mu.Lock()
	v.records[ownerKey] = sealed
	v.mu.Unlock()
	return nil
}
