// Package vault holds the signing-key vault: the component authorized to
// decrypt a user's private key for the duration of exactly one Chain
// Gateway call. Keys are encrypted at rest with AES-256-GCM, with the
// encryption key itself derived per-record via Argon2id so a leaked
// ciphertext is useless without the vault's master passphrase.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 4
	argonMemory  = 256 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
	nonceLen     = 12

	encodingVersion = 1
)

// sealedKey is the on-disk/in-memory representation of one encrypted
// private key: the Argon2id parameters travel with the ciphertext so a
// future tuning change can still decrypt old records.
type sealedKey struct {
	version uint8
	time    uint32
	memory  uint32
	threads uint8
	salt    []byte
	nonce   []byte
	cipher  []byte
}

func seal(plaintext []byte, passphrase []byte) (sealedKey, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return sealedKey{}, fmt.Errorf("vault: generating salt: %w", err)
	}

	key := argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return sealedKey{}, fmt.Errorf("vault: building cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return sealedKey{}, fmt.Errorf("vault: building GCM: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return sealedKey{}, fmt.Errorf("vault: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	return sealedKey{
		version: encodingVersion,
		time:    argonTime,
		memory:  argonMemory,
		threads: argonThreads,
		salt:    salt,
		nonce:   nonce,
		cipher:  ciphertext,
	}, nil
}

func (s sealedKey) open(passphrase []byte) ([]byte, error) {
	key := argon2.IDKey(passphrase, s.salt, s.time, s.memory, uint8(s.threads), argonKeyLen)
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: building cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: building GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, s.nonce, s.cipher, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypting record: %w", err)
	}
	return plaintext, nil
}

// serialize packs a sealedKey into a single binary blob: version, argon2
// parameters, salt, nonce, ciphertext — mirroring the field order used when
// decrypting, so the format is self-describing across parameter changes.
func (s sealedKey) serialize() []byte {
	var buf bytes.Buffer
	buf.WriteByte(s.version)
	_ = binary.Write(&buf, binary.BigEndian, s.time)
	_ = binary.Write(&buf, binary.BigEndian, s.memory)
	buf.WriteByte(s.threads)
	buf.WriteByte(uint8(len(s.salt)))
	buf.Write(s.salt)
	buf.WriteByte(uint8(len(s.nonce)))
	buf.Write(s.nonce)
	buf.Write(s.cipher)
	return buf.Bytes()
}

func deserializeSealedKey(blob []byte) (sealedKey, error) {
	r := bytes.NewReader(blob)

	version, err := r.ReadByte()
	if err != nil {
		return sealedKey{}, fmt.Errorf("vault: reading version: %w", err)
	}

	var t, m uint32
	if err := binary.Read(r, binary.BigEndian, &t); err != nil {
		return sealedKey{}, fmt.Errorf("vault: reading time cost: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &m); err != nil {
		return sealedKey{}, fmt.Errorf("vault: reading memory cost: %w", err)
	}

	threads, err := r.ReadByte()
	if err != nil {
		return sealedKey{}, fmt.Errorf("vault: reading thread count: %w", err)
	}

	saltSize, err := r.ReadByte()
	if err != nil {
		return sealedKey{}, fmt.Errorf("vault: reading salt length: %w", err)
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(r, salt); err != nil {
		return sealedKey{}, fmt.Errorf("vault: reading salt: %w", err)
	}

	nonceSize, err := r.ReadByte()
	if err != nil {
		return sealedKey{}, fmt.Errorf("vault: reading nonce length: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(r, nonce); err != nil {
		return sealedKey{}, fmt.Errorf("vault: reading nonce: %w", err)
	}

	ciphertext, err := io.ReadAll(r)
	if err != nil {
		return sealedKey{}, fmt.Errorf("vault: reading ciphertext: %w", err)
	}

	return sealedKey{
		version: version,
		time:    t,
		memory:  m,
		threads: threads,
		salt:    salt,
		nonce:   nonce,
		cipher:  ciphertext,
	}, nil
}

// zero overwrites b in place so a derived key doesn't linger in memory
// longer than the call that used it.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
