package nostr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// ErrBadSignature is returned by Verify for records whose id or signature
// does not match their contents.
var ErrBadSignature = errors.New("bad record signature")

// Signer turns unsigned templates into signed records for one public key.
type Signer interface {
	PublicKey() string
	Sign(t Template) (*Event, error)
}

// KeySigner signs with a local secp256k1 secret key (BIP-340 schnorr).
type KeySigner struct {
	priv   *btcec.PrivateKey
	pubKey string
}

// NewKeySigner builds a signer from a hex or nsec secret key.
func NewKeySigner(secret string) (*KeySigner, error) {
	hexKey, err := DecodeSecretKey(secret)
	if err != nil {
		return nil, err
	}
	raw, _ := hex.DecodeString(hexKey)
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return newKeySigner(priv), nil
}

// GenerateKeySigner creates a signer with a fresh random key.
func GenerateKeySigner() (*KeySigner, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newKeySigner(priv), nil
}

func newKeySigner(priv *btcec.PrivateKey) *KeySigner {
	return &KeySigner{
		priv:   priv,
		pubKey: hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey())),
	}
}

// PublicKey returns the x-only public key in hex.
func (s *KeySigner) PublicKey() string {
	return s.pubKey
}

// SecretKey returns the secret key in hex.
func (s *KeySigner) SecretKey() string {
	return hex.EncodeToString(s.priv.Serialize())
}

// Sign fills in pubkey, id and signature.
func (s *KeySigner) Sign(t Template) (*Event, error) {
	tags := t.Tags
	if tags == nil {
		tags = Tags{}
	}
	e := &Event{
		PubKey:    s.pubKey,
		CreatedAt: t.CreatedAt,
		Kind:      t.Kind,
		Tags:      tags,
		Content:   t.Content,
	}

	hash, err := e.Hash()
	if err != nil {
		return nil, err
	}
	sig, err := schnorr.Sign(s.priv, hash)
	if err != nil {
		return nil, fmt.Errorf("sign record: %w", err)
	}

	e.ID = hex.EncodeToString(hash)
	e.Sig = hex.EncodeToString(sig.Serialize())
	return e, nil
}

// Verify checks that the id matches the contents and that the signature is
// valid for the record's public key.
func Verify(e *Event) error {
	hash, err := e.Hash()
	if err != nil {
		return err
	}
	if hex.EncodeToString(hash) != e.ID {
		return fmt.Errorf("%w: id mismatch", ErrBadSignature)
	}

	pubRaw, err := hex.DecodeString(e.PubKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	pub, err := schnorr.ParsePubKey(pubRaw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	sigRaw, err := hex.DecodeString(e.Sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	sig, err := schnorr.ParseSignature(sigRaw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !sig.Verify(hash, pub) {
		return ErrBadSignature
	}
	return nil
}

// ===============================
// KEYRING
// ===============================

// Keyring maps public keys to the signers able to write on their behalf.
type Keyring struct {
	mu      sync.RWMutex
	signers map[string]Signer
}

// NewKeyring creates a keyring holding the given signers.
func NewKeyring(signers ...Signer) *Keyring {
	k := &Keyring{signers: make(map[string]Signer)}
	for _, s := range signers {
		k.Add(s)
	}
	return k
}

// Add registers a signer under its public key.
func (k *Keyring) Add(s Signer) {
	if s == nil {
		return
	}
	k.mu.Lock()
	k.signers[s.PublicKey()] = s
	k.mu.Unlock()
}

// Lookup returns the signer for a public key.
func (k *Keyring) Lookup(pubKey string) (Signer, bool) {
	if k == nil {
		return nil, false
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.signers[strings.ToLower(pubKey)]
	return s, ok
}

// Keys lists the registered public keys in sorted order.
func (k *Keyring) Keys() []string {
	if k == nil {
		return nil
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	keys := make([]string, 0, len(k.signers))
	for pk := range k.signers {
		keys = append(keys, pk)
	}
	sort.Strings(keys)
	return keys
}
