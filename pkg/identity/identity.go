package identity

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// KeyPair holds all forms of the private and public keys
type KeyPair struct {
	PrivateKeyHex    string
	PrivateKeyBech32 string
	PublicKeyHex     string
	PublicKeyBech32  string
}

// DeriveKeyPair accepts a private key as 64 hex characters or an nsec string.
func DeriveKeyPair(secretKey string) (*KeyPair, error) {
	var skHex string

	if len(secretKey) == 64 {
		if _, err := hex.DecodeString(secretKey); err != nil {
			return nil, fmt.Errorf("secret key is not a valid hex private key")
		}
		skHex = secretKey
	} else {
		prefix, sk, err := nip19.Decode(secretKey)
		if err != nil {
			return nil, fmt.Errorf("secret key is invalid: %w", err)
		}
		if prefix != "nsec" {
			return nil, errors.New("secret key is not an nsec or valid hex")
		}

		switch v := sk.(type) {
		case string:
			skHex = v
		case []byte:
			skHex = hex.EncodeToString(v)
		default:
			return nil, errors.New("secret key is an unexpected nsec payload type")
		}
	}

	pubHex, err := nostr.GetPublicKey(skHex)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	nsec, err := nip19.EncodePrivateKey(skHex)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	npub, err := nip19.EncodePublicKey(pubHex)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}

	return &KeyPair{
		PrivateKeyHex:    skHex,
		PrivateKeyBech32: nsec,
		PublicKeyHex:     pubHex,
		PublicKeyBech32:  npub,
	}, nil
}

// Sign stamps the public key on ev and signs it.
func (k KeyPair) Sign(ev *nostr.Event) error {
	if k.PrivateKeyHex == "" {
		return errors.New("no private key")
	}
	ev.PubKey = k.PublicKeyHex
	if err := ev.Sign(k.PrivateKeyHex); err != nil {
		return fmt.Errorf("failed to sign event: %w", err)
	}
	return nil
}
