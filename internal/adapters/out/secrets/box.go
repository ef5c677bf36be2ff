// Package secrets seals cluster API secrets at rest with an AEAD cipher.
// Each sealed value carries its own random nonce, so the same plaintext never
// produces the same ciphertext twice.
package secrets

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/virtwarden/virtwarden/internal/boundaries/out"
	"github.com/virtwarden/virtwarden/internal/domain"
)

// Box seals and opens secrets with XChaCha20-Poly1305.
type Box struct {
	aead cipher.AEAD
}

// NewBox builds a Box from a hex-encoded 32-byte key.
func NewBox(hexKey string) (*Box, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("credentials key is not valid hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("credentials key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to build cipher: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext and prepends the nonce.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return b.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a value produced by Seal. Tampered or truncated input fails.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("sealed value is too short")
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed secret: %w", err)
	}
	return plaintext, nil
}

// Provider resolves opened credentials for a cluster by loading the sealed
// secret from the cluster store and opening it.
type Provider struct {
	clusters out.ClusterStore
	box      *Box
}

// NewProvider builds a credential provider over a cluster store.
func NewProvider(clusters out.ClusterStore, box *Box) *Provider {
	return &Provider{clusters: clusters, box: box}
}

// Resolve implements out.CredentialProvider.
func (p *Provider) Resolve(ctx context.Context, clusterID string) (domain.ClusterCredentials, error) {
	c, err := p.clusters.GetCluster(ctx, clusterID)
	if err != nil {
		return domain.ClusterCredentials{}, err
	}
	secret, err := p.box.Open(c.SealedSecret)
	if err != nil {
		return domain.ClusterCredentials{}, fmt.Errorf("cluster %s: %w", clusterID, err)
	}
	return domain.ClusterCredentials{
		APIURL:   c.APIURL,
		Username: c.Username,
		Password: string(secret),
	}, nil
}
