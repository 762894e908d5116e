package keys

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"

	"github.com/hamzazf/shieldwallet/internal/shielded"
)

var ErrAuthorizationMismatch = errors.New("authorization context does not match account")

// AuthorizationContext holds the EdDSA key signing transfer posts.
type AuthorizationContext struct {
	key *eddsa.PrivateKey
}

// AuthorizationContextFromMnemonic derives the authorization key.
func AuthorizationContextFromMnemonic(m Mnemonic) (*AuthorizationContext, error) {
	r, err := m.reader(purposeAuthorization)
	if err != nil {
		return nil, err
	}
	key, err := eddsa.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("derive authorization key: %w", err)
	}
	return &AuthorizationContext{key: key}, nil
}

// AuthorizationContextFromBytes restores a context exported with Bytes.
func AuthorizationContextFromBytes(b []byte) (*AuthorizationContext, error) {
	key := new(eddsa.PrivateKey)
	if _, err := key.SetBytes(b); err != nil {
		return nil, fmt.Errorf("decode authorization context: %w", err)
	}
	return &AuthorizationContext{key: key}, nil
}

// Bytes exports the private key.
func (c *AuthorizationContext) Bytes() []byte {
	return c.key.Bytes()
}

// PublicKey returns the authorization key carried in signed posts.
func (c *AuthorizationContext) PublicKey() shielded.Group {
	return c.key.PublicKey.A
}

// Sign signs a post body digest.
func (c *AuthorizationContext) Sign(digest shielded.Field) (shielded.AuthorizationSignature, error) {
	msg := digest.Bytes()
	sigBytes, err := c.key.Sign(msg[:], mimc.NewMiMC())
	if err != nil {
		return shielded.AuthorizationSignature{}, fmt.Errorf("sign post: %w", err)
	}
	var sig eddsa.Signature
	if _, err := sig.SetBytes(sigBytes); err != nil {
		return shielded.AuthorizationSignature{}, fmt.Errorf("sign post: %w", err)
	}
	return shielded.AuthorizationSignature{
		AuthorizationKey: c.key.PublicKey.A,
		Signature:        shielded.Signature{Scalar: sig.S, NoncePoint: sig.R},
	}, nil
}

// VerifyAuthorization checks a signature over a post body digest.
func VerifyAuthorization(sig *shielded.AuthorizationSignature, digest shielded.Field) bool {
	pub := eddsa.PublicKey{A: sig.AuthorizationKey}
	es := eddsa.Signature{R: sig.Signature.NoncePoint, S: sig.Signature.Scalar}
	msg := digest.Bytes()
	ok, err := pub.Verify(es.Bytes(), msg[:], mimc.NewMiMC())
	return err == nil && ok
}

// SignPost signs the body digest of a post in place.
func (c *AuthorizationContext) SignPost(post *shielded.TransferPost) error {
	sig, err := c.Sign(post.BodyDigest())
	if err != nil {
		return err
	}
	post.AuthorizationSignature = &sig
	return nil
}

// VerifyPost checks the authorization signature of a post. Posts without
// senders carry no signature.
func VerifyPost(post *shielded.TransferPost) bool {
	if len(post.SenderPosts) == 0 {
		return post.AuthorizationSignature == nil
	}
	if post.AuthorizationSignature == nil {
		return false
	}
	return VerifyAuthorization(post.AuthorizationSignature, post.BodyDigest())
}
