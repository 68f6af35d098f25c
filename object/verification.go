package object

import (
	"bytes"
	"errors"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// ErrUnsupportedSignatureType is returned by Verify when the embedded
// signature is not an OpenPGP signature; the engine's core object layer
// only verifies OpenPGP (SSH signature verification lives at the worktree/
// porcelain layer in the teacher and is out of this module's scope).
var ErrUnsupportedSignatureType = errors.New("object: unsupported signature type for verification")

// Verify checks a commit's gpgsig trailer against armoredKeyRing (one or
// more ASCII-armored OpenPGP public keys) and returns the signing entity.
func (c *Commit) Verify(armoredKeyRing string) (*openpgp.Entity, error) {
	if c.PGPSignature == "" {
		return nil, errors.New("object: commit has no signature")
	}
	if DetectSignatureType([]byte(c.PGPSignature)) != SignatureTypeOpenPGP {
		return nil, ErrUnsupportedSignatureType
	}

	unsigned := *c
	unsigned.PGPSignature = ""
	payload, err := unsigned.Encode()
	if err != nil {
		return nil, err
	}

	return verifyDetached(payload, c.PGPSignature, armoredKeyRing)
}

// Verify checks a tag's signature trailer against armoredKeyRing.
func (t *Tag) Verify(armoredKeyRing string) (*openpgp.Entity, error) {
	if t.PGPSignature == "" {
		return nil, errors.New("object: tag has no signature")
	}
	if DetectSignatureType([]byte(t.PGPSignature)) != SignatureTypeOpenPGP {
		return nil, ErrUnsupportedSignatureType
	}

	unsigned := *t
	unsigned.PGPSignature = ""
	payload, err := unsigned.Encode()
	if err != nil {
		return nil, err
	}
	// With a signature present, Encode adds a newline after the message
	// (before the signature block) when the message lacks one; the
	// unsigned payload must match exactly what was originally signed, so
	// the same final newline is added here.
	if !strings.HasSuffix(string(payload), "\n") {
		payload = append(payload, '\n')
	}

	return verifyDetached(payload, t.PGPSignature, armoredKeyRing)
}

func verifyDetached(signed []byte, armoredSignature, armoredKeyRing string) (*openpgp.Entity, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKeyRing))
	if err != nil {
		return nil, err
	}

	entity, err := openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(signed), strings.NewReader(armoredSignature), nil)
	if err != nil {
		return nil, err
	}

	return entity, nil
}
