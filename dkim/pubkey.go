package dkim

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrMalformedKey is returned when the DER structure cannot be walked.
	ErrMalformedKey = errors.New("dkim: malformed public key")

	// ErrUnsupportedAlgorithm is returned when the key is not an RSA key.
	ErrUnsupportedAlgorithm = errors.New("dkim: unsupported key algorithm")
)

// KeyInfo describes a decoded public key.
type KeyInfo struct {
	// Algorithm is the key algorithm name, such as "RSA" or "Ed25519".
	Algorithm string

	// KeySizeBits is the key size. For RSA this is the modulus bit length.
	KeySizeBits int
}

// ASN.1 DER tags used in a SubjectPublicKeyInfo structure.
const (
	tagInteger          = 0x02
	tagBitString        = 0x03
	tagObjectIdentifier = 0x06
	tagSequence         = 0x30
)

// oidRSAEncryption is the encoded value of OID 1.2.840.113549.1.1.1.
var oidRSAEncryption = []byte{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x01, 0x01}

// DecodeRSAPublicKey extracts the algorithm and modulus size from a DER
// encoded SubjectPublicKeyInfo structure, as published in a DKIM p tag.
//
// It walks only as much of the structure as needed and rejects truncated or
// non-RSA input with an error instead of reading out of bounds.
func DecodeRSAPublicKey(der []byte) (*KeyInfo, error) {
	c := &derCursor{buf: der}

	if _, err := c.expect(tagSequence); err != nil {
		return nil, err
	}

	algLen, err := c.expect(tagSequence)
	if err != nil {
		return nil, err
	}
	algEnd := c.off + algLen
	if algEnd > len(c.buf) {
		return nil, fmt.Errorf("%w: algorithm identifier overruns input", ErrMalformedKey)
	}

	oidLen, err := c.expect(tagObjectIdentifier)
	if err != nil {
		return nil, err
	}
	oid, err := c.read(oidLen)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(oid, oidRSAEncryption) {
		return nil, fmt.Errorf("%w: OID is not rsaEncryption", ErrUnsupportedAlgorithm)
	}

	// Skip the algorithm parameters (a NULL for RSA).
	c.off = algEnd

	if _, err := c.expect(tagBitString); err != nil {
		return nil, err
	}
	unused, err := c.read(1)
	if err != nil {
		return nil, err
	}
	if unused[0] != 0x00 {
		return nil, fmt.Errorf("%w: bit string has unused bits", ErrMalformedKey)
	}

	if _, err := c.expect(tagSequence); err != nil {
		return nil, err
	}

	modLen, err := c.expect(tagInteger)
	if err != nil {
		return nil, err
	}
	modulus, err := c.read(modLen)
	if err != nil {
		return nil, err
	}
	// A positive INTEGER with its high bit set carries a zero padding byte.
	if len(modulus) > 1 && modulus[0] == 0x00 {
		modulus = modulus[1:]
	}
	if len(modulus) == 0 {
		return nil, fmt.Errorf("%w: empty modulus", ErrMalformedKey)
	}

	expLen, err := c.expect(tagInteger)
	if err != nil {
		return nil, err
	}
	if _, err := c.read(expLen); err != nil {
		return nil, err
	}

	return &KeyInfo{Algorithm: "RSA", KeySizeBits: len(modulus) * 8}, nil
}

// derCursor is a bounds-checked reader over a DER byte sequence.
type derCursor struct {
	buf []byte
	off int
}

// read returns the next n bytes and advances the cursor.
func (c *derCursor) read(n int) ([]byte, error) {
	if n < 0 || c.off+n > len(c.buf) {
		return nil, fmt.Errorf("%w: truncated at offset %d", ErrMalformedKey, c.off)
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// expect consumes a tag byte and its length. The tag must match.
func (c *derCursor) expect(tag byte) (int, error) {
	b, err := c.read(1)
	if err != nil {
		return 0, err
	}
	if b[0] != tag {
		return 0, fmt.Errorf("%w: expected tag 0x%02x at offset %d, got 0x%02x", ErrMalformedKey, tag, c.off-1, b[0])
	}
	return c.readLength()
}

// readLength decodes a DER length in short form or the one- and two-byte
// long forms, which covers every key size a DKIM record can carry.
func (c *derCursor) readLength() (int, error) {
	b, err := c.read(1)
	if err != nil {
		return 0, err
	}

	switch {
	case b[0] < 0x80:
		return int(b[0]), nil
	case b[0] == 0x81:
		n, err := c.read(1)
		if err != nil {
			return 0, err
		}
		return int(n[0]), nil
	case b[0] == 0x82:
		n, err := c.read(2)
		if err != nil {
			return 0, err
		}
		return int(n[0])<<8 | int(n[1]), nil
	default:
		return 0, fmt.Errorf("%w: unsupported length form 0x%02x", ErrMalformedKey, b[0])
	}
}
