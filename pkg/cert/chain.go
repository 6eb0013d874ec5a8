package cert

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/falk/wadsplit-go/pkg/signature"
)

var (
	// ErrChainSize is returned when the certificates do not add up to the declared chain size.
	ErrChainSize = errors.New("cert: certificate chain size mismatch")
	ErrReleased  = errors.New("cert: certificate chain already released")
)

// Chain owns one contiguous buffer and the certificates decoded from it, in file order.
// Callers must not use a chain from several goroutines at once.
type Chain struct {
	raw   []byte
	certs []*Certificate
}

// Load reads certificates from r until exactly size bytes have been consumed.
// Either the whole chain is returned or nothing is.
func Load(r io.Reader, size int64) (*Chain, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: declared size %d", ErrChainSize, size)
	}

	limit := int(size)
	raw := make([]byte, 0, limit)
	var certs []*Certificate

	for len(raw) < limit {
		start := len(raw)
		var err error

		if raw, err = readN(r, raw, signature.TypeSize, limit); err != nil {
			return nil, err
		}
		sigType, err := signature.ParseType(binary.BigEndian.Uint32(raw[start:]))
		if err != nil {
			return nil, fmt.Errorf("certificate at 0x%x: %w", start, err)
		}

		if raw, err = readN(r, raw, sigType.BlockSize()-signature.TypeSize+CommonBlockSize, limit); err != nil {
			return nil, err
		}
		keyTagOffset := start + sigType.BlockSize() + NameSize
		keyType, err := ParsePubKeyType(binary.BigEndian.Uint32(raw[keyTagOffset:]))
		if err != nil {
			return nil, fmt.Errorf("certificate at 0x%x: %w", start, err)
		}

		if raw, err = readN(r, raw, keyType.BlockSize(), limit); err != nil {
			return nil, err
		}

		c, _, err := Decode(raw[start:])
		if err != nil {
			return nil, fmt.Errorf("certificate at 0x%x: %w", start, err)
		}
		c.offset = start
		certs = append(certs, c)

		log.WithFields(log.Fields{
			"name":   c.Common.NameString(),
			"issuer": c.Common.IssuerString(),
			"shape":  c.Shape(),
			"size":   c.Size(),
		}).Debug("loaded certificate")
	}

	return &Chain{raw: raw, certs: certs}, nil
}

// readN extends buf by n bytes from r without growing past limit.
// buf has capacity limit, so earlier sub-slices stay valid.
func readN(r io.Reader, buf []byte, n, limit int) ([]byte, error) {
	end := len(buf) + n
	if end > limit {
		return nil, fmt.Errorf("%w: certificate at 0x%x overruns declared size 0x%x", ErrChainSize, len(buf), limit)
	}
	if _, err := io.ReadFull(r, buf[len(buf):end]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	return buf[:end], nil
}

// Parse decodes a chain held in memory. The chain takes ownership of a copy of raw.
func Parse(raw []byte) (*Chain, error) {
	return Load(bytes.NewReader(raw), int64(len(raw)))
}

// Len returns the number of certificates, zero after Release.
func (c *Chain) Len() int {
	return len(c.certs)
}

// Certificates returns the certificates in file order.
func (c *Chain) Certificates() []*Certificate {
	return c.certs
}

// Bytes returns the buffer the chain was read from, byte for byte.
func (c *Chain) Bytes() []byte {
	return c.raw
}

// Size is the chain length in bytes.
func (c *Chain) Size() int {
	return len(c.raw)
}

// Lookup returns the certificate whose name field equals name, NUL padding included.
func (c *Chain) Lookup(name []byte) (*Certificate, error) {
	if c.raw == nil {
		return nil, ErrReleased
	}
	if len(name) > NameSize {
		return nil, fmt.Errorf("%w: %q", ErrIssuerNotFound, name)
	}
	want := make([]byte, NameSize)
	copy(want, name)
	for _, cert := range c.certs {
		if bytes.Equal(cert.Common.Name, want) {
			return cert, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrIssuerNotFound, bytes.TrimRight(want, "\x00"))
}

// Release drops the buffer and every certificate decoded from it.
func (c *Chain) Release() {
	c.raw = nil
	c.certs = nil
}
