// Package ecc implements ECDSA over sect233r1 (NIST B-233), the binary curve
// behind the ECC-480 signature and key types. Points are encoded as two
// 30-byte big endian coordinates, signatures as r||s with 30 bytes each.
package ecc

import (
	"errors"
	"fmt"
	"io"
	"math/big"
)

const (
	// CoordinateSize is the encoded size of one coordinate or scalar.
	CoordinateSize = 30
	// PublicKeySize is the encoded point size.
	PublicKeySize = 2 * CoordinateSize
	// SignatureSize is the encoded r||s size.
	SignatureSize = 2 * CoordinateSize
)

var (
	curveA = big.NewInt(1)
	curveB = mustHex("0066647ede6c332c7f8c0923bb58213b333b20e9ce4281fe115f7d8f90ad")
	baseX  = mustHex("00fac9dfcbac8313bb2139f1bb755fef65bc391f8b36f8f8eb7371fd558b")
	baseY  = mustHex("01006a08a41903350678e58528bebf8a0beff867a7ca36716f7e01f81052")
	order  = mustHex("01000000000000000000000000000013e974e72f8a6922031d2603cfe0d7")
)

var ErrInvalidPoint = errors.New("ecc: point is not on sect233r1")

func mustHex(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("ecc: bad constant " + s)
	}
	return v
}

type point struct {
	x, y *big.Int
	inf  bool
}

var infinity = point{inf: true}

func basePoint() point {
	return point{x: baseX, y: baseY}
}

func (p point) onCurve() bool {
	if p.inf {
		return true
	}
	if p.x.BitLen() > fieldBits || p.y.BitLen() > fieldBits {
		return false
	}
	// y^2 + xy = x^3 + ax^2 + b
	lhs := fieldAdd(fieldSqr(p.y), fieldMul(p.x, p.y))
	x2 := fieldSqr(p.x)
	rhs := fieldAdd(fieldAdd(fieldMul(x2, p.x), fieldMul(curveA, x2)), curveB)
	return lhs.Cmp(rhs) == 0
}

func (p point) double() point {
	if p.inf || p.x.Sign() == 0 {
		return infinity
	}
	lambda := fieldAdd(p.x, fieldDiv(p.y, p.x))
	x3 := fieldAdd(fieldAdd(fieldSqr(lambda), lambda), curveA)
	y3 := fieldAdd(fieldSqr(p.x), fieldMul(fieldAdd(lambda, one), x3))
	return point{x: x3, y: y3}
}

func (p point) add(q point) point {
	if p.inf {
		return q
	}
	if q.inf {
		return p
	}
	if p.x.Cmp(q.x) == 0 {
		if p.y.Cmp(q.y) == 0 {
			return p.double()
		}
		// q == -p
		return infinity
	}
	dx := fieldAdd(p.x, q.x)
	lambda := fieldDiv(fieldAdd(p.y, q.y), dx)
	x3 := fieldAdd(fieldAdd(fieldAdd(fieldSqr(lambda), lambda), dx), curveA)
	y3 := fieldAdd(fieldAdd(fieldMul(lambda, fieldAdd(p.x, x3)), x3), p.y)
	return point{x: x3, y: y3}
}

func (p point) mul(k *big.Int) point {
	r := infinity
	for i := k.BitLen() - 1; i >= 0; i-- {
		r = r.double()
		if k.Bit(i) == 1 {
			r = r.add(p)
		}
	}
	return r
}

// PublicKey is a point on sect233r1.
type PublicKey struct {
	X, Y *big.Int
}

// ParsePublicKey decodes a 60-byte x||y point and checks it lies on the curve.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("ecc: public key must be %d bytes, got %d", PublicKeySize, len(b))
	}
	pub := &PublicKey{
		X: new(big.Int).SetBytes(b[:CoordinateSize]),
		Y: new(big.Int).SetBytes(b[CoordinateSize:]),
	}
	p := pub.point()
	if (p.x.Sign() == 0 && p.y.Sign() == 0) || !p.onCurve() {
		return nil, ErrInvalidPoint
	}
	return pub, nil
}

func (k *PublicKey) point() point {
	return point{x: k.X, y: k.Y}
}

// Bytes encodes the key as x||y.
func (k *PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeySize)
	k.X.FillBytes(out[:CoordinateSize])
	k.Y.FillBytes(out[CoordinateSize:])
	return out
}

// PrivateKey is a scalar with its public point.
type PrivateKey struct {
	PublicKey
	D *big.Int
}

// GenerateKey draws a private scalar in [1, n-1].
func GenerateKey(rand io.Reader) (*PrivateKey, error) {
	d, err := randScalar(rand)
	if err != nil {
		return nil, err
	}
	q := basePoint().mul(d)
	return &PrivateKey{PublicKey: PublicKey{X: q.x, Y: q.y}, D: d}, nil
}

func randScalar(rand io.Reader) (*big.Int, error) {
	buf := make([]byte, CoordinateSize+8)
	if _, err := io.ReadFull(rand, buf); err != nil {
		return nil, err
	}
	nMinus1 := new(big.Int).Sub(order, one)
	k := new(big.Int).SetBytes(buf)
	k.Mod(k, nMinus1)
	return k.Add(k, one), nil
}

// hashToInt truncates the digest to the bit length of the group order.
func hashToInt(hash []byte) *big.Int {
	orderBits := order.BitLen()
	orderBytes := (orderBits + 7) / 8
	if len(hash) > orderBytes {
		hash = hash[:orderBytes]
	}
	e := new(big.Int).SetBytes(hash)
	if excess := len(hash)*8 - orderBits; excess > 0 {
		e.Rsh(e, uint(excess))
	}
	return e
}

// Sign produces a 60-byte r||s signature over a precomputed digest.
func Sign(rand io.Reader, priv *PrivateKey, hash []byte) ([]byte, error) {
	e := hashToInt(hash)
	for {
		k, err := randScalar(rand)
		if err != nil {
			return nil, err
		}
		kg := basePoint().mul(k)
		r := new(big.Int).Mod(kg.x, order)
		if r.Sign() == 0 {
			continue
		}
		s := new(big.Int).Mul(r, priv.D)
		s.Add(s, e)
		s.Mul(s, new(big.Int).ModInverse(k, order))
		s.Mod(s, order)
		if s.Sign() == 0 {
			continue
		}

		sig := make([]byte, SignatureSize)
		r.FillBytes(sig[:CoordinateSize])
		s.FillBytes(sig[CoordinateSize:])
		return sig, nil
	}
}

// Verify checks an r||s signature over a precomputed digest.
func Verify(pub *PublicKey, hash, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	r := new(big.Int).SetBytes(sig[:CoordinateSize])
	s := new(big.Int).SetBytes(sig[CoordinateSize:])
	if r.Sign() <= 0 || s.Sign() <= 0 || r.Cmp(order) >= 0 || s.Cmp(order) >= 0 {
		return false
	}

	e := hashToInt(hash)
	w := new(big.Int).ModInverse(s, order)
	u1 := new(big.Int).Mul(e, w)
	u1.Mod(u1, order)
	u2 := new(big.Int).Mul(r, w)
	u2.Mod(u2, order)

	x := basePoint().mul(u1).add(pub.point().mul(u2))
	if x.inf {
		return false
	}
	v := new(big.Int).Mod(x.x, order)
	return v.Cmp(r) == 0
}
