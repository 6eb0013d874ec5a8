// Package wadtest builds synthetic certificate chains, tickets, TMDs and WAD
// packages for tests. It writes raw bytes only so any package can use it.
package wadtest

import (
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	"sync"
	"testing"

	"github.com/falk/wadsplit-go/pkg/ecc"
	"github.com/falk/wadsplit-go/pkg/signature"
	"golang.org/x/crypto/cryptobyte"
)

const (
	KeyTypeRsa4096 uint32 = 0
	KeyTypeRsa2048 uint32 = 1
	KeyTypeEcc480  uint32 = 2
)

// Key is a certificate subject. A key without private material signs with random bytes.
type Key struct {
	Name    string
	KeyType uint32
	RSA     *rsa.PrivateKey
	ECC     *ecc.PrivateKey
}

var (
	rsa4096Once sync.Once
	rsa4096Key  *rsa.PrivateKey
	rsa4096Err  error
)

// NewRSAKey generates a 2048 or 4096 bit key. The 4096 bit key is generated once per test binary.
func NewRSAKey(t testing.TB, name string, bits int) *Key {
	t.Helper()
	k := &Key{Name: name, KeyType: KeyTypeRsa2048}
	if bits == 4096 {
		rsa4096Once.Do(func() {
			rsa4096Key, rsa4096Err = rsa.GenerateKey(rand.Reader, 4096)
		})
		if rsa4096Err != nil {
			t.Fatal(rsa4096Err)
		}
		k.KeyType = KeyTypeRsa4096
		k.RSA = rsa4096Key
		return k
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		t.Fatal(err)
	}
	k.RSA = priv
	return k
}

func NewECCKey(t testing.TB, name string) *Key {
	t.Helper()
	priv, err := ecc.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return &Key{Name: name, KeyType: KeyTypeEcc480, ECC: priv}
}

// RandomKey has public key bytes but cannot sign.
func RandomKey(name string, keyType uint32) *Key {
	return &Key{Name: name, KeyType: keyType}
}

func keySize(keyType uint32) int {
	switch keyType {
	case KeyTypeRsa4096:
		return 0x200
	case KeyTypeRsa2048:
		return 0x100
	}
	return 0x3C
}

// Block encodes the public key block for this key.
func (k *Key) Block(t testing.TB) []byte {
	t.Helper()
	size := keySize(k.KeyType)
	var b cryptobyte.Builder
	switch {
	case k.RSA != nil:
		mod := make([]byte, size)
		k.RSA.N.FillBytes(mod)
		b.AddBytes(mod)
		b.AddUint32(uint32(k.RSA.E))
		b.AddBytes(make([]byte, 0x34))
	case k.ECC != nil:
		b.AddBytes(k.ECC.PublicKey.Bytes())
		b.AddBytes(make([]byte, 0x3C))
	default:
		b.AddBytes(Random(t, size))
		if k.KeyType != KeyTypeEcc480 {
			b.AddUint32(0x10001)
			b.AddBytes(make([]byte, 0x34))
		} else {
			b.AddBytes(make([]byte, 0x3C))
		}
	}
	return b.BytesOrPanic()
}

// Sign signs body with the algorithm of typ. Nil keys, keys without private
// material and HMAC types produce random signature bytes.
func (k *Key) Sign(t testing.TB, typ signature.Type, body []byte) []byte {
	t.Helper()
	h := typ.Hash().New()
	h.Write(body)
	digest := h.Sum(nil)

	switch {
	case k == nil || typ.Family() == signature.FamilyHmac160:
	case k.RSA != nil:
		sig, err := rsa.SignPKCS1v15(rand.Reader, k.RSA, typ.Hash(), digest)
		if err != nil {
			t.Fatal(err)
		}
		return sig
	case k.ECC != nil:
		sig, err := ecc.Sign(rand.Reader, k.ECC, digest)
		if err != nil {
			t.Fatal(err)
		}
		return sig
	}
	return Random(t, typ.SignatureSize())
}

// Random returns n bytes from crypto/rand.
func Random(t testing.TB, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatal(err)
	}
	return b
}

// Name pads s to a 64-byte name field.
func Name(s string) []byte {
	b := make([]byte, 0x40)
	copy(b, s)
	return b
}

// Signed prefixes body with a signature block of type typ made by signer.
func Signed(t testing.TB, typ signature.Type, signer *Key, body []byte) []byte {
	t.Helper()
	block := signature.Block{Type: typ, Signature: signer.Sign(t, typ, body)}
	out, err := block.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	return append(out, body...)
}

// Certificate encodes subject's certificate issued under issuer and signed by signer.
func Certificate(t testing.TB, typ signature.Type, issuer string, signer, subject *Key) []byte {
	t.Helper()
	var b cryptobyte.Builder
	b.AddBytes(Name(issuer))
	b.AddUint32(subject.KeyType)
	b.AddBytes(Name(subject.Name))
	b.AddUint32(0x4D4C3A1E)
	b.AddBytes(subject.Block(t))
	return Signed(t, typ, signer, b.BytesOrPanic())
}

// Fixture is a three level chain: CA issued by an absent root, XS and CP issued by CA.
type Fixture struct {
	CA, XS, CP *Key
	CACert     []byte
	XSCert     []byte
	CPCert     []byte
}

const (
	TicketIssuer = "Root-CA00000001-XS00000003"
	TMDIssuer    = "Root-CA00000001-CP00000004"
)

func NewFixture(t testing.TB) *Fixture {
	t.Helper()
	f := &Fixture{
		CA: NewRSAKey(t, "CA00000001", 2048),
		XS: NewRSAKey(t, "XS00000003", 2048),
		CP: NewRSAKey(t, "CP00000004", 2048),
	}
	f.CACert = Certificate(t, signature.TypeRsa4096Sha1, "Root", nil, f.CA)
	f.XSCert = Certificate(t, signature.TypeRsa2048Sha1, "Root-CA00000001", f.CA, f.XS)
	f.CPCert = Certificate(t, signature.TypeRsa2048Sha1, "Root-CA00000001", f.CA, f.CP)
	return f
}

// Chain returns CA, XS and CP certificates concatenated.
func (f *Fixture) Chain() []byte {
	var out []byte
	out = append(out, f.CACert...)
	out = append(out, f.XSCert...)
	out = append(out, f.CPCert...)
	return out
}

// TicketBody returns an unsigned ticket body (everything after the signature block).
func TicketBody(titleID uint64, encTitleKey []byte, commonKeyIndex uint8) []byte {
	var b cryptobyte.Builder
	b.AddBytes(Name(TicketIssuer))
	b.AddBytes(make([]byte, 0x3C)) // ECDH data
	b.AddUint8(0)                  // version
	b.AddBytes(make([]byte, 2))
	key := make([]byte, 16)
	copy(key, encTitleKey)
	b.AddBytes(key)
	b.AddUint8(0)
	b.AddUint64(0x0001000000000001) // ticket id
	b.AddUint32(0)                  // console id
	b.AddUint64(titleID)
	b.AddUint16(0xFFFF)
	b.AddUint16(0) // title version
	b.AddUint32(0) // permitted titles mask
	b.AddUint32(0) // permit mask
	b.AddUint8(0)  // title export allowed
	b.AddUint8(commonKeyIndex)
	b.AddBytes(make([]byte, 0x30))
	b.AddBytes(make([]byte, 0x40)) // content access permissions
	b.AddBytes(make([]byte, 2))
	b.AddBytes(make([]byte, 0x40)) // time limits
	return b.BytesOrPanic()
}

// Ticket returns a ticket signed by the fixture's XS key.
func (f *Fixture) Ticket(t testing.TB, titleID uint64, encTitleKey []byte) []byte {
	t.Helper()
	return Signed(t, signature.TypeRsa2048Sha1, f.XS, TicketBody(titleID, encTitleKey, 0))
}

// Content describes one TMD content record.
type Content struct {
	ID    uint32
	Index uint16
	Type  uint16
	Size  uint64
	Hash  [20]byte
}

const (
	ContentTypeNormal = 0x0001
	ContentTypeDLC    = 0x4001
)

// TMDBody returns an unsigned TMD body.
func TMDBody(titleID uint64, contents []Content) []byte {
	var b cryptobyte.Builder
	b.AddBytes(Name(TMDIssuer))
	b.AddUint8(0) // version
	b.AddUint8(0) // CA CRL version
	b.AddUint8(0) // signer CRL version
	b.AddUint8(0) // vWii title
	b.AddUint64(0x000000010000003A)
	b.AddUint64(titleID)
	b.AddUint32(1)      // title type
	b.AddUint16(0x3031) // group id
	b.AddUint16(0)
	b.AddUint16(3) // region
	b.AddBytes(make([]byte, 16))
	b.AddBytes(make([]byte, 12))
	b.AddBytes(make([]byte, 12))
	b.AddBytes(make([]byte, 18))
	b.AddUint32(0)  // access rights
	b.AddUint16(16) // title version
	b.AddUint16(uint16(len(contents)))
	b.AddUint16(0) // boot index
	b.AddUint16(0)
	for _, c := range contents {
		b.AddUint32(c.ID)
		b.AddUint16(c.Index)
		b.AddUint16(c.Type)
		b.AddUint64(c.Size)
		b.AddBytes(c.Hash[:])
	}
	return b.BytesOrPanic()
}

// TMD returns a TMD signed by the fixture's CP key.
func (f *Fixture) TMD(t testing.TB, titleID uint64, contents []Content) []byte {
	t.Helper()
	return Signed(t, signature.TypeRsa2048Sha1, f.CP, TMDBody(titleID, contents))
}

// Align rounds n up to a multiple of a.
func Align(n, a int) int {
	return (n + a - 1) / a * a
}

func pad(b []byte) []byte {
	return append(b, make([]byte, Align(len(b), 0x40)-len(b))...)
}

// WAD assembles an installable package. Each content is padded to 64 bytes
// inside the data region; data_size is the sum of the padded contents.
func WAD(chain, ticket, tmd []byte, contents [][]byte, footer []byte) []byte {
	var data []byte
	for _, c := range contents {
		data = append(data, pad(append([]byte(nil), c...))...)
	}

	var h cryptobyte.Builder
	h.AddUint32(0x20)
	h.AddUint16(0x4973)
	h.AddUint16(0)
	h.AddUint32(uint32(len(chain)))
	h.AddUint32(0)
	h.AddUint32(uint32(len(ticket)))
	h.AddUint32(uint32(len(tmd)))
	h.AddUint32(uint32(len(data)))
	h.AddUint32(uint32(len(footer)))

	out := pad(h.BytesOrPanic())
	out = append(out, pad(append([]byte(nil), chain...))...)
	out = append(out, pad(append([]byte(nil), ticket...))...)
	out = append(out, pad(append([]byte(nil), tmd...))...)
	out = append(out, data...)
	out = append(out, footer...)
	return out
}
