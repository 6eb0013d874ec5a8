package cert

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/falk/wadsplit-go/pkg/ecc"
	"github.com/falk/wadsplit-go/pkg/signature"
)

var (
	// ErrIssuerNotFound means no certificate in the chain carries the payload issuer's name.
	ErrIssuerNotFound   = errors.New("cert: issuing certificate not found")
	ErrMalformedPayload = errors.New("cert: malformed signed payload")
	ErrKeyMismatch      = errors.New("cert: issuer key type does not match signature type")
)

// Status is the outcome of a signature check that was able to run.
type Status int

const (
	// StatusValid means the signature verified against the issuer's key.
	StatusValid Status = iota
	// StatusInvalid means the check ran and the signature did not verify.
	StatusInvalid
	// StatusUnsupported means the algorithm cannot be checked with chain data alone.
	// HMAC-160 signatures need a shared secret no certificate carries.
	StatusUnsupported
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusUnsupported:
		return "unsupported"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result describes a completed verification.
type Result struct {
	Status Status
	Type   signature.Type
	Issuer *Certificate
}

// Verified reports whether the signature was cryptographically confirmed.
func (r Result) Verified() bool {
	return r.Status == StatusValid
}

// IssuerName returns the name of the certificate that signs an issuer path such
// as "Root-CA00000001-XS00000003": its last dash separated component.
func IssuerName(issuer []byte) []byte {
	issuer = bytes.TrimRight(issuer, "\x00")
	if i := bytes.LastIndexByte(issuer, '-'); i >= 0 {
		return issuer[i+1:]
	}
	return issuer
}

// VerifyPayload checks the signature of a signed payload such as a ticket, a TMD or a certificate.
// payload must span exactly the signed record. A returned error means the check could not run;
// otherwise Result.Status carries the cryptographic outcome.
func (c *Chain) VerifyPayload(payload []byte) (Result, error) {
	if c.raw == nil {
		return Result{}, ErrReleased
	}

	sig, body, err := signature.Decode(payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if len(body) < NameSize {
		return Result{}, fmt.Errorf("%w: missing issuer field", ErrMalformedPayload)
	}

	issuer, err := c.Lookup(IssuerName(body[:NameSize]))
	if err != nil {
		return Result{}, err
	}

	res := Result{Type: sig.Type, Issuer: issuer}
	ok, err := verifyWith(issuer, sig, body)
	if err != nil {
		return Result{}, err
	}
	switch {
	case sig.Type.Family() == signature.FamilyHmac160:
		res.Status = StatusUnsupported
	case ok:
		res.Status = StatusValid
	default:
		res.Status = StatusInvalid
	}

	log.WithFields(log.Fields{
		"issuer": issuer.Common.NameString(),
		"type":   sig.Type,
		"status": res.Status,
	}).Debug("verified signed payload")
	return res, nil
}

func verifyWith(issuer *Certificate, sig *signature.Block, body []byte) (bool, error) {
	hash := sig.Type.Hash()
	keyType := issuer.Common.KeyType

	switch sig.Type.Family() {
	case signature.FamilyRsa4096, signature.FamilyRsa2048:
		want := PubKeyRsa4096
		if sig.Type.Family() == signature.FamilyRsa2048 {
			want = PubKeyRsa2048
		}
		if keyType != want {
			return false, fmt.Errorf("%w: %s signature, %s key", ErrKeyMismatch, sig.Type, keyType)
		}
		pub, err := issuer.RSAPublicKey()
		if err != nil {
			return false, err
		}
		return rsa.VerifyPKCS1v15(pub, hash, digest(hash, body), sig.Signature) == nil, nil

	case signature.FamilyEcc480:
		if keyType != PubKeyEcc480 {
			return false, fmt.Errorf("%w: %s signature, %s key", ErrKeyMismatch, sig.Type, keyType)
		}
		pub, err := issuer.ECCPublicKey()
		if err != nil {
			return false, fmt.Errorf("cert: %s: %w", issuer.Common.NameString(), err)
		}
		return ecc.Verify(pub, digest(hash, body), sig.Signature), nil

	case signature.FamilyHmac160:
		return false, nil
	}
	return false, fmt.Errorf("%w: %s", signature.ErrUnknownType, sig.Type)
}

func digest(hash crypto.Hash, data []byte) []byte {
	h := hash.New()
	h.Write(data)
	return h.Sum(nil)
}

// CertificateResult is the outcome for one certificate of the chain.
// Err is set when the check could not run, typically because the issuer
// (for example the root key) is not part of the chain.
type CertificateResult struct {
	Certificate *Certificate
	Result      Result
	Err         error
}

// VerifyCertificates checks every certificate whose issuer is present in the chain.
func (c *Chain) VerifyCertificates() ([]CertificateResult, error) {
	if c.raw == nil {
		return nil, ErrReleased
	}
	results := make([]CertificateResult, 0, len(c.certs))
	for _, cert := range c.certs {
		res, err := c.VerifyPayload(cert.Raw())
		results = append(results, CertificateResult{Certificate: cert, Result: res, Err: err})
	}
	return results, nil
}
