package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"log/slog"
)

var ErrFingerprintMismatch = errors.New("fingerprint mismatch")

// Signer produces keyed HMAC-SHA256 fingerprints of ledger state.
type Signer struct {
	secretKey []byte
	logger    *slog.Logger
}

func NewSigner(secretKey string, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{
		secretKey: []byte(secretKey),
		logger:    logger,
	}
}

// Digest starts an incremental fingerprint. Records are written in the
// order given, so callers must feed them in a deterministic order.
func (s *Signer) Digest() *Digest {
	return &Digest{mac: hmac.New(sha256.New, s.secretKey), signer: s}
}

func (s *Signer) compare(expected, received string) error {
	if !hmac.Equal([]byte(expected), []byte(received)) {
		s.logger.Warn("Fingerprint verification failed",
			slog.String("expected", expected),
			slog.String("received", received))
		return ErrFingerprintMismatch
	}
	return nil
}

type Digest struct {
	mac    hash.Hash
	signer *Signer
}

// Record writes one line made of the given fields separated by '|'.
func (d *Digest) Record(fields ...any) *Digest {
	for i, f := range fields {
		if i > 0 {
			d.mac.Write([]byte{'|'})
		}
		fmt.Fprint(d.mac, f)
	}
	d.mac.Write([]byte{'\n'})
	return d
}

func (d *Digest) Sum() string {
	return hex.EncodeToString(d.mac.Sum(nil))
}

func (d *Digest) Verify(signature string) error {
	return d.signer.compare(d.Sum(), signature)
}
