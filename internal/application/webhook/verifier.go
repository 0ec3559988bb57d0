package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/channelsync/backend/internal/domain/connector"
)

var (
	// ErrMissingSecret means the store has no webhook secret configured
	ErrMissingSecret = errors.New("webhook: missing signing secret")
	// ErrMissingSignature means the delivery carried no signature header
	ErrMissingSignature = errors.New("webhook: missing signature header")
	// ErrSignatureMismatch means the HMAC over the raw body did not match
	ErrSignatureMismatch = errors.New("webhook: signature mismatch")
	// ErrDomainMismatch means the declared shop domain belongs to a
	// different store
	ErrDomainMismatch = errors.New("webhook: shop domain mismatch")
)

// Verifier checks webhook authenticity against a marketplace signing scheme.
// The HMAC is always computed over the exact raw request body; any
// re-serialization before verification breaks the signature.
type Verifier struct{}

// NewVerifier creates a webhook verifier
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify checks the delivery signature and, when the scheme declares a
// domain header, that the declared shop domain matches the store's
func (v *Verifier) Verify(scheme connector.WebhookScheme, secret string, header func(string) string, body []byte, storeDomain string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	provided := header(scheme.SignatureHeader)
	if provided == "" || len(body) == 0 {
		return ErrMissingSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	digest := mac.Sum(nil)

	var expected string
	switch scheme.Encoding {
	case connector.SignatureEncodingHex:
		expected = hex.EncodeToString(digest)
	default:
		expected = base64.StdEncoding.EncodeToString(digest)
	}
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return ErrSignatureMismatch
	}

	if scheme.DomainHeader != "" {
		declared := header(scheme.DomainHeader)
		if declared != "" && !domainsMatch(declared, storeDomain) {
			return ErrDomainMismatch
		}
	}
	return nil
}

// domainsMatch compares a declared origin against the stored shop domain.
// WooCommerce declares a full source URL, so scheme and path are stripped
// before comparing.
func domainsMatch(declared, stored string) bool {
	return normalizeDomain(declared) == normalizeDomain(stored)
}

func normalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return d
}
