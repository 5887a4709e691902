// Package webhook authenticates gateway callbacks and hands them to the
// correlator.
package webhook

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hdevalence/ed25519consensus"

	"github.com/m3rciful/penny/internal/oneshot"
)

var (
	// ErrMalformed is returned for bodies that are not a callback payload.
	ErrMalformed = errors.New("webhook: malformed payload")
	// ErrMissingSignature is returned when the payload carries no signature.
	ErrMissingSignature = errors.New("webhook: missing signature")
	// ErrInvalidSignature is returned when the signature does not verify.
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	// ErrUnknownKey is returned when no public key is known for the endpoint.
	ErrUnknownKey = errors.New("webhook: no public key for endpoint")
)

// AuthenticationError wraps every reason a callback is rejected as
// unauthenticated.
type AuthenticationError struct {
	EndpointID string
	Err        error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("webhook: endpoint %q: %v", e.EndpointID, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// KeySource resolves the base64 ed25519 public key of a transaction endpoint.
type KeySource interface {
	PublicKey(ctx context.Context, endpointID string) (string, error)
}

// Verifier checks callback signatures.
type Verifier struct {
	keys     KeySource
	disabled bool
}

// NewVerifier returns a verifier. With enabled false every well-formed
// payload is accepted; meant for local development only.
func NewVerifier(keys KeySource, enabled bool) *Verifier {
	return &Verifier{keys: keys, disabled: !enabled}
}

// Parse decodes and authenticates raw.
func (v *Verifier) Parse(ctx context.Context, raw []byte) (oneshot.Callback, error) {
	var cb oneshot.Callback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return oneshot.Callback{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if cb.EventName == "" {
		return oneshot.Callback{}, fmt.Errorf("%w: missing eventName", ErrMalformed)
	}
	if v.disabled {
		return cb, nil
	}
	endpoint := cb.Data.TransactionID
	authErr := func(err error) error { return &AuthenticationError{EndpointID: endpoint, Err: err} }

	if strings.TrimSpace(cb.Signature) == "" {
		return oneshot.Callback{}, authErr(ErrMissingSignature)
	}
	if endpoint == "" || v.keys == nil {
		return oneshot.Callback{}, authErr(ErrUnknownKey)
	}
	encodedKey, err := v.keys.PublicKey(ctx, endpoint)
	if err != nil {
		return oneshot.Callback{}, authErr(fmt.Errorf("%w: %v", ErrUnknownKey, err))
	}
	pub, err := decodeKey(encodedKey)
	if err != nil {
		return oneshot.Callback{}, authErr(fmt.Errorf("%w: %v", ErrUnknownKey, err))
	}
	sig, err := base64.StdEncoding.DecodeString(cb.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return oneshot.Callback{}, authErr(ErrInvalidSignature)
	}
	msg, err := SignedMessage(raw)
	if err != nil {
		return oneshot.Callback{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !ed25519consensus.Verify(pub, msg, sig) {
		return oneshot.Callback{}, authErr(ErrInvalidSignature)
	}
	return cb, nil
}

// SignedMessage returns the bytes covered by the signature: the canonical
// form of the payload with its signature field removed.
func SignedMessage(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	delete(doc, "signature")
	return canonicalize(doc)
}

func decodeKey(s string) (ed25519.PublicKey, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil && len(b) == ed25519.PublicKeySize {
			return ed25519.PublicKey(b), nil
		}
	}
	return nil, errors.New("not a base64 ed25519 public key")
}
