package portal

import (
	"errors"
	"fmt"
)

// HandshakeError reports a failed TLS negotiation with a host: no common
// protocol version, no common cipher suite, or a certificate/hostname
// verification failure. It is never suppressed and never retried with a
// weaker policy; the only fix is an operator changing the policy.
type HandshakeError struct {
	Host string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("tls handshake with %s: %v", e.Host, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// IsHandshakeError reports whether err (or anything it wraps, including
// *url.Error from http.Client) is a TLS negotiation failure.
func IsHandshakeError(err error) bool {
	var hs *HandshakeError
	return errors.As(err, &hs)
}
