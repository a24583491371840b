package tlspolicy

import (
	"crypto/tls"
	"fmt"
	"strings"
)

// defaultCipherSuites is the preference order the data.go.kr host class
// negotiates, per external SSL analysis. The CBC suites are deliberately
// present; the portal hosts offer nothing newer.
func defaultCipherSuites() []uint16 {
	return []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
		tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
		tls.TLS_RSA_WITH_AES_128_CBC_SHA,
		tls.TLS_RSA_WITH_AES_256_CBC_SHA,
		tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA,
	}
}

// opensslAliases maps the OpenSSL-style suite names used by SSL Labs and
// similar tools to the IANA names crypto/tls knows.
var opensslAliases = map[string]string{
	"AES128-SHA":                  "TLS_RSA_WITH_AES_128_CBC_SHA",
	"AES256-SHA":                  "TLS_RSA_WITH_AES_256_CBC_SHA",
	"AES128-GCM-SHA256":           "TLS_RSA_WITH_AES_128_GCM_SHA256",
	"AES256-GCM-SHA384":           "TLS_RSA_WITH_AES_256_GCM_SHA384",
	"DES-CBC3-SHA":                "TLS_RSA_WITH_3DES_EDE_CBC_SHA",
	"ECDHE-RSA-AES128-SHA":        "TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA",
	"ECDHE-RSA-AES256-SHA":        "TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA",
	"ECDHE-RSA-AES128-GCM-SHA256": "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
	"ECDHE-RSA-AES256-GCM-SHA384": "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384",
	"ECDHE-ECDSA-AES128-SHA":      "TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA",
	"ECDHE-ECDSA-AES256-SHA":      "TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA",
}

// cipherIDs indexes every suite crypto/tls implements, including the
// legacy ones this package exists to re-enable, by IANA name.
var cipherIDs = buildCipherIndex()

func buildCipherIndex() map[string]uint16 {
	idx := make(map[string]uint16)
	for _, cs := range tls.CipherSuites() {
		idx[cs.Name] = cs.ID
	}
	for _, cs := range tls.InsecureCipherSuites() {
		idx[cs.Name] = cs.ID
	}
	return idx
}

// parseCipher resolves a cipher suite name (IANA or OpenSSL form) to its
// crypto/tls identifier.
func parseCipher(name string) (uint16, error) {
	lookup := strings.ToUpper(strings.TrimSpace(name))
	if iana, ok := opensslAliases[lookup]; ok {
		lookup = iana
	}
	if id, ok := cipherIDs[lookup]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCipher, name)
}

// parseVersion resolves a protocol version name such as "1.0", "tls1.2"
// or "TLSv1.2" to its crypto/tls constant.
func parseVersion(s string) (uint16, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "tlsv")
	v = strings.TrimPrefix(v, "tls")
	switch v {
	case "1", "1.0":
		return tls.VersionTLS10, nil
	case "1.1":
		return tls.VersionTLS11, nil
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVersion, s)
}

// VersionName returns the conventional name of a TLS version constant.
func VersionName(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLS1.0"
	case tls.VersionTLS11:
		return "TLS1.1"
	case tls.VersionTLS12:
		return "TLS1.2"
	case tls.VersionTLS13:
		return "TLS1.3"
	}
	return fmt.Sprintf("0x%04x", v)
}
