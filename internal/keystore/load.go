package keystore

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// LoadRSAKey parses TOKEN_SIGNING_KEY (spec.md section 6): either a raw PEM
// blob or a file:// URL pointing at one, PKCS1 or PKCS8 encoded.
func LoadRSAKey(value string) (*rsa.PrivateKey, error) {
	pemBytes := []byte(value)
	if after, ok := strings.CutPrefix(value, "file://"); ok {
		b, err := os.ReadFile(after)
		if err != nil {
			return nil, fmt.Errorf("keystore: reading signing key file: %w", err)
		}
		pemBytes = b
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("keystore: no PEM block found in signing key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keystore: parsing signing key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("keystore: signing key is not RSA")
	}
	return rsaKey, nil
}
