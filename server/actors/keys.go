package actors

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/tkrehbiel/blogfed/server/errs"
	"github.com/tkrehbiel/blogfed/server/telemetry"
)

// ParsePrivateKey reads a PKCS#1 or PKCS#8 RSA private key.
func ParsePrivateKey(b []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errs.New(errs.InvalidInput, "no pem block")
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "parsing private key")
	}
	rsaKey, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, errs.New(errs.InvalidInput, "not an rsa key: %T", k)
	}
	return rsaKey, nil
}

// ParsePublicKey reads a PKIX or PKCS#1 public key.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, errs.New(errs.InvalidInput, "no pem block")
	}
	if k, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		return k, nil
	}
	k, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "parsing public key")
	}
	return k, nil
}

func PublicKeyPEM(k *rsa.PublicKey) (string, error) {
	b, err := x509.MarshalPKIXPublicKey(k)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: b})), nil
}

func PrivateKeyPEM(k *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)}))
}

// loadKey reads the key at path. A missing path or file yields a fresh key
// that lives only as long as the process.
func loadKey(path string, bits int, owner string) *rsa.PrivateKey {
	if path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			var k *rsa.PrivateKey
			if k, err = ParsePrivateKey(b); err == nil {
				return k
			}
		}
		telemetry.Error(err, "reading key [%s] for [%s]", path, owner)
	}
	telemetry.Log("WARNING: generating ephemeral %d-bit key for [%s]", bits, owner)
	k, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		telemetry.Error(err, "generating key for [%s]", owner)
		return nil
	}
	return k
}
