// Package crypto contains the RSA-SHA1 signing used by flipnote files
package crypto

import (
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"

	"flipnote-backend/models"
)

// SignatureSize is the length of an RSA-1024 signature
const SignatureSize = 0x80

// VendorPublicKey verifies signatures made by the handheld. It cannot sign.
const VendorPublicKey = `-----BEGIN PUBLIC KEY-----
MIGfMA0GCSqGSIb3DQEBAQUAA4GNADCBiQKBgQDCPLwTL6oSflv+gjywi/sM0TUB
90xqOvuCpjduETjPoN2FwMebxNjdKIqHUyDu4AvrQ6BDJc6gKUbZ1E27BGZoCPH4
9zQRb+zAM6M9EjHwQ6BABr0u2TcF7xGg2uQ9MBWz9AfbVQ91NjfrNWo0f7UPmffv
1VvixmTk1BCtavZxBwIDAQAB
-----END PUBLIC KEY-----`

var (
	vendorOnce sync.Once
	vendorKey  *rsa.PublicKey
	vendorErr  error
)

// Service verifies signatures against one public key
type Service struct {
	publicKey *rsa.PublicKey
}

// NewService returns a Service for the embedded vendor key
func NewService() (*Service, error) {
	vendorOnce.Do(func() {
		vendorKey, vendorErr = ParsePublicKey([]byte(VendorPublicKey))
	})
	if vendorErr != nil {
		return nil, vendorErr
	}
	return &Service{publicKey: vendorKey}, nil
}

func NewServiceWithKey(publicKey *rsa.PublicKey) *Service {
	return &Service{publicKey: publicKey}
}

func (s *Service) PublicKey() *rsa.PublicKey {
	return s.publicKey
}

// HashBody is the SHA-1 digest of the signed byte range
func HashBody(body []byte) []byte {
	sum := sha1.Sum(body)
	return sum[:]
}

// Verify reports whether signature is a valid PKCS#1 v1.5 signature of digest
func (s *Service) Verify(digest, signature []byte) bool {
	if s.publicKey == nil || len(signature) != SignatureSize {
		return false
	}
	return rsa.VerifyPKCS1v15(s.publicKey, stdcrypto.SHA1, digest, signature) == nil
}

// Sign produces a 0x80 byte signature of digest
func Sign(digest []byte, privateKey *rsa.PrivateKey) ([]byte, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("%w: no private key", models.ErrCrypto)
	}
	signature, err := rsa.SignPKCS1v15(rand.Reader, privateKey, stdcrypto.SHA1, digest)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign: %v", models.ErrCrypto, err)
	}
	if len(signature) != SignatureSize {
		return nil, fmt.Errorf("%w: signature is %d bytes, want %d", models.ErrCrypto, len(signature), SignatureSize)
	}
	return signature, nil
}

func ParsePublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", models.ErrCrypto)
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		pkcs1, err1 := x509.ParsePKCS1PublicKey(block.Bytes)
		if err1 != nil {
			return nil, fmt.Errorf("%w: failed to parse public key: %v", models.ErrCrypto, err)
		}
		return pkcs1, nil
	}

	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is not RSA", models.ErrCrypto)
	}
	return rsaKey, nil
}

// ParsePrivateKey accepts PKCS#1 and PKCS#8 PEM
func ParsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", models.ErrCrypto)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse private key: %v", models.ErrCrypto, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not RSA", models.ErrCrypto)
	}
	return rsaKey, nil
}
