package utils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

const deployKeyBits = 4096

// DeployKeyPair is a freshly generated deploy key
type DeployKeyPair struct {
	PublicKey   string // authorized_keys line
	PrivateKey  string // PEM
	Fingerprint string // SHA256:<unpadded base64>
}

// GenerateDeployKeyPair creates an RSA keypair usable as a read-only git deploy key
func GenerateDeployKeyPair(comment string) (DeployKeyPair, error) {
	return generateDeployKeyPair(deployKeyBits, comment)
}

func generateDeployKeyPair(bits int, comment string) (DeployKeyPair, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return DeployKeyPair{}, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	publicKey, err := ssh.NewPublicKey(&privateKey.PublicKey)
	if err != nil {
		return DeployKeyPair{}, fmt.Errorf("failed to encode public key: %w", err)
	}

	authorized := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(publicKey)))
	if comment != "" {
		authorized = authorized + " " + comment
	}

	return DeployKeyPair{
		PublicKey:   authorized,
		PrivateKey:  string(privatePEM),
		Fingerprint: ssh.FingerprintSHA256(publicKey),
	}, nil
}

// FingerprintOf computes the SHA256 fingerprint of an authorized_keys line
func FingerprintOf(authorizedKey string) (string, error) {
	publicKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(authorizedKey))
	if err != nil {
		return "", fmt.Errorf("invalid public key: %w", err)
	}
	return ssh.FingerprintSHA256(publicKey), nil
}
