package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/BradenHooton/yoked/internal/models"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	BackupCodeCount  = 8
	backupCodeLength = 8
	backupCharset    = "23456789ABCDEFGHJKMNPQRSTUVWXYZ" // no 0/O, 1/I/L
)

// TOTPManager handles TOTP generation, encryption, and validation
type TOTPManager struct {
	encryptionKey []byte // 32-byte AES-256 key
	issuer        string
	now           func() time.Time
}

// NewTOTPManager creates a new TOTP manager
// encryptionKey must be exactly 32 bytes for AES-256
func NewTOTPManager(encryptionKey []byte, issuer string) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}

	return &TOTPManager{
		encryptionKey: encryptionKey,
		issuer:        issuer,
		now:           time.Now,
	}, nil
}

// GenerateSetup creates a TOTP secret for accountName and returns the
// provisioning material together with the encrypted secret to store.
func (tm *TOTPManager) GenerateSetup(accountName string) (*models.MFASetupResponse, []byte, []byte, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  20,
		Period:      30,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encrypted, nonce, err := tm.EncryptSecret([]byte(key.Secret()))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Highest)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create QR code: %w", err)
	}
	png, err := qr.PNG(200)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &models.MFASetupResponse{
		Secret:    key.Secret(),
		QRCode:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		ManualKey: groupManualKey(key.Secret()),
	}, encrypted, nonce, nil
}

// groupManualKey splits a base32 secret into blocks of four for typing.
func groupManualKey(secret string) string {
	var b strings.Builder
	for i, r := range secret {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EncryptSecret encrypts a TOTP secret using AES-256-GCM
// Returns: (encryptedBytes, nonce, error)
func (tm *TOTPManager) EncryptSecret(secretBytes []byte) ([]byte, []byte, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, secretBytes, nil), nonce, nil
}

// DecryptSecret decrypts an encrypted TOTP secret
func (tm *TOTPManager) DecryptSecret(encryptedBytes, nonce []byte) ([]byte, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, encryptedBytes, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return plaintext, nil
}

func (tm *TOTPManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// ValidateCode checks a six digit code against a base32 secret with a 30s
// period and ±1 step of skew. Every error counts as an invalid code.
func (tm *TOTPManager) ValidateCode(secret, code string) bool {
	valid, err := totp.ValidateCustom(strings.TrimSpace(code), secret, tm.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

// ValidateEncrypted decrypts the stored secret and validates code against it.
func (tm *TOTPManager) ValidateEncrypted(encrypted, nonce []byte, code string) bool {
	if len(encrypted) == 0 {
		return false
	}
	secret, err := tm.DecryptSecret(encrypted, nonce)
	if err != nil {
		return false
	}
	return tm.ValidateCode(string(secret), code)
}

// GenerateBackupCodes returns count random codes from an unambiguous alphabet.
func (tm *TOTPManager) GenerateBackupCodes(count int) ([]string, error) {
	max := big.NewInt(int64(len(backupCharset)))

	codes := make([]string, count)
	for i := range codes {
		code := make([]byte, backupCodeLength)
		for j := range code {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return nil, fmt.Errorf("failed to generate backup code: %w", err)
			}
			code[j] = backupCharset[n.Int64()]
		}
		codes[i] = string(code)
	}
	return codes, nil
}

// HashBackupCode returns the hex SHA-256 of a normalised backup code.
func (tm *TOTPManager) HashBackupCode(code string) string {
	normalised := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	sum := sha256.Sum256([]byte(normalised))
	return hex.EncodeToString(sum[:])
}

// LooksLikeBackupCode distinguishes backup codes from six digit TOTP codes.
func LooksLikeBackupCode(code string) bool {
	code = strings.ReplaceAll(strings.TrimSpace(code), "-", "")
	return len(code) == backupCodeLength
}
