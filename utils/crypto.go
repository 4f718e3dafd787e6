package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/scrypt"
)

// Параметры scrypt для хеширования PIN
const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64
	pinSaltLen   = 32
)

// SecretHasher хеширует и проверяет PIN карты
type SecretHasher interface {
	Hash(secret string) (hash, salt string, err error)
	Verify(secret, hash, salt string) bool
}

// ScryptHasher - хешер PIN на основе scrypt с солью на каждую карту
type ScryptHasher struct{}

// NewScryptHasher создает хешер PIN
func NewScryptHasher() *ScryptHasher {
	return &ScryptHasher{}
}

// Hash возвращает hex-хеш и hex-соль для PIN
func (ScryptHasher) Hash(secret string) (string, string, error) {
	salt := make([]byte, pinSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key, err := scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", "", fmt.Errorf("failed to derive key: %w", err)
	}
	return hex.EncodeToString(key), hex.EncodeToString(salt), nil
}

// Verify сравнивает PIN с хешем за постоянное время
func (ScryptHasher) Verify(secret, hash, salt string) bool {
	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(hash)
	if err != nil {
		return false
	}
	key, err := scrypt.Key([]byte(secret), saltBytes, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(key, expected) == 1
}

// GenerateHMAC создает HMAC-SHA256 для данных в hex
func GenerateHMAC(data string, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// CardNumberDigest возвращает ключ поиска карты по номеру
func CardNumberDigest(cardNumber, key string) string {
	return GenerateHMAC(strings.TrimSpace(cardNumber), []byte(key))
}

// HashCVV хеширует CVV через bcrypt
func HashCVV(cvv string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(cvv), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash cvv: %w", err)
	}
	return string(hash), nil
}

// MaskCardNumber оставляет видимыми только последние 4 цифры
func MaskCardNumber(cardNumber string) string {
	if len(cardNumber) < 4 {
		return "****"
	}
	return "****" + cardNumber[len(cardNumber)-4:]
}
