package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"club-ledger/internal/config"
	"club-ledger/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// EncryptedField is the envelope stored at rest: AES-GCM ciphertext plus the
// KMS-wrapped data key that produced it.
type EncryptedField struct {
	Value     string    `json:"v"`
	DEK       string    `json:"dek"`
	KeyID     string    `json:"kid"`
	Version   string    `json:"ver"`
	CreatedAt time.Time `json:"at"`
}

type DataKey struct {
	Plaintext  []byte
	Ciphertext []byte
	KeyID      string
}

// EncryptionManager envelope-encrypts sensitive member fields (the recovery
// column) with per-field data keys. Outside KMS-enabled deployments it falls
// back to locally generated keys, which keeps development hermetic.
type EncryptionManager struct {
	kmsClient *kms.Client
	config    *config.Config
	keyCache  sync.Map // encrypted DEK -> plaintext DEK
}

func NewEncryptionManager(cfg *config.Config, kmsClient *kms.Client) *EncryptionManager {
	return &EncryptionManager{
		kmsClient: kmsClient,
		config:    cfg,
	}
}

func (em *EncryptionManager) generateDataKey(ctx context.Context) (*DataKey, error) {
	if !em.config.KMS.Enabled || em.kmsClient == nil {
		return em.generateLocalKey()
	}

	input := &kms.GenerateDataKeyInput{
		KeyId:   aws.String(em.config.KMS.KeyID),
		KeySpec: types.DataKeySpecAes256,
	}

	result, err := em.kmsClient.GenerateDataKey(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	return &DataKey{
		Plaintext:  result.Plaintext,
		Ciphertext: result.CiphertextBlob,
		KeyID:      em.config.KMS.KeyID,
	}, nil
}

func (em *EncryptionManager) generateLocalKey() (*DataKey, error) {
	key := make([]byte, 32) // AES-256
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate local key: %w", err)
	}

	// Without KMS the "wrapped" key is just encoded; the envelope format
	// stays identical so enabling KMS later needs no data migration.
	return &DataKey{
		Plaintext:  key,
		Ciphertext: []byte(base64.StdEncoding.EncodeToString(key)),
		KeyID:      uuid.New().String(),
	}, nil
}

// EncryptString encrypts plaintext and packs the envelope into a single
// column-friendly string.
func (em *EncryptionManager) EncryptString(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	dataKey, err := em.generateDataKey(ctx)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(dataKey.Plaintext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	field := &EncryptedField{
		Value:     base64.StdEncoding.EncodeToString(ciphertext),
		DEK:       base64.StdEncoding.EncodeToString(dataKey.Ciphertext),
		KeyID:     dataKey.KeyID,
		Version:   "v1",
		CreatedAt: time.Now().UTC(),
	}

	em.keyCache.Store(field.DEK, dataKey.Plaintext)

	packed, err := json.Marshal(field)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return base64.StdEncoding.EncodeToString(packed), nil
}

// DecryptString reverses EncryptString.
func (em *EncryptionManager) DecryptString(ctx context.Context, packed string) (string, error) {
	if packed == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(packed)
	if err != nil {
		return "", fmt.Errorf("%w: invalid envelope encoding", ErrDecryptionFailed)
	}

	var field EncryptedField
	if err := json.Unmarshal(raw, &field); err != nil {
		return "", fmt.Errorf("%w: invalid envelope", ErrDecryptionFailed)
	}

	if cached, ok := em.keyCache.Load(field.DEK); ok {
		return em.decryptWithKey(field.Value, cached.([]byte))
	}

	var plaintextDEK []byte
	if em.config.KMS.Enabled && em.kmsClient != nil {
		ciphertextBlob, err := base64.StdEncoding.DecodeString(field.DEK)
		if err != nil {
			return "", fmt.Errorf("%w: invalid DEK format", ErrDecryptionFailed)
		}

		result, err := em.kmsClient.Decrypt(ctx, &kms.DecryptInput{
			CiphertextBlob: ciphertextBlob,
		})
		if err != nil {
			return "", fmt.Errorf("%w: failed to decrypt DEK: %v", ErrDecryptionFailed, err)
		}
		plaintextDEK = result.Plaintext
	} else {
		inner, err := base64.StdEncoding.DecodeString(field.DEK)
		if err != nil {
			return "", fmt.Errorf("%w: invalid local DEK", ErrDecryptionFailed)
		}
		plaintextDEK, err = base64.StdEncoding.DecodeString(string(inner))
		if err != nil {
			return "", fmt.Errorf("%w: invalid local DEK", ErrDecryptionFailed)
		}
	}

	em.keyCache.Store(field.DEK, plaintextDEK)

	return em.decryptWithKey(field.Value, plaintextDEK)
}

func (em *EncryptionManager) decryptWithKey(encryptedValue string, key []byte) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedValue)
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

// ClearCache drops all cached plaintext DEKs.
func (em *EncryptionManager) ClearCache() {
	em.keyCache.Range(func(key, value interface{}) bool {
		em.keyCache.Delete(key)
		return true
	})
	util.Debug("Encryption DEK cache cleared", zap.Bool("kms_enabled", em.config.KMS.Enabled))
}
