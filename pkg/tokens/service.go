package tokens

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/bridgefleet/bridgefleet/pkg/keyring"
	"github.com/bridgefleet/bridgefleet/pkg/storage"
	"github.com/bridgefleet/bridgefleet/pkg/util/grpcutil"
	"github.com/grafana/dskit/services"
)

const signingKeyID = "operator-tokens"

// Record is what the server keeps about an issued token. The secret is
// stored only as a hash.
type Record struct {
	ID         string    `json:"id"`
	SecretHash string    `json:"secretHash"`
	Label      string    `json:"label,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Issued is returned once, at creation time. The encoded token and its
// detached signature are not recoverable afterwards.
type Issued struct {
	Record    Record `json:"record"`
	Token     string `json:"token"`
	Signature string `json:"signature"`
}

type TokenService struct {
	logger *slog.Logger

	tokenStore storage.KeyValue[*Record]
	keyStore   storage.KeyValue[*keyring.SigningKey]

	signingKey *keyring.SigningKey

	services.Service
}

func NewTokenService(logger *slog.Logger, tokenStore storage.KeyValue[*Record], keyStore storage.KeyValue[*keyring.SigningKey]) *TokenService {
	s := &TokenService{
		logger:     logger,
		tokenStore: tokenStore,
		keyStore:   keyStore,
	}
	s.Service = services.NewBasicService(s.starting, s.running, nil)
	return s
}

// starting loads the signing keypair, generating and persisting one on
// first boot.
func (s *TokenService) starting(ctx context.Context) error {
	key, err := s.keyStore.Get(ctx, signingKeyID)
	if err == nil {
		s.signingKey = key
		return nil
	}
	if !grpcutil.IsErrorNotFound(err) {
		return err
	}

	key, err = keyring.NewSigningKey()
	if err != nil {
		return err
	}
	if err := s.keyStore.Put(ctx, signingKeyID, key); err != nil {
		return err
	}
	s.logger.Info("generated new token signing keypair")
	s.signingKey = key

	// Fresh install: mint one token and log it so the operator can get
	// in. It shows up exactly once.
	issued, err := s.Create(ctx, "initial")
	if err != nil {
		return err
	}
	s.logger.With("token", issued.Token).Warn("issued initial operator token, store it now")
	return nil
}

func (s *TokenService) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Create mints a token, persists its record, and returns the one-time
// encoded form together with a detached signature over it.
func (s *TokenService) Create(ctx context.Context, label string) (*Issued, error) {
	token := NewToken()
	sig, err := token.SignDetached(s.signingKey.PrivateKey())
	if err != nil {
		return nil, err
	}

	record := &Record{
		ID:         token.HexID(),
		SecretHash: hashSecret(token.Secret),
		Label:      label,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.tokenStore.Put(ctx, record.ID, record); err != nil {
		return nil, err
	}
	s.logger.With("token_id", record.ID).Info("issued operator token")

	return &Issued{
		Record:    *record,
		Token:     token.EncodeToHex(),
		Signature: string(sig),
	}, nil
}

// Authenticate checks an encoded token against the stored records.
func (s *TokenService) Authenticate(ctx context.Context, encoded string) (*Record, error) {
	token, err := ParseHex(encoded)
	if err != nil {
		return nil, err
	}
	record, err := s.tokenStore.Get(ctx, token.HexID())
	if err != nil {
		if grpcutil.IsErrorNotFound(err) {
			return nil, fmt.Errorf("unknown token")
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(record.SecretHash), []byte(hashSecret(token.Secret))) != 1 {
		return nil, fmt.Errorf("token secret mismatch")
	}
	return record, nil
}

// PublicKey exposes the verification half of the signing keypair so
// tokens handed out over side channels can be checked offline.
func (s *TokenService) PublicKey(ctx context.Context) (ed25519.PublicKey, error) {
	if s.signingKey == nil {
		key, err := s.keyStore.Get(ctx, signingKeyID)
		if err != nil {
			return nil, err
		}
		s.signingKey = key
	}
	return s.signingKey.PublicKey(), nil
}

func (s *TokenService) List(ctx context.Context) ([]*Record, error) {
	return s.tokenStore.List(ctx)
}

func (s *TokenService) Revoke(ctx context.Context, id string) error {
	if _, err := s.tokenStore.Get(ctx, id); err != nil {
		return err
	}
	s.logger.With("token_id", id).Info("revoking operator token")
	return s.tokenStore.Delete(ctx, id)
}

func hashSecret(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:])
}
