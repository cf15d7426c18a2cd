package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/redis/go-redis/v9"
)

const (
	tokenRecordVersionV1 = 1
	maxRetries           = 4
)

var (
	ErrTokenVaultUnavailable = errors.New("token vault redis unavailable")
	ErrTokenVaultContention  = errors.New("token vault contention")
)

// ConsumeOutcome is the result of consuming a verification token.
type ConsumeOutcome uint8

const (
	ConsumeInvalid ConsumeOutcome = iota
	ConsumeAlreadyVerified
	ConsumeNewlyVerified
)

func (o ConsumeOutcome) String() string {
	switch o {
	case ConsumeAlreadyVerified:
		return "already_verified"
	case ConsumeNewlyVerified:
		return "newly_verified"
	default:
		return "invalid"
	}
}

type TokenRecord struct {
	IdentityID string
	Email      string
	IssuedAt   int64
	Consumed   bool
}

type TokenVault struct {
	redis  redis.UniversalClient
	prefix string
}

func NewTokenVault(redisClient redis.UniversalClient, prefix string) *TokenVault {
	if prefix == "" {
		prefix = "gid:vt"
	}
	return &TokenVault{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (v *TokenVault) recordKey(token string) string {
	sum := internal.HashToken(token)
	return v.prefix + ":t:" + hex.EncodeToString(sum[:])
}

func (v *TokenVault) indexKey(identityID string) string {
	return v.prefix + ":i:" + identityID
}

// Issue stores token for the record's identity and deletes any earlier
// unconsumed token of that identity. Consumed tokens are kept so a repeated
// confirmation still reports already-verified. A zero ttl stores without
// expiry.
func (v *TokenVault) Issue(ctx context.Context, token string, record *TokenRecord, ttl time.Duration) error {
	if record == nil || record.IdentityID == "" {
		return errors.New("token record identity required")
	}

	stored := *record
	stored.Email = normalizeEmail(stored.Email)
	stored.Consumed = false

	encoded, err := encodeTokenRecord(&stored)
	if err != nil {
		return err
	}

	key := v.recordKey(token)
	index := v.indexKey(record.IdentityID)

	for i := 0; i < maxRetries; i++ {
		err := v.redis.Watch(ctx, func(tx *redis.Tx) error {
			priorKey, err := tx.Get(ctx, index).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			dropPrior := false
			if priorKey != "" && priorKey != key {
				if err := tx.Watch(ctx, priorKey).Err(); err != nil {
					return err
				}
				data, err := tx.Get(ctx, priorKey).Bytes()
				switch {
				case errors.Is(err, redis.Nil):
				case err != nil:
					return err
				default:
					prior, decErr := decodeTokenRecord(data)
					dropPrior = decErr != nil || !prior.Consumed
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if dropPrior {
					pipe.Del(ctx, priorKey)
				}
				pipe.Set(ctx, key, encoded, ttl)
				pipe.Set(ctx, index, key, ttl)
				return nil
			})
			return err
		}, index)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTokenVaultUnavailable, err)
		}
		return nil
	}

	return ErrTokenVaultContention
}

// Consume looks the token up and, when the email matches and the record is
// not yet consumed, marks it consumed. Unknown tokens and email mismatches
// both report [ConsumeInvalid].
func (v *TokenVault) Consume(ctx context.Context, token, email string) (ConsumeOutcome, *TokenRecord, error) {
	key := v.recordKey(token)
	provided := normalizeEmail(email)

	for i := 0; i < maxRetries; i++ {
		outcome := ConsumeInvalid
		var matched *TokenRecord

		err := v.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeTokenRecord(data)
			if err != nil {
				return err
			}

			if subtle.ConstantTimeCompare([]byte(record.Email), []byte(provided)) != 1 {
				return nil
			}

			matched = record
			if record.Consumed {
				outcome = ConsumeAlreadyVerified
				return nil
			}

			record.Consumed = true
			updated, err := encodeTokenRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			if err != nil {
				return err
			}

			outcome = ConsumeNewlyVerified
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return ConsumeInvalid, nil, nil
		}
		if err != nil {
			return ConsumeInvalid, nil, fmt.Errorf("%w: %v", ErrTokenVaultUnavailable, err)
		}

		return outcome, matched, nil
	}

	return ConsumeInvalid, nil, ErrTokenVaultContention
}

// Release reverts a consumption so the token can be confirmed again. It is
// used when the verification flag could not be applied.
func (v *TokenVault) Release(ctx context.Context, token string) error {
	key := v.recordKey(token)

	for i := 0; i < maxRetries; i++ {
		err := v.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeTokenRecord(data)
			if err != nil {
				return err
			}
			if !record.Consumed {
				return nil
			}

			record.Consumed = false
			updated, err := encodeTokenRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTokenVaultUnavailable, err)
		}
		return nil
	}

	return ErrTokenVaultContention
}

// Get returns the stored record for token, or (nil, nil) when absent.
func (v *TokenVault) Get(ctx context.Context, token string) (*TokenRecord, error) {
	data, err := v.redis.Get(ctx, v.recordKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenVaultUnavailable, err)
	}
	return decodeTokenRecord(data)
}

// Forget removes the identity index and any unconsumed token it points to.
func (v *TokenVault) Forget(ctx context.Context, identityID string) error {
	index := v.indexKey(identityID)
	key, err := v.redis.Get(ctx, index).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrTokenVaultUnavailable, err)
	}

	keys := []string{index}
	if key != "" {
		keys = append(keys, key)
	}
	if err := v.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenVaultUnavailable, err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func encodeTokenRecord(record *TokenRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(tokenRecordVersionV1)
	if record.Consumed {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}

	for _, field := range []string{record.IdentityID, record.Email} {
		if len(field) > 65535 {
			return nil, errors.New("token record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeTokenRecord(data []byte) (*TokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenRecordVersionV1 {
		return nil, errors.New("invalid token record version")
	}

	consumed, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &TokenRecord{Consumed: consumed == 1}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}

	if record.IdentityID, err = readString(reader); err != nil {
		return nil, err
	}
	if record.Email, err = readString(reader); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("invalid token record trailing bytes")
	}

	return record, nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
