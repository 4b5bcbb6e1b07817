package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/qr-attendance/internal/clock"
	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/model"
)

const (
	// tokenBytes of randomness give a 64 character hex token.
	tokenBytes = 32
	// storeGrace keeps the stored entry a little longer than the token's
	// validity so the entry never disappears before ValidUntil is reached.
	storeGrace = time.Second
	// maxIssueAttempts bounds the get-or-create loop under contention.
	maxIssueAttempts = 5
)

// ActiveTokenKey is the store key of the active token for t.
func ActiveTokenKey(t model.QrType) string { return "active_token:" + string(t) }

// QrIssuer decides which QR type is valid at a given time and keeps one
// active token per type in the token store.
type QrIssuer struct {
	store TokenStore
	cfg   config.AttendanceConfig
	clock clock.Clock
	log   *zap.Logger
	sf    singleflight.Group
}

// NewQrIssuer builds an issuer.  A nil clock uses the real one and a nil
// logger discards output.
func NewQrIssuer(store TokenStore, cfg config.AttendanceConfig, clk clock.Clock, log *zap.Logger) *QrIssuer {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &QrIssuer{store: store, cfg: cfg, clock: clk, log: log.Named("qr")}
}

// DetermineType maps the local time of day to the QR type that is issued
// and accepted at that moment, or QrNone during the closed period.
func (q *QrIssuer) DetermineType(now time.Time) model.QrType {
	tod := timeOfDay(now.In(q.cfg.Location))
	switch {
	case tod < q.cfg.OpensAt || tod >= q.cfg.ClosesAt:
		return model.QrNone
	case tod < q.cfg.Cutoff:
		return model.QrCheckIn
	default:
		return model.QrCheckOut
	}
}

// CurrentToken returns the unexpired token for typ, minting and storing a
// new one when there is none.  Concurrent callers, in this process or
// another one sharing the store, all end up with the same token.
func (q *QrIssuer) CurrentToken(ctx context.Context, typ model.QrType, now time.Time) (model.QrToken, error) {
	if !typ.Valid() {
		return model.QrToken{}, fmt.Errorf("%w: %q", ErrUnknownQrType, typ)
	}
	v, err, _ := q.sf.Do(string(typ), func() (any, error) {
		return q.getOrCreate(ctx, typ, now)
	})
	if err != nil {
		return model.QrToken{}, err
	}
	return v.(model.QrToken), nil
}

func (q *QrIssuer) getOrCreate(ctx context.Context, typ model.QrType, now time.Time) (model.QrToken, error) {
	key := ActiveTokenKey(typ)
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		raw, ok, err := q.store.Get(ctx, key)
		if err != nil {
			return model.QrToken{}, storageErr("qr: read active token", err)
		}
		expected := ""
		if ok {
			cur, derr := decodeToken(raw)
			if derr == nil && cur.Type == typ && !cur.Expired(now) {
				return cur, nil
			}
			expected = raw
		}
		tok, swapped, err := q.swapIn(ctx, typ, expected, now)
		if err != nil {
			return model.QrToken{}, err
		}
		if swapped {
			q.log.Debug("issued token", zap.String("type", string(typ)), zap.Time("valid_until", tok.ValidUntil))
			return tok, nil
		}
		// Another caller stored a token first; read theirs.
	}
	return model.QrToken{}, fmt.Errorf("qr: active %s token kept changing: %w", typ, ErrStorageUnavailable)
}

// Rotate replaces the active token for typ unconditionally and returns the
// new one.  The previous token stops validating immediately.
func (q *QrIssuer) Rotate(ctx context.Context, typ model.QrType) (model.QrToken, error) {
	if !typ.Valid() {
		return model.QrToken{}, fmt.Errorf("%w: %q", ErrUnknownQrType, typ)
	}
	defer q.sf.Forget(string(typ))
	key := ActiveTokenKey(typ)
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		raw, _, err := q.store.Get(ctx, key)
		if err != nil {
			return model.QrToken{}, storageErr("qr: read active token", err)
		}
		tok, swapped, err := q.swapIn(ctx, typ, raw, q.clock.Now())
		if err != nil {
			return model.QrToken{}, err
		}
		if swapped {
			q.log.Info("rotated token", zap.String("type", string(typ)))
			return tok, nil
		}
	}
	return model.QrToken{}, fmt.Errorf("qr: rotate %s: %w", typ, ErrStorageUnavailable)
}

// Active returns the stored token for typ without minting one.  ok is false
// when nothing is stored or the stored payload cannot be decoded.
func (q *QrIssuer) Active(ctx context.Context, typ model.QrType) (model.QrToken, bool, error) {
	raw, ok, err := q.store.Get(ctx, ActiveTokenKey(typ))
	if err != nil {
		return model.QrToken{}, false, storageErr("qr: read active token", err)
	}
	if !ok {
		return model.QrToken{}, false, nil
	}
	tok, err := decodeToken(raw)
	if err != nil || tok.Type != typ {
		q.log.Warn("discarding unreadable active token", zap.String("type", string(typ)), zap.Error(err))
		return model.QrToken{}, false, nil
	}
	return tok, true, nil
}

func (q *QrIssuer) swapIn(ctx context.Context, typ model.QrType, expected string, now time.Time) (model.QrToken, bool, error) {
	tok := model.QrToken{
		Token:       randomToken(tokenBytes),
		Type:        typ,
		ValidFrom:   now,
		ValidUntil:  now.Add(q.cfg.TokenTTL),
		GeneratedAt: now,
	}
	enc, err := json.Marshal(tok)
	if err != nil {
		return model.QrToken{}, false, fmt.Errorf("qr: encode token: %w", err)
	}
	swapped, err := q.store.CompareAndSwap(ctx, ActiveTokenKey(typ), expected, string(enc), q.cfg.TokenTTL+storeGrace)
	if err != nil {
		return model.QrToken{}, false, storageErr("qr: store active token", err)
	}
	return tok, swapped, nil
}

func decodeToken(raw string) (model.QrToken, error) {
	var t model.QrToken
	err := json.Unmarshal([]byte(raw), &t)
	return t, err
}

// randomToken returns 2*n hex characters of crypto/rand output.
func randomToken(n int) string {
	b := make([]byte, n)
	// crypto/rand.Read never fails on supported platforms.
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
