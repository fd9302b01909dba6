package natskv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/RuleForge/internal/dedup"
)

// Ledger implements dedup.Ledger on a NATS JetStream KV bucket. The
// bucket TTL is the suppression window, and expiry doubles as
// retention, so unlike the in-memory ledger there is nothing to sweep.
type Ledger struct {
	kv jetstream.KeyValue
}

var _ dedup.Ledger = (*Ledger)(nil)

// NewLedger creates a KV-backed ledger. The bucket should be created
// with a TTL equal to the intended suppression window.
func NewLedger(kv jetstream.KeyValue) *Ledger {
	return &Ledger{kv: kv}
}

// ledgerKey digests the pair; KV keys have a restricted charset and
// subjects carry characters outside it.
func ledgerKey(subject, hash string) string {
	sum := sha256.Sum256([]byte(subject + "\n" + hash))
	return hex.EncodeToString(sum[:])
}

// IsDuplicate implements dedup.Ledger. Create is the atomic
// check-and-record step: it succeeds for exactly one caller per pair
// per window.
func (l *Ledger) IsDuplicate(ctx context.Context, subject, hash string) (bool, error) {
	_, err := l.kv.Create(ctx, ledgerKey(subject, hash), nil)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true, nil
	}
	return false, err
}

// Record implements dedup.Ledger. Put refreshes the entry's revision,
// extending suppression by a full window.
func (l *Ledger) Record(ctx context.Context, subject, hash string) error {
	if _, err := l.kv.Put(ctx, ledgerKey(subject, hash), nil); err != nil {
		return err
	}
	return nil
}
