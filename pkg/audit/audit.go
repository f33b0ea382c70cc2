// Package audit records every webhook reception and lead state transition
// as an append-only, hash-chained log. Entries are never mutated; payloads
// are canonicalized (RFC 8785 JCS) before hashing so the chain is stable
// across encoders.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/leadgrid/pkg/lead"
)

// Well-known actions recorded by the pipeline.
const (
	ActionWebhookReceived     = "webhook_received"
	ActionWebhookRejected     = "webhook_rejected"
	ActionValidationFailed    = "validation_failed"
	ActionDuplicateSuppressed = "duplicate_suppressed"
	ActionLeadCreated         = "lead_created"
	ActionLeadAssigned        = "lead_assigned"
	ActionLeadUnassigned      = "lead_unassigned"
	ActionNoEligibleAgency    = "no_eligible_agency"
	ActionLeadAccepted        = "lead_accepted"
	ActionLeadRejected        = "lead_rejected"
	ActionLeadReassigned      = "lead_reassigned"
	ActionLeadArchived        = "lead_archived"
	ActionStatusUpdated       = "lead_status_updated"
)

// GenesisHash anchors the first entry of every chain.
const GenesisHash = "genesis"

// Entry is a single immutable audit record.
type Entry struct {
	ID        string          `json:"id"`
	Sequence  uint64          `json:"sequence"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	Target    string          `json:"target"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`

	PayloadHash  string `json:"payload_hash,omitempty"`
	PreviousHash string `json:"previous_hash"`
	EntryHash    string `json:"entry_hash"`
}

// Logger is the capability the pipeline components receive.
type Logger interface {
	Record(ctx context.Context, actor, action, target string, payload any) error
}

// HashPayload canonicalizes a JSON payload and returns its SHA-256 digest.
// Non-canonical input (or nil) hashes to the empty string.
func HashPayload(payload json.RawMessage) (string, error) {
	if len(payload) == 0 {
		return "", nil
	}
	canonical, err := jcs.Transform(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// HashEntry computes the chaining hash over the entry's stable fields.
func HashEntry(e *Entry) (string, error) {
	hashable := struct {
		Sequence     uint64    `json:"sequence"`
		Actor        string    `json:"actor"`
		Action       string    `json:"action"`
		Target       string    `json:"target"`
		Timestamp    time.Time `json:"timestamp"`
		PayloadHash  string    `json:"payload_hash"`
		PreviousHash string    `json:"previous_hash"`
	}{e.Sequence, e.Actor, e.Action, e.Target, e.Timestamp, e.PayloadHash, e.PreviousHash}

	data, err := json.Marshal(hashable)
	if err != nil {
		return "", fmt.Errorf("marshal entry for hashing: %w", err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize entry: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// Seal fills the hash fields of an entry given the current chain head.
func Seal(e *Entry, previousHash string) error {
	if previousHash == "" {
		previousHash = GenesisHash
	}
	payloadHash, err := HashPayload(e.Payload)
	if err != nil {
		return err
	}
	e.PayloadHash = payloadHash
	e.PreviousHash = previousHash
	entryHash, err := HashEntry(e)
	if err != nil {
		return err
	}
	e.EntryHash = entryHash
	return nil
}

// VerifyChain checks hash continuity and integrity over entries in sequence
// order.
func VerifyChain(entries []*Entry) error {
	expectedPrev := GenesisHash
	for i, e := range entries {
		if e.PreviousHash != expectedPrev {
			return fmt.Errorf("chain broken at entry %d: previous_hash %s, expected %s", i, e.PreviousHash, expectedPrev)
		}
		computed, err := HashEntry(e)
		if err != nil {
			return fmt.Errorf("chain entry %d: %w", i, err)
		}
		if computed != e.EntryHash {
			return fmt.Errorf("chain entry %d hash mismatch", i)
		}
		expectedPrev = e.EntryHash
	}
	return nil
}

// Sink is the persistence hook a chained logger appends through.
type Sink interface {
	AppendAudit(ctx context.Context, e *Entry) error
}

// HeadSource is implemented by durable sinks that can report the chain head
// they last persisted, so a restarted logger resumes the chain instead of
// forking a new genesis.
type HeadSource interface {
	LastAuditHead(ctx context.Context) (sequence uint64, entryHash string, err error)
}

// chainLogger seals entries against an in-process chain head and appends
// them to a sink. Sealing and appending are serialized under one mutex so
// the chain never forks.
type chainLogger struct {
	mu    sync.Mutex
	sink  Sink
	clock lead.Clock
	ids   lead.IDGenerator

	resumed  bool
	sequence uint64
	head     string
}

// NewLogger builds a chained Logger over a sink.
func NewLogger(sink Sink, clock lead.Clock, ids lead.IDGenerator) Logger {
	return &chainLogger{sink: sink, clock: clock, ids: ids, head: GenesisHash}
}

// resume picks up the persisted chain head once, before the first append.
func (l *chainLogger) resume(ctx context.Context) {
	if l.resumed {
		return
	}
	l.resumed = true
	src, ok := l.sink.(HeadSource)
	if !ok {
		return
	}
	seq, head, err := src.LastAuditHead(ctx)
	if err != nil || head == "" {
		return
	}
	l.sequence = seq
	l.head = head
}

func (l *chainLogger) Record(ctx context.Context, actor, action, target string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
		raw = b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.resume(ctx)

	l.sequence++
	entry := &Entry{
		ID:        l.ids.NewID(),
		Sequence:  l.sequence,
		Actor:     actor,
		Action:    action,
		Target:    target,
		Payload:   raw,
		Timestamp: l.clock.Now().UTC(),
	}
	if err := Seal(entry, l.head); err != nil {
		l.sequence--
		return err
	}
	if err := l.sink.AppendAudit(ctx, entry); err != nil {
		l.sequence--
		return fmt.Errorf("append audit entry: %w", err)
	}
	l.head = entry.EntryHash
	return nil
}

// writerSink writes entries as JSON lines, prefixed for easy filtering.
type writerSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a Sink writing "AUDIT: {...}" lines to w.
// A nil writer defaults to os.Stdout.
func NewWriterSink(w io.Writer) Sink {
	if w == nil {
		w = os.Stdout
	}
	return &writerSink{w: w}
}

func (s *writerSink) AppendAudit(_ context.Context, e *Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append([]byte("AUDIT: "), append(b, '\n')...))
	return err
}

// Nop returns a Logger that discards everything; used where audit is wired
// optional.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Record(context.Context, string, string, string, any) error { return nil }
