package settle

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/tasoskalogero/blackboxchain/internal/storage"
)

// Storage key prefixes.
var (
	prefixDisposition = []byte("d:") // disposition records by computation ID
	prefixArchive     = []byte("a:") // zstd-compressed raw output by computation ID
	prefixCursor      = []byte("c:") // event stream cursors by stream name
)

// Journal durably records one disposition per computation ID.
// It is the idempotency check for at-least-once event delivery and the
// audit trail for settled requests: the raw runner output is archived
// zstd-compressed next to each disposition.
type Journal struct {
	store *storage.Store // store is the backing key-value store
	enc   *zstd.Encoder  // enc compresses archived output
	dec   *zstd.Decoder  // dec decompresses archived output
}

// NewJournal creates a Journal over the given store.
func NewJournal(store *storage.Store) (*Journal, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Journal{store: store, enc: enc, dec: dec}, nil
}

// Disposition returns the recorded disposition for a computation ID,
// or nil if the ID has not been settled.
func (j *Journal) Disposition(id string) (*Disposition, error) {
	raw, err := j.store.Get(append(prefixDisposition, id...))
	if err != nil {
		return nil, fmt.Errorf("read disposition %s: %w", id, err)
	}

	if raw == nil {
		return nil, nil
	}

	var d Disposition
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode disposition %s: %w", id, err)
	}

	return &d, nil
}

// Record durably stores a disposition and its raw output archive in one
// atomic batch. Written exactly once per computation ID; the caller holds
// the per-ID lock.
func (j *Journal) Record(d *Disposition, rawOutput []byte) error {
	encoded, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode disposition %s: %w", d.ComputationID, err)
	}

	pairs := []storage.KeyValue{
		{Key: append(prefixDisposition, d.ComputationID...), Value: encoded},
	}

	if len(rawOutput) > 0 {
		compressed := j.enc.EncodeAll(rawOutput, nil)
		pairs = append(pairs, storage.KeyValue{
			Key:   append(prefixArchive, d.ComputationID...),
			Value: compressed,
		})
	}

	if err := j.store.SetBatch(pairs); err != nil {
		return fmt.Errorf("record disposition %s: %w", d.ComputationID, err)
	}

	return nil
}

// ArchivedOutput returns the decompressed raw output for a settled ID,
// or nil if none was archived.
func (j *Journal) ArchivedOutput(id string) ([]byte, error) {
	compressed, err := j.store.Get(append(prefixArchive, id...))
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", id, err)
	}

	if compressed == nil {
		return nil, nil
	}

	raw, err := j.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress archive %s: %w", id, err)
	}

	return raw, nil
}

// Cursor returns the last processed event sequence for the stream.
// Zero means nothing has been processed yet.
func (j *Journal) Cursor(stream string) (uint64, error) {
	raw, err := j.store.Get(append(prefixCursor, stream...))
	if err != nil {
		return 0, fmt.Errorf("read cursor %s: %w", stream, err)
	}

	if len(raw) != 8 {
		return 0, nil
	}

	return binary.BigEndian.Uint64(raw), nil
}

// SetCursor persists the last processed event sequence for the stream.
func (j *Journal) SetCursor(stream string, seq uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)

	if err := j.store.Set(append(prefixCursor, stream...), buf[:]); err != nil {
		return fmt.Errorf("set cursor %s: %w", stream, err)
	}

	return nil
}

// Counts returns how many dispositions committed and reverted.
func (j *Journal) Counts() (committed, reverted uint64, err error) {
	err = j.store.IteratePrefix(prefixDisposition, func(_, value []byte) error {
		var d Disposition
		if err := json.Unmarshal(value, &d); err != nil {
			return err
		}

		if d.Committed {
			committed++
		} else {
			reverted++
		}

		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("count dispositions: %w", err)
	}

	return committed, reverted, nil
}
