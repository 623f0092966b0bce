package durability

import (
	"encoding/binary"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketReplay   = []byte("replay")
	bucketEpoch    = []byte("epoch")
	bucketSnapshot = []byte("snapshot")
)

// ErrRollback is returned by AdvanceEpoch when the caller attempts to
// commit an epoch at or below a previously recorded high-water mark,
// which a plain durable-replay check (RecordIfNew) cannot by itself
// distinguish: replaying message n within a known epoch is a replay,
// but presenting an entire epoch the journal has already moved past is
// a rollback attempt.
var ErrRollback = errors.New("durability: epoch at or below previously recorded high-water mark")

// Journal is a bbolt-backed durable store for (a) per-message replay
// detection and (b) per-session epoch high-water marks used to detect
// state rollback, following the Store-interface-over-a-real-backing-store
// shape dr.go uses for its in-memory Store, generalised here to a
// persistent one.
type Journal struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt database at path and ensures
// the journal's buckets exist.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("durability: open bbolt db %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketReplay, bucketEpoch, bucketSnapshot} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("durability: init buckets: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying bbolt database file.
func (j *Journal) Close() error {
	return j.db.Close()
}

func replayKey(sessionID [16]byte, headerKey [32]byte, n uint32) []byte {
	key := make([]byte, 16+32+4)
	copy(key, sessionID[:])
	copy(key[16:], headerKey[:])
	binary.BigEndian.PutUint32(key[48:], n)
	return key
}

// RecordIfNew atomically checks whether (sessionID, headerKey, n) was
// already journaled and, if not, records it in the same transaction.
// It reports seen=true when the entry already existed (a durable
// replay): the caller must reject the message without having
// derived or returned any plaintext for it.
func (j *Journal) RecordIfNew(sessionID [16]byte, headerKey [32]byte, n uint32) (seen bool, err error) {
	key := replayKey(sessionID, headerKey, n)
	err = j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReplay)
		if b.Get(key) != nil {
			seen = true
			return nil
		}
		return b.Put(key, []byte{1})
	})
	if err != nil {
		return false, fmt.Errorf("durability: record replay entry: %w", err)
	}
	return seen, nil
}

func epochKey(sessionID [16]byte) []byte {
	return append([]byte(nil), sessionID[:]...)
}

// HighestEpochSeen returns the last epoch number committed via
// AdvanceEpoch for sessionID, or 0 if none has been recorded.
func (j *Journal) HighestEpochSeen(sessionID [16]byte) (uint32, error) {
	var epoch uint32
	err := j.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketEpoch).Get(epochKey(sessionID))
		if v != nil {
			epoch = binary.BigEndian.Uint32(v)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("durability: read epoch high-water mark: %w", err)
	}
	return epoch, nil
}

// AdvanceEpoch records that sessionID has now entered epoch. It returns
// ErrRollback, leaving the stored high-water mark untouched, if epoch
// is not strictly greater than what was previously recorded once the
// session has seen at least one epoch boundary — except that restoring
// the very first epoch (0) from a fresh session is always accepted.
func (j *Journal) AdvanceEpoch(sessionID [16]byte, epoch uint32) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEpoch)
		key := epochKey(sessionID)
		cur := b.Get(key)
		if cur != nil {
			curEpoch := binary.BigEndian.Uint32(cur)
			if epoch <= curEpoch {
				return ErrRollback
			}
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], epoch)
		return b.Put(key, buf[:])
	})
}

// SaveSnapshot persists an opaque, already-encoded session snapshot
// blob under sessionID, overwriting any previous snapshot.
func (j *Journal) SaveSnapshot(sessionID [16]byte, blob []byte) error {
	err := j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshot).Put(sessionID[:], blob)
	})
	if err != nil {
		return fmt.Errorf("durability: save snapshot: %w", err)
	}
	return nil
}

// ErrNoSnapshot is returned by LoadSnapshot when no snapshot has been
// saved for the given session.
var ErrNoSnapshot = errors.New("durability: no snapshot recorded for session")

// LoadSnapshot retrieves the opaque blob saved by SaveSnapshot.
func (j *Journal) LoadSnapshot(sessionID [16]byte) ([]byte, error) {
	var blob []byte
	err := j.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSnapshot).Get(sessionID[:])
		if v == nil {
			return ErrNoSnapshot
		}
		blob = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}
