package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"
	bberrors "go.etcd.io/bbolt/errors"

	"github.com/haukened/restraint/internal/block/common/log"
	"github.com/haukened/restraint/internal/block/common/utils"
	"github.com/haukened/restraint/internal/block/domain"
)

// recordFormat versions the key layout of the session bucket.
const recordFormat = "1"

var (
	bucketSession = []byte("session")

	keyFormat      = []byte("format")
	keyStarted     = []byte("started")
	keyExpiry      = []byte("expiry")
	keyStagedPath  = []byte("staged_path")
	keyDomainCount = []byte("domain_count")
	keyDomains     = []byte("domains")
)

// defaultOpenTimeout bounds how long an operation waits for another process
// holding the database.
const defaultOpenTimeout = time.Second

// BoltStore persists the active block session in a bbolt database.
//
// The record lives in a single bucket and is replaced in one transaction, so a
// crash leaves either the previous record or the new one, never a mix. The
// database is opened per operation to avoid holding its file lock between calls.
type BoltStore struct {
	path    string
	timeout time.Duration
	logger  log.Logger
}

// New returns a store backed by the database at path, creating its directory.
func New(path string, logger log.Logger) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("session store path must not be empty")
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if err := utils.MkdirAllOwned(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create session store directory: %w", err)
	}
	return &BoltStore{path: path, timeout: defaultOpenTimeout, logger: logger}, nil
}

// Path returns the database file path.
func (s *BoltStore) Path() string { return s.path }

// Write replaces the persisted session with sess.
func (s *BoltStore) Write(sess domain.BlockSession) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()

	names := sess.Domains.Names()
	err = db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketSession); err != nil && !errors.Is(err, bberrors.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(bucketSession)
		if err != nil {
			return err
		}
		puts := []struct {
			k, v []byte
		}{
			{keyFormat, []byte(recordFormat)},
			{keyStarted, encodeInt(sess.StartedAt.UnixNano())},
			{keyExpiry, encodeInt(sess.Expiry.UnixNano())},
			{keyStagedPath, []byte(sess.StagedPath)},
			{keyDomainCount, encodeInt(int64(len(names)))},
			{keyDomains, []byte(strings.Join(names, "\n"))},
		}
		for _, p := range puts {
			if err := b.Put(p.k, p.v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := utils.MatchParentOwner(s.path); err != nil {
		s.logger.Warn(map[string]any{"path": s.path, "error": err}, "session_owner_unchanged")
	}
	s.logger.Debug(map[string]any{"expiry": sess.Expiry, "domains": len(names)}, "session_written")
	return nil
}

// Read returns the persisted session. ok is false when none exists.
// An unreadable database or record yields domain.ErrLockCorrupt; the caller
// decides what that means, Read never guesses.
func (s *BoltStore) Read() (sess domain.BlockSession, ok bool, err error) {
	if _, statErr := os.Stat(s.path); errors.Is(statErr, fs.ErrNotExist) {
		return domain.BlockSession{}, false, nil
	}
	db, err := s.open(true)
	if err != nil {
		return domain.BlockSession{}, false, err
	}
	defer db.Close()

	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if b == nil {
			return nil
		}
		sess, err = decodeSession(b)
		if err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		s.logger.Error(map[string]any{"path": s.path, "error": err}, "session_corrupt")
		return domain.BlockSession{}, false, err
	}
	return sess, ok, nil
}

// Clear removes the persisted session. A corrupt database is deleted outright.
func (s *BoltStore) Clear() error {
	if _, statErr := os.Stat(s.path); errors.Is(statErr, fs.ErrNotExist) {
		return nil
	}
	db, err := s.open(false)
	if errors.Is(err, domain.ErrLockCorrupt) {
		s.logger.Warn(map[string]any{"path": s.path}, "session_store_removed")
		if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return fmt.Errorf("remove corrupt session store: %w", rmErr)
		}
		return nil
	}
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketSession); err != nil && !errors.Is(err, bberrors.ErrBucketNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Debug(nil, "session_cleared")
	return nil
}

// open opens the database, mapping format-level failures to domain.ErrLockCorrupt.
func (s *BoltStore) open(readOnly bool) (*bbolt.DB, error) {
	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: s.timeout, ReadOnly: readOnly})
	if err == nil {
		return db, nil
	}
	switch {
	case errors.Is(err, bberrors.ErrTimeout):
		return nil, fmt.Errorf("session store %s is busy: %w", s.path, err)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("open session store %s: %w", s.path, err)
	default:
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrLockCorrupt, s.path, err)
	}
}

// decodeSession rebuilds a session from its bucket, validating every field.
func decodeSession(b *bbolt.Bucket) (domain.BlockSession, error) {
	corrupt := func(format string, args ...any) (domain.BlockSession, error) {
		return domain.BlockSession{}, fmt.Errorf("%w: %s", domain.ErrLockCorrupt, fmt.Sprintf(format, args...))
	}

	if f := string(b.Get(keyFormat)); f != recordFormat {
		return corrupt("unsupported record format %q", f)
	}
	expiry, ok := decodeInt(b.Get(keyExpiry))
	if !ok || expiry <= 0 {
		return corrupt("missing or invalid expiry")
	}
	started, ok := decodeInt(b.Get(keyStarted))
	if !ok {
		return corrupt("missing or invalid start time")
	}
	count, ok := decodeInt(b.Get(keyDomainCount))
	if !ok {
		return corrupt("missing or invalid domain count")
	}

	var raw []string
	if v := b.Get(keyDomains); len(v) > 0 {
		raw = strings.Split(string(v), "\n")
	}
	domains, err := domain.NewDomainList(raw)
	if err != nil {
		return corrupt("domains: %v", err)
	}
	if int64(domains.Len()) != count {
		return corrupt("domain count %d does not match %d stored domains", count, domains.Len())
	}

	sess := domain.BlockSession{
		StartedAt:  time.Unix(0, started).UTC(),
		Expiry:     time.Unix(0, expiry).UTC(),
		StagedPath: string(b.Get(keyStagedPath)),
		Domains:    domains,
	}
	if err := sess.Validate(); err != nil {
		return corrupt("%v", err)
	}
	return sess, nil
}

func encodeInt(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func decodeInt(v []byte) (int64, bool) {
	if len(v) != 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(v)), true
}
