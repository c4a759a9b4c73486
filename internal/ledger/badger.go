package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/charmbracelet/log"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// BadgerStore keeps records in a BadgerDB keyed by room, table and round,
// with msgpack-encoded values
type BadgerStore struct {
	db *badger.DB
}

// BadgerOptions configures a BadgerStore
type BadgerOptions struct {
	// Dir holds the database files. Required unless InMemory is set.
	Dir string

	// InMemory keeps everything in memory, for tests
	InMemory bool

	Logger *log.Logger
}

// NewBadgerStore opens (or creates) the database
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("ledger: badger store needs a directory")
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	var logger badgerLogger
	if opts.Logger != nil {
		logger.logger = opts.Logger.WithPrefix("badger")
	}
	dbOpts = dbOpts.WithLogger(logger)

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("ledger: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Keys sort by table, then round because the round is zero padded. The
// room ID is escaped so one room's prefix never matches another room.
func roundKey(rec Record) []byte {
	return fmt.Appendf(roomPrefix(rec.RoomID), "%s/%010d", url.PathEscape(rec.Table), rec.Round)
}

func roomPrefix(roomID string) []byte {
	return fmt.Appendf(nil, "round/%s/", url.PathEscape(roomID))
}

func (s *BadgerStore) Append(_ context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: encode room %s round %d: %w", rec.RoomID, rec.Round, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(roundKey(rec), data)
	})
}

func (s *BadgerStore) History(_ context.Context, roomID string) ([]Record, error) {
	var records []Record
	prefix := roomPrefix(roomID)

	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec Record
			if err := msgpack.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: history for room %s: %w", roomID, err)
	}
	return records, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's warnings and errors through charm log. Info
// and debug chatter is dropped, as is everything when logger is nil.
type badgerLogger struct {
	logger *log.Logger
}

func (l badgerLogger) Errorf(f string, v ...any) {
	if l.logger != nil {
		l.logger.Errorf(f, v...)
	}
}

func (l badgerLogger) Warningf(f string, v ...any) {
	if l.logger != nil {
		l.logger.Warnf(f, v...)
	}
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
