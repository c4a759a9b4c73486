package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lox/blackjack/internal/fileutil"
)

// FileStore writes each record as a JSON file under dir/room-<id>/, named
// by table and round. Files are written atomically so readers never see a
// partial record.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates dir if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("ledger: file store needs a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// recordName sorts by table, then round. Table IDs are fixed-length and
// time ordered.
func recordName(rec Record) string {
	return fmt.Sprintf("round-%s-%06d.json", url.PathEscape(rec.Table), rec.Round)
}

// roomDir escapes the room ID so client-chosen IDs cannot leave dir
func (s *FileStore) roomDir(roomID string) string {
	return filepath.Join(s.dir, "room-"+url.PathEscape(roomID))
}

func (s *FileStore) Append(_ context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: encode room %s round %d: %w", rec.RoomID, rec.Round, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.roomDir(rec.RoomID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ledger: create %s: %w", dir, err)
	}
	return fileutil.WriteFileAtomic(filepath.Join(dir, recordName(rec)), data, 0o644)
}

func (s *FileStore) History(_ context.Context, roomID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.roomDir(roomID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: list %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "round-") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("ledger: read %s: %w", name, err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("ledger: decode %s: %w", name, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *FileStore) Close() error { return nil }
