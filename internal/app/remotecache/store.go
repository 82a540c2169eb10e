package remotecache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/peterbourgon/diskv/v3"
	"github.com/taskleaf/taskleaf/internal/calendar"
)

// Snapshot is one user's mirrored remote calendar window. Refreshes replace
// the whole snapshot, so a stored snapshot is always internally consistent.
type Snapshot struct {
	UserID    string           `json:"user_id"`
	From      calendar.Date    `json:"from"`
	To        calendar.Date    `json:"to"`
	FetchedAt time.Time        `json:"fetched_at"`
	Events    []calendar.Event `json:"events"`
}

// Store persists snapshots on disk, one file per user.
type Store struct {
	d *diskv.Diskv
}

func NewStore(basePath string) *Store {
	return &Store{d: diskv.New(diskv.Options{
		BasePath:          basePath,
		AdvancedTransform: keyToPathTransform,
		InverseTransform:  pathToKeyTransform,
		CacheSizeMax:      4 * 1024 * 1024,
	})}
}

func snapshotKey(userID string) string {
	return "users/" + userID
}

func keyToPathTransform(key string) *diskv.PathKey {
	parts := strings.Split(key, "/")
	return &diskv.PathKey{
		Path:     parts[:len(parts)-1],
		FileName: parts[len(parts)-1] + ".json",
	}
}

func pathToKeyTransform(pathKey *diskv.PathKey) string {
	name := strings.TrimSuffix(pathKey.FileName, ".json")
	if len(pathKey.Path) == 0 {
		return name
	}
	return strings.Join(pathKey.Path, "/") + "/" + name
}

// Get loads a user's snapshot. A missing snapshot is not an error; it reports
// ok=false so callers can fall back to an empty remote view.
func (s *Store) Get(userID string) (Snapshot, bool, error) {
	data, err := s.d.Read(snapshotKey(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("read snapshot for %s: %w", userID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("unmarshal snapshot for %s: %w", userID, err)
	}
	return snap, true, nil
}

func (s *Store) Put(snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot for %s: %w", snap.UserID, err)
	}
	if err := s.d.Write(snapshotKey(snap.UserID), data); err != nil {
		return fmt.Errorf("write snapshot for %s: %w", snap.UserID, err)
	}
	return nil
}

func (s *Store) Delete(userID string) error {
	err := s.d.Erase(snapshotKey(userID))
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
