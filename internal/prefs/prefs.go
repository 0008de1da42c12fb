// Package prefs persists the small cross-launch client state: last known
// server, site name, device mode, and the pending paste list that survives
// the cut -> navigate -> paste gesture.
//
// Tokens and passwords are never stored here.
package prefs

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

const (
	settingsBucket = "settings"
	pasteBucket    = "paste"

	keyServerURL  = "server_url"
	keySiteName   = "site_name"
	keyDeviceMode = "device_mode"
	keyPasteItems = "items"
)

// PasteItem is one cut/copy-marked file awaiting its move/copy call.
type PasteItem struct {
	OldPath   string `json:"old_path"`
	NewPath   string `json:"new_path"`
	Overwrite bool   `json:"overwrite"`
	Move      bool   `json:"move"` // cut = move, copy = keep original
}

// Store is a bbolt-backed preference store.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the preference database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open prefs db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(settingsBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(pasteBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init prefs db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) getString(key string) string {
	var val string
	s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket([]byte(settingsBucket)).Get([]byte(key)); data != nil {
			val = string(data)
		}
		return nil
	})
	return val
}

func (s *Store) putString(key, val string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(settingsBucket)).Put([]byte(key), []byte(val))
	})
}

// ServerURL returns the last known server URL (login prefill).
func (s *Store) ServerURL() string { return s.getString(keyServerURL) }

// SetServerURL stores the last known server URL.
func (s *Store) SetServerURL(u string) error { return s.putString(keyServerURL, u) }

// SiteName returns the last known site name (login prefill).
func (s *Store) SiteName() string { return s.getString(keySiteName) }

// SetSiteName stores the last known site name.
func (s *Store) SetSiteName(n string) error { return s.putString(keySiteName, n) }

// DeviceMode returns the configured device mode ("", "personal", "shared",
// "single").
func (s *Store) DeviceMode() string { return s.getString(keyDeviceMode) }

// SetDeviceMode stores the device mode.
func (s *Store) SetDeviceMode(m string) error { return s.putString(keyDeviceMode, m) }

// PasteItems returns the pending paste list.
func (s *Store) PasteItems() ([]PasteItem, error) {
	var items []PasteItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(pasteBucket)).Get([]byte(keyPasteItems))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &items)
	})
	if err != nil {
		return nil, fmt.Errorf("load paste items: %w", err)
	}
	return items, nil
}

// SetPasteItems atomically replaces the pending paste list.
func (s *Store) SetPasteItems(items []PasteItem) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(pasteBucket))
		if len(items) == 0 {
			return b.Delete([]byte(keyPasteItems))
		}
		data, err := json.Marshal(items)
		if err != nil {
			return err
		}
		return b.Put([]byte(keyPasteItems), data)
	})
}

// ClearPaste drops the pending paste list in a single update, so a logout
// cannot leak one user's pending operation into the next session.
func (s *Store) ClearPaste() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(pasteBucket)).Delete([]byte(keyPasteItems))
	})
}
