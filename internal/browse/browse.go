// Package browse builds presentation-ready snapshots of drive and folder
// listings.
//
// A snapshot is rebuilt in full on every fetch; nothing is diffed. Items are
// addressed by index, but because a concurrent refresh may replace the
// backing array, any operation targeting an item must resolve it to a path
// string (PathAt) before issuing further asynchronous calls.
package browse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/haplink/haplink/internal/hap"
)

// Kind classifies a listed item.
type Kind int

const (
	KindDrive Kind = iota
	KindDirectory
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindDrive:
		return "drive"
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	}
	return "unknown"
}

// FileItem is one row of a listing, ephemeral and presentation-owned.
type FileItem struct {
	Name      string
	Path      string
	Kind      Kind
	Extension string
	Display   string // size / modified / usage summary for the UI
	Writable  bool
}

// Snapshot is an immutable listing of one folder or the drive list.
type Snapshot struct {
	FolderPath string
	Items      []FileItem
	FetchedAt  time.Time
}

// PathAt resolves an item index to its path. It returns false when the index
// no longer fits the snapshot.
func (s *Snapshot) PathAt(i int) (string, bool) {
	if i < 0 || i >= len(s.Items) {
		return "", false
	}
	return s.Items[i].Path, true
}

// Len returns the number of items.
func (s *Snapshot) Len() int { return len(s.Items) }

// FromDrives builds a snapshot of the drive list.
func FromDrives(drives []hap.Drive, now time.Time) *Snapshot {
	items := make([]FileItem, 0, len(drives))
	for _, d := range drives {
		items = append(items, FileItem{
			Name:     d.Name,
			Path:     d.Path,
			Kind:     KindDrive,
			Display:  fmt.Sprintf("%.0f%% used", d.Space),
			Writable: d.Writable,
		})
	}
	return &Snapshot{FolderPath: "", Items: items, FetchedAt: now}
}

// FromListing builds a snapshot of a folder listing.
func FromListing(folderPath string, listing []hap.Item, now time.Time) *Snapshot {
	items := make([]FileItem, 0, len(listing))
	for _, it := range listing {
		kind := KindFile
		if strings.EqualFold(it.Type, "Directory") {
			kind = KindDirectory
		}
		items = append(items, FileItem{
			Name:      it.Name,
			Path:      it.Path,
			Kind:      kind,
			Extension: it.Extension,
			Display:   displayFor(kind, it),
			Writable:  it.Writable,
		})
	}
	return &Snapshot{FolderPath: folderPath, Items: items, FetchedAt: now}
}

func displayFor(kind Kind, it hap.Item) string {
	if kind == KindDirectory {
		return it.ModifiedTime
	}
	size := it.Size
	// Older server builds send raw byte counts instead of display sizes.
	if n, ok := parseBytes(size); ok {
		size = humanize.IBytes(n)
	}
	if size == "" {
		return it.ModifiedTime
	}
	if it.ModifiedTime == "" {
		return size
	}
	return size + " · " + it.ModifiedTime
}

func parseBytes(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ChildPath constructs a child path from parent + name.
func ChildPath(parentPath, name string) string {
	if parentPath == "" || parentPath == "/" {
		return strings.TrimPrefix(parentPath+"/"+name, "/")
	}
	return parentPath + "/" + name
}
