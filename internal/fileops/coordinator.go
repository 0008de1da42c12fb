// Package fileops coordinates mutating file operations against the server:
// uploads, deletes, folder creation, and the two-phase paste.
//
// All batch work is strictly sequential. The next item's existence check does
// not start until the previous item has reached a terminal outcome, because
// the server resolves names at call time and a concurrent batch could race
// its own conflict checks.
package fileops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/haplink/haplink/internal/dlcache"
	"github.com/haplink/haplink/internal/hap"
	"github.com/haplink/haplink/internal/logging"
	"github.com/haplink/haplink/internal/metrics"
	"github.com/haplink/haplink/internal/namepolicy"
	"github.com/haplink/haplink/internal/prefs"
)

// ErrDeleteMismatch is returned when the delete call succeeded at the
// transport level but the server's echo named a different item.
var ErrDeleteMismatch = errors.New("delete echo names a different item")

// ErrNothingToDo is returned by PasteBatch when resolution leaves no item to
// apply, e.g. when a logout cleared the pending list.
var ErrNothingToDo = errors.New("nothing to paste")

// ErrFolderExists is returned by CreateFolder when the target name is taken.
// Folders are never overwritten.
var ErrFolderExists = errors.New("folder already exists")

// Server is the slice of the HAP+ API the coordinator needs. Implemented by
// *hap.Client; tests substitute a recording fake.
type Server interface {
	ItemExists(ctx context.Context, path string) (bool, error)
	Upload(ctx context.Context, localPath, remoteFolder, name string, fn hap.ProgressFunc) error
	Delete(ctx context.Context, path string) (string, error)
	CreateFolder(ctx context.Context, parentPath, name string) error
	PasteItem(ctx context.Context, oldPath, newPath string, overwrite, move bool) error
	Download(ctx context.Context, path string, fn hap.ProgressFunc) (string, error)
}

// PasteStore is the durable pending-paste list. Implemented by *prefs.Store.
type PasteStore interface {
	PasteItems() ([]prefs.PasteItem, error)
	SetPasteItems([]prefs.PasteItem) error
}

// Status is the terminal outcome of one batch item.
type Status int

const (
	StatusDone Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// ItemOutcome reports what happened to one item of a batch.
type ItemOutcome struct {
	Name      string // name as requested
	FinalName string // name actually used on the server, set when done
	Status    Status
	Err       error
}

// LocalFile is a file on local disk queued for upload.
type LocalFile struct {
	Path      string
	Name      string // optional; base of Path when empty
	KeepLocal bool   // keep the local file after a successful upload
}

// BatchProgress reports batch position before each item starts.
type BatchProgress func(index, total int, name string)

// Options configures a Coordinator.
type Options struct {
	Cache  *dlcache.Cache
	Store  PasteStore
	Decide DecideFunc
}

// Coordinator runs file operations one at a time and delegates conflict
// decisions to the configured DecideFunc.
type Coordinator struct {
	server Server
	cache  *dlcache.Cache
	store  PasteStore
	decide DecideFunc
}

// NewCoordinator creates a coordinator around a server client.
func NewCoordinator(server Server, opts Options) *Coordinator {
	return &Coordinator{
		server: server,
		cache:  opts.Cache,
		store:  opts.Store,
		decide: opts.Decide,
	}
}

func joinPath(folder, name string) string {
	if folder == "" || folder == "/" {
		return strings.TrimPrefix(folder+"/"+name, "/")
	}
	return folder + "/" + name
}

// resolve asks the configured DecideFunc; without one the conflict is an
// error the caller must surface.
func (c *Coordinator) resolve(conflict Conflict) (Decision, error) {
	if c.decide == nil {
		return Skip, &ConflictError{Path: conflict.Path}
	}
	d := c.decide(conflict)
	metrics.RecordConflict(d.String())
	return d, nil
}

// UploadSingle uploads one local file into targetFolder. overrideName, when
// non-empty, replaces the local base name before sanitizing. A conflict on
// the target name is put to the DecideFunc; Replace deletes the existing
// item (echo-verified) before re-uploading, CreateNew probes for the next
// free alternate name, Skip leaves the server untouched.
func (c *Coordinator) UploadSingle(ctx context.Context, src LocalFile, targetFolder, overrideName string, fn hap.ProgressFunc) ItemOutcome {
	name := src.Name
	if overrideName != "" {
		name = overrideName
	}
	if name == "" {
		name = path.Base(src.Path)
	}
	name = namepolicy.Sanitize(name)

	out := c.uploadResolved(ctx, src, targetFolder, name, fn)
	metrics.RecordBatchItem("upload", out.Status.String())
	return out
}

func (c *Coordinator) uploadResolved(ctx context.Context, src LocalFile, folder, name string, fn hap.ProgressFunc) ItemOutcome {
	target := joinPath(folder, name)

	exists, err := c.server.ItemExists(ctx, target)
	if err != nil {
		return ItemOutcome{Name: name, Status: StatusFailed, Err: fmt.Errorf("check %s: %w", target, err)}
	}
	if !exists {
		return c.transfer(ctx, src, folder, name, fn)
	}

	decision, err := c.resolve(Conflict{Name: name, Folder: folder, Path: target})
	if err != nil {
		return ItemOutcome{Name: name, Status: StatusFailed, Err: err}
	}

	switch decision {
	case Skip:
		logging.Info("upload skipped", logging.String("target", target))
		return ItemOutcome{Name: name, Status: StatusSkipped}

	case Replace:
		if err := c.DeleteSingle(ctx, target); err != nil {
			return ItemOutcome{Name: name, Status: StatusFailed,
				Err: fmt.Errorf("replace %s: %w", target, err)}
		}
		return c.transfer(ctx, src, folder, name, fn)

	case CreateNew:
		free, err := namepolicy.NextFreeName(ctx, name, func(ctx context.Context, candidate string) (bool, error) {
			return c.server.ItemExists(ctx, joinPath(folder, candidate))
		})
		if err != nil {
			return ItemOutcome{Name: name, Status: StatusFailed,
				Err: fmt.Errorf("find free name for %s: %w", name, err)}
		}
		return c.transfer(ctx, src, folder, free, fn)
	}

	return ItemOutcome{Name: name, Status: StatusFailed, Err: fmt.Errorf("unhandled decision %v", decision)}
}

// transfer performs the actual upload and removes the local source unless it
// is marked to keep.
func (c *Coordinator) transfer(ctx context.Context, src LocalFile, folder, name string, fn hap.ProgressFunc) ItemOutcome {
	if err := c.server.Upload(ctx, src.Path, folder, name, fn); err != nil {
		return ItemOutcome{Name: name, Status: StatusFailed, Err: fmt.Errorf("upload %s: %w", name, err)}
	}
	if !src.KeepLocal {
		if err := os.Remove(src.Path); err != nil {
			logging.Warn("remove uploaded source", logging.String("path", src.Path), logging.Err(err))
		}
	}
	return ItemOutcome{Name: name, FinalName: name, Status: StatusDone}
}

// UploadBatch uploads the sources one at a time. A failed item is reported
// in its outcome and does not abort the batch.
func (c *Coordinator) UploadBatch(ctx context.Context, srcs []LocalFile, targetFolder string, onItem BatchProgress) []ItemOutcome {
	outcomes := make([]ItemOutcome, 0, len(srcs))
	for i, src := range srcs {
		name := src.Name
		if name == "" {
			name = path.Base(src.Path)
		}
		if onItem != nil {
			onItem(i+1, len(srcs), name)
		}
		outcomes = append(outcomes, c.UploadSingle(ctx, src, targetFolder, "", nil))
	}
	return outcomes
}

// DeleteSingle deletes one item and verifies the server's echo against the
// deleted item's base name. A mismatched echo means the server acted on
// something else, which is reported as ErrDeleteMismatch even though the
// transport call succeeded.
func (c *Coordinator) DeleteSingle(ctx context.Context, targetPath string) error {
	echo, err := c.server.Delete(ctx, targetPath)
	if err != nil {
		metrics.RecordBatchItem("delete", StatusFailed.String())
		return err
	}

	want := path.Base(targetPath)
	if !strings.EqualFold(strings.TrimSpace(echo), want) {
		metrics.RecordBatchItem("delete", StatusFailed.String())
		return fmt.Errorf("deleted %q, server echoed %q: %w", want, echo, ErrDeleteMismatch)
	}
	metrics.RecordBatchItem("delete", StatusDone.String())
	return nil
}

// CreateFolder creates a folder under parentPath after sanitizing rawName.
// An existing item of that name is ErrFolderExists; folders are never
// overwritten and never get alternate names. The sanitized name is returned.
func (c *Coordinator) CreateFolder(ctx context.Context, parentPath, rawName string) (string, error) {
	name := namepolicy.Sanitize(rawName)
	target := joinPath(parentPath, name)

	exists, err := c.server.ItemExists(ctx, target)
	if err != nil {
		return name, fmt.Errorf("check %s: %w", target, err)
	}
	if exists {
		return name, fmt.Errorf("%s: %w", target, ErrFolderExists)
	}
	if err := c.server.CreateFolder(ctx, parentPath, name); err != nil {
		return name, fmt.Errorf("create folder %s: %w", target, err)
	}
	return name, nil
}

type resolvedPaste struct {
	item      prefs.PasteItem
	newPath   string
	overwrite bool
	skip      bool
}

// PasteBatch applies a pending paste list into destFolder in two phases.
// Phase one resolves every item against the destination (exists-check plus
// conflict decision) without issuing a single mutating call; only when all
// items are resolved does phase two apply them one at a time, shrinking the
// durable pending list as the server confirms each. A failed item stays in
// the pending list for retry and does not block the items after it.
func (c *Coordinator) PasteBatch(ctx context.Context, items []prefs.PasteItem, destFolder string) ([]ItemOutcome, error) {
	if len(items) == 0 {
		return nil, ErrNothingToDo
	}

	// Phase 1: resolve.
	resolved := make([]resolvedPaste, 0, len(items))
	for _, item := range items {
		name := namepolicy.Sanitize(path.Base(item.OldPath))
		target := joinPath(destFolder, name)

		exists, err := c.server.ItemExists(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", target, err)
		}
		if !exists {
			resolved = append(resolved, resolvedPaste{item: item, newPath: target})
			continue
		}

		decision, err := c.resolve(Conflict{Name: name, Folder: destFolder, Path: target})
		if err != nil {
			return nil, err
		}
		switch decision {
		case Skip:
			resolved = append(resolved, resolvedPaste{item: item, skip: true})
		case Replace:
			resolved = append(resolved, resolvedPaste{item: item, newPath: target, overwrite: true})
		case CreateNew:
			free, err := namepolicy.NextFreeName(ctx, name, func(ctx context.Context, candidate string) (bool, error) {
				return c.server.ItemExists(ctx, joinPath(destFolder, candidate))
			})
			if err != nil {
				return nil, fmt.Errorf("find free name for %s: %w", name, err)
			}
			resolved = append(resolved, resolvedPaste{item: item, newPath: joinPath(destFolder, free)})
		}
	}

	pending := make([]prefs.PasteItem, len(items))
	copy(pending, items)

	applyCount := 0
	for _, r := range resolved {
		if !r.skip {
			applyCount++
		}
	}
	if applyCount == 0 {
		// All items dropped: clear the pending list, touch nothing remote.
		c.persistPending(pending[:0])
		outcomes := make([]ItemOutcome, 0, len(resolved))
		for _, r := range resolved {
			outcomes = append(outcomes, ItemOutcome{Name: path.Base(r.item.OldPath), Status: StatusSkipped})
		}
		return outcomes, ErrNothingToDo
	}

	// Phase 2: apply.
	outcomes := make([]ItemOutcome, 0, len(resolved))
	for _, r := range resolved {
		name := path.Base(r.item.OldPath)
		if r.skip {
			pending = removePending(pending, r.item)
			c.persistPending(pending)
			outcomes = append(outcomes, ItemOutcome{Name: name, Status: StatusSkipped})
			metrics.RecordBatchItem("paste", StatusSkipped.String())
			continue
		}

		err := c.server.PasteItem(ctx, r.item.OldPath, r.newPath, r.overwrite, r.item.Move)
		if err != nil {
			outcomes = append(outcomes, ItemOutcome{Name: name, Status: StatusFailed,
				Err: fmt.Errorf("paste %s: %w", name, err)})
			metrics.RecordBatchItem("paste", StatusFailed.String())
			continue
		}

		pending = removePending(pending, r.item)
		c.persistPending(pending)
		outcomes = append(outcomes, ItemOutcome{Name: name, FinalName: path.Base(r.newPath), Status: StatusDone})
		metrics.RecordBatchItem("paste", StatusDone.String())
	}
	return outcomes, nil
}

func (c *Coordinator) persistPending(pending []prefs.PasteItem) {
	if c.store == nil {
		return
	}
	if err := c.store.SetPasteItems(pending); err != nil {
		logging.Warn("persist pending paste list", logging.Err(err))
	}
}

func removePending(pending []prefs.PasteItem, item prefs.PasteItem) []prefs.PasteItem {
	for i, p := range pending {
		if p.OldPath == item.OldPath {
			return append(pending[:i], pending[i+1:]...)
		}
	}
	return pending
}

// DownloadSingle fetches one file and returns a local path to its content,
// serving from the download cache when possible.
func (c *Coordinator) DownloadSingle(ctx context.Context, remotePath string, fn hap.ProgressFunc) (string, error) {
	if c.cache != nil {
		if local, ok := c.cache.Get(remotePath); ok {
			return local, nil
		}
	}

	tmp, err := c.server.Download(ctx, remotePath, fn)
	if err != nil {
		return "", err
	}
	if c.cache == nil {
		return tmp, nil
	}
	return c.cache.Adopt(remotePath, tmp)
}
