package fileops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haplink/haplink/internal/dlcache"
	"github.com/haplink/haplink/internal/hap"
	"github.com/haplink/haplink/internal/prefs"
)

// fakeServer records every call in order so tests can assert sequencing.
type fakeServer struct {
	calls    []string
	existing map[string]bool

	existsErr  error
	uploadErr  error
	deleteErr  error
	deleteEcho map[string]string // path -> echo override, default base name
	pasteErr   map[string]error  // oldPath -> error
	content    string
}

func newFakeServer(existing ...string) *fakeServer {
	m := make(map[string]bool)
	for _, p := range existing {
		m[p] = true
	}
	return &fakeServer{existing: m}
}

func (f *fakeServer) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeServer) ItemExists(ctx context.Context, p string) (bool, error) {
	f.record("exists:%s", p)
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.existing[p], nil
}

func (f *fakeServer) Upload(ctx context.Context, localPath, remoteFolder, name string, fn hap.ProgressFunc) error {
	f.record("upload:%s/%s", remoteFolder, name)
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.existing[remoteFolder+"/"+name] = true
	return nil
}

func (f *fakeServer) Delete(ctx context.Context, p string) (string, error) {
	f.record("delete:%s", p)
	if f.deleteErr != nil {
		return "", f.deleteErr
	}
	delete(f.existing, p)
	if echo, ok := f.deleteEcho[p]; ok {
		return echo, nil
	}
	return path.Base(p), nil
}

func (f *fakeServer) CreateFolder(ctx context.Context, parentPath, name string) error {
	f.record("mkdir:%s/%s", parentPath, name)
	f.existing[parentPath+"/"+name] = true
	return nil
}

func (f *fakeServer) PasteItem(ctx context.Context, oldPath, newPath string, overwrite, move bool) error {
	f.record("paste:%s->%s overwrite=%t move=%t", oldPath, newPath, overwrite, move)
	if err := f.pasteErr[oldPath]; err != nil {
		return err
	}
	return nil
}

func (f *fakeServer) Download(ctx context.Context, p string, fn hap.ProgressFunc) (string, error) {
	f.record("download:%s", p)
	tmp, err := os.CreateTemp("", "dl-*")
	if err != nil {
		return "", err
	}
	tmp.WriteString(f.content)
	tmp.Close()
	return tmp.Name(), nil
}

// callsMatching returns the recorded calls with the given prefix.
func (f *fakeServer) callsMatching(prefix string) []string {
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

type fakeStore struct {
	items   []prefs.PasteItem
	history [][]prefs.PasteItem
}

func (s *fakeStore) PasteItems() ([]prefs.PasteItem, error) { return s.items, nil }

func (s *fakeStore) SetPasteItems(items []prefs.PasteItem) error {
	cp := make([]prefs.PasteItem, len(items))
	copy(cp, items)
	s.items = cp
	s.history = append(s.history, cp)
	return nil
}

func decideAlways(d Decision) DecideFunc {
	return func(Conflict) Decision { return d }
}

func tempSrc(t *testing.T, name string) LocalFile {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("content"), 0600))
	return LocalFile{Path: p}
}

func TestUploadSingleNoConflict(t *testing.T) {
	srv := newFakeServer()
	c := NewCoordinator(srv, Options{})
	src := tempSrc(t, "essay.docx")

	out := c.UploadSingle(context.Background(), src, "H/docs", "", nil)

	require.Equal(t, StatusDone, out.Status)
	assert.Equal(t, "essay.docx", out.FinalName)
	assert.Equal(t, []string{"exists:H/docs/essay.docx", "upload:H/docs/essay.docx"}, srv.calls)

	// Source is removed after a successful upload.
	_, err := os.Stat(src.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestUploadSingleKeepLocal(t *testing.T) {
	srv := newFakeServer()
	c := NewCoordinator(srv, Options{})
	src := tempSrc(t, "essay.docx")
	src.KeepLocal = true

	out := c.UploadSingle(context.Background(), src, "H/docs", "", nil)

	require.Equal(t, StatusDone, out.Status)
	_, err := os.Stat(src.Path)
	assert.NoError(t, err)
}

func TestUploadSingleSanitizesName(t *testing.T) {
	srv := newFakeServer()
	c := NewCoordinator(srv, Options{})
	src := tempSrc(t, "plain.txt")

	out := c.UploadSingle(context.Background(), src, "H", `bad:name?.txt`, nil)

	require.Equal(t, StatusDone, out.Status)
	assert.Equal(t, "bad_name_.txt", out.FinalName)
}

func TestUploadSingleConflictSkip(t *testing.T) {
	srv := newFakeServer("H/docs/essay.docx")
	c := NewCoordinator(srv, Options{Decide: decideAlways(Skip)})

	out := c.UploadSingle(context.Background(), tempSrc(t, "essay.docx"), "H/docs", "", nil)

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Empty(t, srv.callsMatching("upload:"))
	assert.Empty(t, srv.callsMatching("delete:"))
}

func TestUploadSingleConflictReplace(t *testing.T) {
	srv := newFakeServer("H/docs/essay.docx")
	c := NewCoordinator(srv, Options{Decide: decideAlways(Replace)})

	out := c.UploadSingle(context.Background(), tempSrc(t, "essay.docx"), "H/docs", "", nil)

	require.Equal(t, StatusDone, out.Status)
	assert.Equal(t, []string{
		"exists:H/docs/essay.docx",
		"delete:H/docs/essay.docx",
		"upload:H/docs/essay.docx",
	}, srv.calls)
}

func TestUploadSingleReplaceDeleteEchoMismatch(t *testing.T) {
	srv := newFakeServer("H/docs/essay.docx")
	srv.deleteEcho = map[string]string{"H/docs/essay.docx": "other.docx"}
	c := NewCoordinator(srv, Options{Decide: decideAlways(Replace)})

	out := c.UploadSingle(context.Background(), tempSrc(t, "essay.docx"), "H/docs", "", nil)

	require.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, ErrDeleteMismatch)
	// The replacement upload must not run after a failed delete.
	assert.Empty(t, srv.callsMatching("upload:"))
}

func TestUploadSingleConflictCreateNew(t *testing.T) {
	srv := newFakeServer("H/docs/essay.docx", "H/docs/essay-1.docx")
	c := NewCoordinator(srv, Options{Decide: decideAlways(CreateNew)})

	out := c.UploadSingle(context.Background(), tempSrc(t, "essay.docx"), "H/docs", "", nil)

	require.Equal(t, StatusDone, out.Status)
	assert.Equal(t, "essay-2.docx", out.FinalName)
	assert.Equal(t, []string{"upload:H/docs/essay-2.docx"}, srv.callsMatching("upload:"))
}

func TestUploadSingleConflictNoDecider(t *testing.T) {
	srv := newFakeServer("H/docs/essay.docx")
	c := NewCoordinator(srv, Options{})

	out := c.UploadSingle(context.Background(), tempSrc(t, "essay.docx"), "H/docs", "", nil)

	require.Equal(t, StatusFailed, out.Status)
	ce, ok := AsConflict(out.Err)
	require.True(t, ok, "expected ConflictError, got %v", out.Err)
	assert.Equal(t, "H/docs/essay.docx", ce.Path)
}

// A failed item must reach its terminal outcome before the next item's
// existence check starts, and must not abort the batch.
func TestUploadBatchSequential(t *testing.T) {
	srv := newFakeServer("H/a.txt")
	c := NewCoordinator(srv, Options{Decide: decideAlways(Replace)})

	var ticks []string
	outs := c.UploadBatch(context.Background(), []LocalFile{
		tempSrc(t, "a.txt"),
		tempSrc(t, "b.txt"),
	}, "H", func(i, total int, name string) {
		ticks = append(ticks, fmt.Sprintf("%d/%d %s", i, total, name))
	})

	require.Len(t, outs, 2)
	assert.Equal(t, StatusDone, outs[0].Status)
	assert.Equal(t, StatusDone, outs[1].Status)
	assert.Equal(t, []string{"1/2 a.txt", "2/2 b.txt"}, ticks)

	// Item 1 runs to completion (exists, delete, upload) before item 2's
	// existence check.
	assert.Equal(t, []string{
		"exists:H/a.txt",
		"delete:H/a.txt",
		"upload:H/a.txt",
		"exists:H/b.txt",
		"upload:H/b.txt",
	}, srv.calls)
}

func TestUploadBatchFailureDoesNotAbort(t *testing.T) {
	srv := newFakeServer()
	srv.existsErr = errors.New("boom")
	c := NewCoordinator(srv, Options{})

	outs := c.UploadBatch(context.Background(), []LocalFile{
		tempSrc(t, "a.txt"),
		tempSrc(t, "b.txt"),
	}, "H", nil)

	require.Len(t, outs, 2)
	assert.Equal(t, StatusFailed, outs[0].Status)
	assert.Equal(t, StatusFailed, outs[1].Status)
}

func TestDeleteSingleEchoVerification(t *testing.T) {
	srv := newFakeServer("H/essay.docx")
	c := NewCoordinator(srv, Options{})

	require.NoError(t, c.DeleteSingle(context.Background(), "H/essay.docx"))
}

func TestDeleteSingleEchoCaseInsensitive(t *testing.T) {
	srv := newFakeServer("H/Essay.docx")
	srv.deleteEcho = map[string]string{"H/Essay.docx": "ESSAY.DOCX"}
	c := NewCoordinator(srv, Options{})

	require.NoError(t, c.DeleteSingle(context.Background(), "H/Essay.docx"))
}

func TestDeleteSingleEchoMismatch(t *testing.T) {
	srv := newFakeServer("H/essay.docx")
	srv.deleteEcho = map[string]string{"H/essay.docx": "unrelated.txt"}
	c := NewCoordinator(srv, Options{})

	err := c.DeleteSingle(context.Background(), "H/essay.docx")
	assert.ErrorIs(t, err, ErrDeleteMismatch)
}

func TestCreateFolder(t *testing.T) {
	srv := newFakeServer()
	c := NewCoordinator(srv, Options{})

	name, err := c.CreateFolder(context.Background(), "H", `term: 3?`)
	require.NoError(t, err)
	assert.Equal(t, "term_ 3_", name)
	assert.Equal(t, []string{"exists:H/term_ 3_", "mkdir:H/term_ 3_"}, srv.calls)
}

func TestCreateFolderAlreadyExists(t *testing.T) {
	srv := newFakeServer("H/docs")
	c := NewCoordinator(srv, Options{Decide: decideAlways(Replace)})

	_, err := c.CreateFolder(context.Background(), "H", "docs")
	assert.ErrorIs(t, err, ErrFolderExists)
	// Folders are never overwritten: no delete, no mkdir, no decision asked.
	assert.Empty(t, srv.callsMatching("mkdir:"))
	assert.Empty(t, srv.callsMatching("delete:"))
}

func TestPasteBatchEmpty(t *testing.T) {
	srv := newFakeServer()
	c := NewCoordinator(srv, Options{})

	_, err := c.PasteBatch(context.Background(), nil, "T")
	assert.ErrorIs(t, err, ErrNothingToDo)
	assert.Empty(t, srv.calls)
}

func TestPasteBatchTwoPhase(t *testing.T) {
	srv := newFakeServer()
	store := &fakeStore{}
	items := []prefs.PasteItem{
		{OldPath: "H/a.txt", Move: true},
		{OldPath: "H/b.txt", Move: true},
	}
	store.SetPasteItems(items)
	store.history = nil
	c := NewCoordinator(srv, Options{Store: store})

	outs, err := c.PasteBatch(context.Background(), items, "T")
	require.NoError(t, err)
	require.Len(t, outs, 2)
	assert.Equal(t, StatusDone, outs[0].Status)
	assert.Equal(t, StatusDone, outs[1].Status)

	// Both existence checks precede the first mutating call.
	assert.Equal(t, []string{
		"exists:T/a.txt",
		"exists:T/b.txt",
		"paste:H/a.txt->T/a.txt overwrite=false move=true",
		"paste:H/b.txt->T/b.txt overwrite=false move=true",
	}, srv.calls)

	// The durable list shrinks per confirmation and ends empty.
	require.Len(t, store.history, 2)
	assert.Len(t, store.history[0], 1)
	assert.Len(t, store.history[1], 0)
	assert.Empty(t, store.items)
}

func TestPasteBatchConflictCreateNew(t *testing.T) {
	srv := newFakeServer("T/a.txt")
	c := NewCoordinator(srv, Options{Decide: decideAlways(CreateNew)})

	outs, err := c.PasteBatch(context.Background(), []prefs.PasteItem{
		{OldPath: "H/a.txt"},
	}, "T")
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, "a-1.txt", outs[0].FinalName)
	assert.Contains(t, srv.calls, "paste:H/a.txt->T/a-1.txt overwrite=false move=false")
}

func TestPasteBatchConflictReplace(t *testing.T) {
	srv := newFakeServer("T/a.txt")
	c := NewCoordinator(srv, Options{Decide: decideAlways(Replace)})

	outs, err := c.PasteBatch(context.Background(), []prefs.PasteItem{
		{OldPath: "H/a.txt", Move: true},
	}, "T")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, outs[0].Status)
	assert.Contains(t, srv.calls, "paste:H/a.txt->T/a.txt overwrite=true move=true")
}

func TestPasteBatchAllSkippedNothingToDo(t *testing.T) {
	srv := newFakeServer("T/a.txt")
	store := &fakeStore{}
	items := []prefs.PasteItem{{OldPath: "H/a.txt"}}
	store.SetPasteItems(items)
	c := NewCoordinator(srv, Options{Store: store, Decide: decideAlways(Skip)})

	outs, err := c.PasteBatch(context.Background(), items, "T")
	assert.ErrorIs(t, err, ErrNothingToDo)
	require.Len(t, outs, 1)
	assert.Equal(t, StatusSkipped, outs[0].Status)
	assert.Empty(t, srv.callsMatching("paste:"))
	assert.Empty(t, store.items)
}

func TestPasteBatchFailedItemStaysPending(t *testing.T) {
	srv := newFakeServer()
	srv.pasteErr = map[string]error{"H/b.txt": errors.New("server 500")}
	store := &fakeStore{}
	items := []prefs.PasteItem{
		{OldPath: "H/a.txt"},
		{OldPath: "H/b.txt"},
		{OldPath: "H/c.txt"},
	}
	store.SetPasteItems(items)
	c := NewCoordinator(srv, Options{Store: store})

	outs, err := c.PasteBatch(context.Background(), items, "T")
	require.NoError(t, err)
	require.Len(t, outs, 3)
	assert.Equal(t, StatusDone, outs[0].Status)
	assert.Equal(t, StatusFailed, outs[1].Status)
	assert.Equal(t, StatusDone, outs[2].Status)

	// b's failure does not block c, but b stays pending for a retry.
	require.Len(t, store.items, 1)
	assert.Equal(t, "H/b.txt", store.items[0].OldPath)
	assert.Contains(t, srv.calls, "paste:H/c.txt->T/c.txt overwrite=false move=false")
}

func TestDownloadSingleCachesContent(t *testing.T) {
	srv := newFakeServer()
	srv.content = "payload"
	cache, err := dlcache.New(filepath.Join(t.TempDir(), "cache"), 1<<20)
	require.NoError(t, err)
	c := NewCoordinator(srv, Options{Cache: cache})

	local, err := c.DownloadSingle(context.Background(), "H/essay.docx", nil)
	require.NoError(t, err)
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	// Second fetch is served from the cache without a server call.
	srv.calls = nil
	local2, err := c.DownloadSingle(context.Background(), "H/essay.docx", nil)
	require.NoError(t, err)
	assert.Equal(t, local, local2)
	assert.Empty(t, srv.calls)
}
