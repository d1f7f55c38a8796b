package sync

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	gosync "sync"
	"testing"
	"time"

	"github.com/conorfennell/vocabsync/internal/api"
	"github.com/conorfennell/vocabsync/internal/domain"
	"github.com/conorfennell/vocabsync/internal/kv"
)

type session struct{ token string }

func (s session) IsAuthenticated() bool { return s.token != "" }
func (s session) Token() string         { return s.token }

type fakeRemote struct {
	mu      gosync.Mutex
	data    map[string]json.RawMessage
	uploads []map[string]json.RawMessage
	items   map[string]json.RawMessage
	tokens  []string
	err     error
	calls   int
}

func newRemote(data map[string]string) *fakeRemote {
	r := &fakeRemote{data: map[string]json.RawMessage{}, items: map[string]json.RawMessage{}}
	for k, v := range data {
		r.data[k] = json.RawMessage(v)
	}
	return r
}

func (r *fakeRemote) Upload(_ context.Context, token string, data map[string]json.RawMessage) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.tokens = append(r.tokens, token)
	if r.err != nil {
		return 0, r.err
	}
	r.uploads = append(r.uploads, data)
	for k, v := range data {
		r.data[k] = v
	}
	return len(data), nil
}

func (r *fakeRemote) Download(_ context.Context, token string) (map[string]json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.tokens = append(r.tokens, token)
	if r.err != nil {
		return nil, r.err
	}
	out := make(map[string]json.RawMessage, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out, nil
}

func (r *fakeRemote) PutItem(_ context.Context, token, key string, value json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	r.items[key] = value
	return nil
}

func (r *fakeRemote) uploadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.uploads)
}

func asStrings(m map[string]json.RawMessage) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = string(v)
	}
	return out
}

func storeContents(t *testing.T, s kv.Store) map[string]string {
	t.Helper()
	keys, _ := s.Keys()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k], _, _ = s.Get(k)
	}
	return out
}

func TestMergeLocalWins(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	store.Set("A", "1")
	store.Set("B", "2")
	remote := newRemote(map[string]string{"B": "9", "C": "3"})
	e := NewEngine(store, session{"tok"}, remote)

	count, err := e.MergeData(ctx)
	if err != nil {
		t.Fatalf("MergeData() returned an unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 keys uploaded, but got %d", count)
	}

	expected := map[string]string{"A": "1", "B": "2", "C": "3"}
	if got := storeContents(t, store); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected local store %v, but got %v", expected, got)
	}
	if len(remote.uploads) != 1 {
		t.Fatalf("Expected one upload, but got %d", len(remote.uploads))
	}
	if got := asStrings(remote.uploads[0]); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected upload %v, but got %v", expected, got)
	}
}

func TestDownloadOverwrites(t *testing.T) {
	store := kv.NewMemory()
	store.Set("B", "2")
	store.Set("local_only", "x")
	e := NewEngine(store, session{"tok"}, newRemote(map[string]string{"B": "9", "C": `"text"`}))

	n, err := e.DownloadAll(context.Background())
	if err != nil {
		t.Fatalf("DownloadAll() returned an unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 keys written, but got %d", n)
	}
	expected := map[string]string{"B": "9", "C": "text", "local_only": "x"}
	if got := storeContents(t, store); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected local store %v, but got %v", expected, got)
	}
}

func TestUploadExcludesAuthKeys(t *testing.T) {
	store := kv.NewMemory()
	store.Set(domain.KeyAuthToken, "secret")
	store.Set(domain.KeyAuthUser, `{"id":1}`)
	store.Set(domain.KeyVocabulary, `[{"originalWord":"猫"}]`)
	store.Set("note", "plain text")
	remote := newRemote(nil)
	e := NewEngine(store, session{"tok"}, remote)

	n, err := e.UploadAll(context.Background())
	if err != nil {
		t.Fatalf("UploadAll() returned an unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 keys uploaded, but got %d", n)
	}
	expected := map[string]string{
		domain.KeyVocabulary: `[{"originalWord":"猫"}]`,
		"note":               `"plain text"`,
	}
	if got := asStrings(remote.uploads[0]); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected upload %v, but got %v", expected, got)
	}
	if remote.tokens[0] != "tok" {
		t.Errorf("Expected token 'tok', but got %q", remote.tokens[0])
	}
}

func TestDownloadNeverOverwritesAuthKeys(t *testing.T) {
	store := kv.NewMemory()
	store.Set(domain.KeyAuthToken, "mine")
	e := NewEngine(store, session{"tok"}, newRemote(map[string]string{domain.KeyAuthToken: `"theirs"`}))

	e.DownloadAll(context.Background())
	if v, _, _ := store.Get(domain.KeyAuthToken); v != "mine" {
		t.Errorf("Expected the local token to be kept, but got %q", v)
	}
}

func TestUnauthenticatedSendsNothing(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(nil)
	e := NewEngine(kv.NewMemory(), session{}, remote)

	ops := map[string]func() error{
		"upload":   func() error { _, err := e.UploadAll(ctx); return err },
		"download": func() error { _, err := e.DownloadAll(ctx); return err },
		"merge":    func() error { _, err := e.MergeData(ctx); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, api.ErrUnauthenticated) {
				t.Errorf("Expected ErrUnauthenticated, but got %v", err)
			}
		})
	}

	e.SyncItem(ctx, "k", json.RawMessage(`1`))
	if remote.calls != 0 {
		t.Errorf("Expected no requests, but got %d", remote.calls)
	}
}

func TestFailuresWrapSyncFailedAndLeaveLocalState(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	store.Set("A", "1")
	remote := newRemote(map[string]string{"A": "2", "B": "3"})
	remote.err = &api.Error{Status: 500, Message: "sync upload failed"}
	e := NewEngine(store, session{"tok"}, remote)

	for name, op := range map[string]func() error{
		"upload":   func() error { _, err := e.UploadAll(ctx); return err },
		"download": func() error { _, err := e.DownloadAll(ctx); return err },
		"merge":    func() error { _, err := e.MergeData(ctx); return err },
	} {
		err := op()
		if !errors.Is(err, api.ErrSyncFailed) {
			t.Errorf("%s: Expected ErrSyncFailed, but got %v", name, err)
		}
		var apiErr *api.Error
		if !errors.As(err, &apiErr) || apiErr.Message != "sync upload failed" {
			t.Errorf("%s: Expected the server message to be carried, but got %v", name, err)
		}
	}

	expected := map[string]string{"A": "1"}
	if got := storeContents(t, store); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected local store untouched %v, but got %v", expected, got)
	}
}

func TestSyncItem(t *testing.T) {
	remote := newRemote(nil)
	e := NewEngine(kv.NewMemory(), session{"tok"}, remote)

	e.SyncItem(context.Background(), "vocab_book", json.RawMessage(`[]`))
	e.SyncItem(context.Background(), domain.KeyAuthUser, json.RawMessage(`{}`))
	if string(remote.items["vocab_book"]) != "[]" {
		t.Errorf("Expected vocab_book to be pushed, but got %v", remote.items)
	}
	if _, ok := remote.items[domain.KeyAuthUser]; ok {
		t.Error("Expected auth keys never to be pushed")
	}

	remote.err = errors.New("boom")
	e.SyncItem(context.Background(), "x", json.RawMessage(`1`))
}

func TestAutoSync(t *testing.T) {
	store := kv.NewMemory()
	store.Set("A", "1")
	remote := newRemote(nil)
	e := NewEngine(store, session{"tok"}, remote, WithInterval(20*time.Millisecond))

	if err := e.StartAutoSync(); err != nil {
		t.Fatalf("StartAutoSync() returned an unexpected error: %v", err)
	}
	if err := e.StartAutoSync(); err != nil {
		t.Fatalf("Expected a second start to be a no-op, got %v", err)
	}
	if !e.AutoSyncRunning() {
		t.Fatal("Expected auto sync to be running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for remote.uploadCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if remote.uploadCount() == 0 {
		t.Fatal("Expected at least one automatic upload")
	}

	e.StopAutoSync()
	e.StopAutoSync()
	if e.AutoSyncRunning() {
		t.Error("Expected auto sync to be stopped")
	}
	after := remote.uploadCount()
	time.Sleep(100 * time.Millisecond)
	if remote.uploadCount() != after {
		t.Errorf("Expected no uploads after stop, but got %d more", remote.uploadCount()-after)
	}
}

func TestAutoSyncSkipsWithoutSession(t *testing.T) {
	remote := newRemote(nil)
	e := NewEngine(kv.NewMemory(), session{}, remote, WithInterval(10*time.Millisecond))
	e.StartAutoSync()
	time.Sleep(60 * time.Millisecond)
	e.StopAutoSync()
	if remote.uploadCount() != 0 {
		t.Errorf("Expected no uploads without a session, but got %d", remote.uploadCount())
	}
}
