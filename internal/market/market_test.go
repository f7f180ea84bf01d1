package market

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/menjalnica/internal/db"
	"github.com/erazemk/menjalnica/internal/live"
	"github.com/erazemk/menjalnica/internal/metrics"
	"github.com/erazemk/menjalnica/internal/model"
	"github.com/erazemk/menjalnica/internal/store"
)

// fakeBlobs records calls and can be told to fail uploads.
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	deletes []string
	putErr  error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (f *fakeBlobs) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return "", f.putErr
	}
	f.objects[key] = data
	return "https://blobs.test/" + key, nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type testEnv struct {
	svc   *Service
	blobs *fakeBlobs
	clock int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	hub := live.NewHub(nil)
	t.Cleanup(func() { hub.Close() })

	env := &testEnv{blobs: newFakeBlobs(), clock: 1700000000000}
	env.svc = &Service{
		DB:      db.NewTestDB(t),
		Blobs:   env.blobs,
		Hub:     hub,
		Metrics: metrics.New(),
		Now: func() time.Time {
			env.clock++
			return time.UnixMilli(env.clock)
		},
	}
	return env
}

func (e *testEnv) user(t *testing.T, email string) string {
	t.Helper()
	u, err := store.CreateUser(context.Background(), e.svc.DB, &model.User{
		ID: uuid.NewString(), Email: email, PasswordHash: "x", CreatedAt: 1,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u.ID
}

func (e *testEnv) item(t *testing.T, owner, title, category string) *model.Item {
	t.Helper()
	it, err := e.svc.CreateItem(context.Background(), owner, model.ItemFields{
		Title:       title,
		Description: "Something worth swapping: " + title,
		Category:    category,
		Condition:   "good",
	}, testImage())
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return it
}

func testImage() *bytes.Buffer {
	var buf bytes.Buffer
	png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 48)))
	return &buf
}

func receive[T any](t *testing.T, sub *live.Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		if !ok {
			t.Fatalf("subscription closed: %v", sub.Err())
		}
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	var zero T
	return zero
}
