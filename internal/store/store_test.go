package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type record struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := New(10 * time.Second)
	path := filepath.Join(t.TempDir(), "record.json")

	want := record{Name: "alpha", Count: 3}
	if err := s.Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got record
	meta, err := s.Read(path, &got)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if meta.Stale {
		t.Error("fresh record reported stale")
	}
	if meta.WrittenAt.IsZero() {
		t.Error("missing write timestamp")
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	s := New(10 * time.Second)
	path := filepath.Join(t.TempDir(), "record.yaml")

	want := record{Name: "beta", Count: 7}
	if err := s.Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got record
	if _, err := s.Read(path, &got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestReadNotFound(t *testing.T) {
	s := New(10 * time.Second)
	var got record
	_, err := s.Read(filepath.Join(t.TempDir(), "missing.json"), &got)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCorruptRecovery(t *testing.T) {
	s := New(10 * time.Second)
	path := filepath.Join(t.TempDir(), "record.json")

	if err := os.WriteFile(path, []byte("{not valid json!"), 0644); err != nil {
		t.Fatal(err)
	}

	var got record
	_, err := s.Read(path, &got)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}

	// The corrupt file is preserved aside for diagnosis.
	if _, err := os.Stat(path + ".corrupted"); err != nil {
		t.Errorf("corrupt file not preserved: %v", err)
	}

	// A subsequent write succeeds and overwrites the corruption.
	if err := s.Write(path, record{Name: "recovered"}); err != nil {
		t.Fatalf("Write after corruption: %v", err)
	}
	if _, err := s.Read(path, &got); err != nil {
		t.Fatalf("Read after recovery: %v", err)
	}
	if got.Name != "recovered" {
		t.Errorf("got %q, want %q", got.Name, "recovered")
	}
}

func TestEnvelopeWithoutTimestampIsCorrupt(t *testing.T) {
	s := New(10 * time.Second)
	path := filepath.Join(t.TempDir(), "record.json")

	// Valid JSON, but not a record this store wrote.
	if err := os.WriteFile(path, []byte(`{"name":"bare"}`), 0644); err != nil {
		t.Fatal(err)
	}

	var got record
	if _, err := s.Read(path, &got); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt for bare payload, got %v", err)
	}
}

func TestStalenessBoundary(t *testing.T) {
	threshold := 10 * time.Second
	s := New(threshold)
	path := filepath.Join(t.TempDir(), "record.json")

	writeTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return writeTime }
	if err := s.Write(path, record{Name: "aging"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	cases := []struct {
		name  string
		at    time.Time
		stale bool
	}{
		{"just under threshold", writeTime.Add(threshold - time.Millisecond), false},
		{"just over threshold", writeTime.Add(threshold + time.Millisecond), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s.now = func() time.Time { return tc.at }
			var got record
			meta, err := s.Read(path, &got)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if meta.Stale != tc.stale {
				t.Errorf("stale = %v, want %v (age %v)", meta.Stale, tc.stale, meta.Age)
			}
		})
	}
}

func TestConcurrentWritersNeverTear(t *testing.T) {
	s := New(time.Minute)
	path := filepath.Join(t.TempDir(), "record.json")

	// N writers each write a self-consistent record; every successful read
	// must observe a value written by exactly one of them.
	const writers = 8
	const rounds = 25

	var writerWG sync.WaitGroup
	for i := 0; i < writers; i++ {
		writerWG.Add(1)
		go func(id int) {
			defer writerWG.Done()
			for r := 0; r < rounds; r++ {
				v := record{Name: fmt.Sprintf("writer-%d", id), Count: id}
				if err := s.Write(path, v); err != nil {
					t.Errorf("Write: %v", err)
					return
				}
			}
		}(i)
	}

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			var got record
			_, err := s.Read(path, &got)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue // first write not landed yet
				}
				t.Errorf("Read: %v", err)
				return
			}
			// Name and Count must agree: a torn write would mix them.
			want := fmt.Sprintf("writer-%d", got.Count)
			if got.Name != want {
				t.Errorf("torn read: %+v", got)
				return
			}
		}
	}()

	writerWG.Wait()
	close(stop)
	<-readerDone

	var got record
	if _, err := s.Read(path, &got); err != nil {
		t.Fatalf("final Read: %v", err)
	}
	if !strings.HasPrefix(got.Name, "writer-") {
		t.Errorf("unexpected final record: %+v", got)
	}
}

func TestWithLockSerializesReadModifyWrite(t *testing.T) {
	s := New(time.Minute)
	path := filepath.Join(t.TempDir(), "counter.json")

	if err := s.Write(path, record{Count: 0}); err != nil {
		t.Fatal(err)
	}

	const workers = 6
	const increments = 10

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < increments; r++ {
				err := s.WithLock(path, func() error {
					var v record
					if _, err := s.Read(path, &v); err != nil {
						return err
					}
					v.Count++
					return s.Write(path, v)
				})
				if err != nil {
					t.Errorf("WithLock: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	var got record
	if _, err := s.Read(path, &got); err != nil {
		t.Fatal(err)
	}
	if got.Count != workers*increments {
		t.Errorf("lost updates: count = %d, want %d", got.Count, workers*increments)
	}
}
