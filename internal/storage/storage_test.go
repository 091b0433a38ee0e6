package storage

import (
	"bytes"
	"fmt"
	"testing"
)

func TestSetGet(t *testing.T) {
	s, err := Open(t.TempDir() + "/db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if err := s.Set([]byte("key"), []byte("value")); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := s.Get([]byte("key"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if !bytes.Equal(got, []byte("value")) {
		t.Errorf("expected value, got %q", got)
	}
}

func TestGetMissing(t *testing.T) {
	s, err := Open(t.TempDir() + "/db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	got, err := s.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got != nil {
		t.Errorf("expected nil for missing key, got %q", got)
	}
}

func TestSetBatch(t *testing.T) {
	s, err := Open(t.TempDir() + "/db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	pairs := []KeyValue{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	}

	if err := s.SetBatch(pairs); err != nil {
		t.Fatalf("set batch: %v", err)
	}

	for _, kv := range pairs {
		got, err := s.Get(kv.Key)
		if err != nil {
			t.Fatalf("get %q: %v", kv.Key, err)
		}

		if !bytes.Equal(got, kv.Value) {
			t.Errorf("key %q: expected %q, got %q", kv.Key, kv.Value, got)
		}
	}
}

func TestIteratePrefix(t *testing.T) {
	s, err := Open(t.TempDir() + "/db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("j:%d", i)
		if err := s.Set([]byte(key), []byte("x")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	if err := s.Set([]byte("c:0"), []byte("y")); err != nil {
		t.Fatalf("set: %v", err)
	}

	count := 0
	err = s.IteratePrefix([]byte("j:"), func(key, value []byte) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}

	if count != 3 {
		t.Errorf("expected 3 keys with prefix, got %d", count)
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir() + "/db"

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	if err := s.Set([]byte("key"), []byte("value")); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s.Close()

	got, err := s.Get([]byte("key"))
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}

	if !bytes.Equal(got, []byte("value")) {
		t.Errorf("expected value after reopen, got %q", got)
	}
}
