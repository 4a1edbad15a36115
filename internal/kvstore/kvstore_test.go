package kvstore

import (
	"testing"
)

type sample struct {
	A int
	B string
}

func TestSetGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	in := sample{A: 1, B: "hello"}
	if err := s.Set("video dQw4w9WgXcQ", in); err != nil {
		t.Fatal(err)
	}

	var out sample
	ok, err := s.Get("video dQw4w9WgXcQ", &out)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || out != in {
		t.Fatalf("got %+v, ok=%v; want %+v", out, ok, in)
	}
}

func TestGetAbsentReturnsFalse(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var out sample
	ok, err := s.Get("missing", &out)
	if err != nil || ok {
		t.Fatalf("expected absent, got ok=%v err=%v", ok, err)
	}
}

func TestCorruptValueSelfHeals(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Set("k", sample{A: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.writeAtomic(s.path("k"), []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	var out sample
	ok, err := s.Get("k", &out)
	if err != nil || ok {
		t.Fatalf("expected self-healed absence, got ok=%v err=%v", ok, err)
	}

	// Second read must also report absent: the file was deleted.
	ok, err = s.Get("k", &out)
	if err != nil || ok {
		t.Fatalf("expected absence to persist, got ok=%v err=%v", ok, err)
	}
}

func TestSetNilDeletes(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Set("k", sample{A: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("k", nil); err != nil {
		t.Fatal(err)
	}

	var out sample
	ok, _ := s.Get("k", &out)
	if ok {
		t.Fatalf("expected key deleted")
	}
}

func TestKeysWithPrefix(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, k := range []string{"video a", "video b", "playlist c"} {
		if err := s.Set(k, sample{A: 1}); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := s.KeysWithPrefix("video", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}

func TestDeleteSimulateDoesNotTouchDisk(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("video a", sample{A: 1}); err != nil {
		t.Fatal(err)
	}

	keys, err := s.Delete(DeleteOptions{Prefix: "video", Simulate: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 candidate, got %v", keys)
	}

	var out sample
	ok, _ := s.Get("video a", &out)
	if !ok {
		t.Fatalf("simulate must not delete")
	}
}
