package cache

import (
	"testing"
	"time"
)

func TestFingerprint_ProviderChangesKey(t *testing.T) {
	a := Fingerprint("complete", "sauvage", "fragrance", "en", "openai", 5)
	b := Fingerprint("complete", "sauvage", "fragrance", "en", "gemini", 5)
	if a == b {
		t.Error("fingerprints must differ per provider")
	}
}

func TestFingerprint_CaseInsensitiveQuery(t *testing.T) {
	a := Fingerprint("complete", "Sauvage", "fragrance", "en", "openai", 5)
	b := Fingerprint("complete", "sauvage", "fragrance", "en", "openai", 5)
	if a != b {
		t.Error("query case must not change the fingerprint")
	}
}

func TestFingerprint_FieldBoundaries(t *testing.T) {
	// "ab"+"c" vs "a"+"bc" must not collide across field boundaries.
	a := Fingerprint("op", "ab", "c", "", "", 0)
	b := Fingerprint("op", "a", "bc", "", "", 0)
	if a == b {
		t.Error("field boundary collision")
	}
}

func TestCache_GetSetExpiry(t *testing.T) {
	now := time.Now()
	c := New(time.Minute, 10)
	c.nowFunc = func() time.Time { return now }

	c.Set("k", "v")
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit, got %v %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("expected expiry")
	}
}

func TestCache_MissOnAbsent(t *testing.T) {
	c := New(time.Minute, 10)
	if _, ok := c.Get("nope"); ok {
		t.Error("unexpected hit")
	}
}

func TestCache_BoundedWrites(t *testing.T) {
	now := time.Now()
	c := New(time.Minute, 2)
	c.nowFunc = func() time.Time { return now }

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // full, nothing expired: skipped
	if _, ok := c.Get("c"); ok {
		t.Error("write should be skipped at capacity")
	}

	now = now.Add(2 * time.Minute)
	c.Set("c", 3) // expired entries swept, write lands
	if _, ok := c.Get("c"); !ok {
		t.Error("expected write after sweep")
	}
}

func TestCache_Sweep(t *testing.T) {
	now := time.Now()
	c := New(time.Minute, 10)
	c.nowFunc = func() time.Time { return now }

	c.Set("a", 1)
	c.Set("b", 2)
	now = now.Add(2 * time.Minute)

	if dropped := c.Sweep(); dropped != 2 {
		t.Errorf("Sweep dropped %d, want 2", dropped)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestCache_LastWriterWins(t *testing.T) {
	c := New(time.Minute, 10)
	c.Set("k", "first")
	c.Set("k", "second")
	if v, _ := c.Get("k"); v != "second" {
		t.Errorf("got %v, want second", v)
	}
}
