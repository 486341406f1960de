package cache

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/larklang/lark/bytecode"
	"github.com/larklang/lark/value"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), ".lark", "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func sampleFn() *bytecode.Fn {
	fn := bytecode.NewFn("main", 2)
	fn.BindName("(script)")
	fn.Constants = append(fn.Constants, value.Str("hello"))
	fn.AppendByte(byte(bytecode.OpConstant), 1)
	fn.AppendShort(0, 1)
	fn.AppendByte(byte(bytecode.OpReturn), 1)
	fn.AppendByte(byte(bytecode.OpEnd), 1)
	return fn
}

func TestPutGet(t *testing.T) {
	c := openTestCache(t)
	source := "System.print(\"hello\")\n"

	if _, err := c.Get(source); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get before Put = %v, want ErrMiss", err)
	}

	if err := c.Put("main", source, sampleFn()); err != nil {
		t.Fatal(err)
	}

	fn, err := c.Get(source)
	if err != nil {
		t.Fatal(err)
	}
	if fn.Name != "(script)" || len(fn.Constants) != 1 {
		t.Errorf("loaded fn = %+v", fn)
	}
	if fn.Constants[0].AsString() != "hello" {
		t.Errorf("constant = %v", fn.Constants[0])
	}
}

func TestChangedSourceMisses(t *testing.T) {
	c := openTestCache(t)

	if err := c.Put("main", "var a = 1\n", sampleFn()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get("var a = 2\n"); !errors.Is(err, ErrMiss) {
		t.Errorf("Get with changed source = %v, want ErrMiss", err)
	}
}

func TestPutReplaces(t *testing.T) {
	c := openTestCache(t)
	source := "var a = 1\n"

	if err := c.Put("main", source, sampleFn()); err != nil {
		t.Fatal(err)
	}

	fn := sampleFn()
	fn.BindName("replaced")
	if err := c.Put("main", source, fn); err != nil {
		t.Fatal(err)
	}

	got, err := c.Get(source)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "replaced" {
		t.Errorf("Name = %q, want replaced", got.Name)
	}

	n, err := c.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	c := openTestCache(t)
	source := "var a = 1\n"

	_, err := c.db.Exec(
		"INSERT INTO artifacts (hash, id, module, data, created_at) VALUES (?, ?, ?, ?, ?)",
		Key(source), "x", "main", []byte("garbage"), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Get(source); !errors.Is(err, ErrMiss) {
		t.Errorf("Get corrupt entry = %v, want ErrMiss", err)
	}
}

func TestPrune(t *testing.T) {
	c := openTestCache(t)

	if err := c.Put("a", "var a = 1\n", sampleFn()); err != nil {
		t.Fatal(err)
	}
	_, err := c.db.Exec(
		"INSERT INTO artifacts (hash, id, module, data, created_at) VALUES (?, ?, ?, ?, ?)",
		Key("old"), "x", "old", []byte{}, time.Now().UTC().Add(-48*time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	removed, err := c.Prune(24 * time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	n, err := c.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Len after prune = %d, want 1", n)
	}
}

func TestKeyIsStable(t *testing.T) {
	if Key("abc") != Key("abc") {
		t.Error("same source hashed differently")
	}
	if Key("abc") == Key("abd") {
		t.Error("different sources hashed identically")
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	source := "var a = 1\n"

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put("main", source, sampleFn()); err != nil {
		t.Fatal(err)
	}
	c.Close()

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.Get(source); err != nil {
		t.Errorf("Get after reopen = %v", err)
	}
}
