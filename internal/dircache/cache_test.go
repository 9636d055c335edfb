package dircache

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Ning0612/adbexplorer/internal/domain"
)

func entries(names ...string) []domain.Entry {
	out := make([]domain.Entry, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Entry{Name: n, Kind: domain.KindFile, FullPath: "/x/" + n})
	}
	return out
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/", "/"},
		{"/sdcard/", "/sdcard"},
		{"\\sdcard\\DCIM\\", "/sdcard/DCIM"},
		{"sdcard", "/sdcard"},
		{"/sdcard//DCIM", "/sdcard/DCIM"},
		{"/sdcard/My Files", "/sdcard/My Files"},
	}

	for _, tt := range tests {
		got := Normalize(tt.input)
		if got != tt.expected {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestParent(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/", "/"},
		{"", "/"},
		{"/sdcard", "/"},
		{"/sdcard/DCIM", "/sdcard"},
		{"/sdcard/DCIM/", "/sdcard"},
		{"\\sdcard\\a.jpg", "/sdcard"},
	}

	for _, tt := range tests {
		got := Parent(tt.input)
		if got != tt.expected {
			t.Errorf("Parent(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestIsWithin(t *testing.T) {
	tests := []struct {
		p, root string
		want    bool
	}{
		{"/sdcard/DCIM", "/sdcard", true},
		{"/sdcard", "/sdcard", true},
		{"/sdcard2/x", "/sdcard", false},
		{"/data", "/sdcard", false},
		{"/anything", "/", true},
	}
	for _, tt := range tests {
		if got := IsWithin(tt.p, tt.root); got != tt.want {
			t.Errorf("IsWithin(%q, %q) = %v, want %v", tt.p, tt.root, got, tt.want)
		}
	}
}

func TestNew_InvalidCapacity(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("expected error for zero capacity")
	}
}

func TestCanonicalize_RemembersAlias(t *testing.T) {
	c, _ := New(10)
	calls := 0
	resolve := func(ctx context.Context, p string) (string, error) {
		calls++
		if p == "/sdcard" {
			return "/storage/emulated/0\n", nil
		}
		return p, nil
	}

	got := c.Canonicalize(context.Background(), "/sdcard/", resolve)
	if got != "/storage/emulated/0" {
		t.Fatalf("Canonicalize = %q, want /storage/emulated/0", got)
	}
	c.Canonicalize(context.Background(), "/sdcard", resolve)
	if calls != 1 {
		t.Errorf("expected alias hit without resolving again, resolver called %d times", calls)
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	c, _ := New(10)
	resolve := func(ctx context.Context, p string) (string, error) {
		if p == "/sdcard" {
			return "/storage/emulated/0", nil
		}
		return p, nil
	}
	paths := []string{"/sdcard", "/sdcard/DCIM", "/", "/data/local/tmp/", "\\x\\y"}
	for _, p := range paths {
		once := c.Canonicalize(context.Background(), p, resolve)
		twice := c.Canonicalize(context.Background(), once, resolve)
		if once != twice {
			t.Errorf("canonicalize(canonicalize(%q)) = %q, want %q", p, twice, once)
		}
	}
}

func TestCanonicalize_ResolveFailure(t *testing.T) {
	c, _ := New(10)
	resolve := func(ctx context.Context, p string) (string, error) {
		return "", errors.New("readlink: not found")
	}
	got := c.Canonicalize(context.Background(), "/sdcard/Music/", resolve)
	if got != "/sdcard/Music" {
		t.Errorf("Canonicalize = %q, want normalized input", got)
	}
}

func TestGetPut_AliasSharesLine(t *testing.T) {
	c, _ := New(10)
	resolve := func(ctx context.Context, p string) (string, error) {
		if p == "/sdcard" {
			return "/storage/emulated/0", nil
		}
		return p, nil
	}
	canonical := c.Canonicalize(context.Background(), "/sdcard", resolve)
	c.Put(canonical, entries("a", "b"))

	viaCanonical := c.Canonicalize(context.Background(), "/storage/emulated/0", resolve)
	got, ok := c.Get(viaCanonical)
	if !ok {
		t.Fatal("expected hit via canonical path")
	}
	if len(got) != 2 {
		t.Errorf("expected 2 entries, got %d", len(got))
	}
}

func TestLRU_EvictsLeastRecentlyTouched(t *testing.T) {
	const capacity = 3
	c, _ := New(capacity)
	for i := 0; i < capacity; i++ {
		c.Put(fmt.Sprintf("/d%d", i), entries("f"))
	}

	// Touch /d0 so /d1 becomes the least recently used
	if _, ok := c.Get("/d0"); !ok {
		t.Fatal("expected /d0 cached")
	}

	c.Put("/d3", entries("g"))

	if c.Len() != capacity {
		t.Fatalf("expected %d lines, got %d", capacity, c.Len())
	}
	if c.Contains("/d1") {
		t.Error("expected /d1 to be evicted")
	}
	for _, key := range []string{"/d0", "/d2", "/d3"} {
		if !c.Contains(key) {
			t.Errorf("expected %s to survive eviction", key)
		}
	}
}

func TestLRU_EvictionDropsAliases(t *testing.T) {
	c, _ := New(1)
	resolve := func(ctx context.Context, p string) (string, error) {
		if p == "/sdcard" {
			return "/storage/emulated/0", nil
		}
		return p, nil
	}
	canonical := c.Canonicalize(context.Background(), "/sdcard", resolve)
	c.Put(canonical, entries("a"))
	c.Put("/data", entries("b"))

	if _, ok := c.Alias("/sdcard"); ok {
		t.Error("expected alias of evicted line to be dropped")
	}
}

func TestInvalidate_RemovesCanonicalAndAliases(t *testing.T) {
	c, _ := New(10)
	resolve := func(ctx context.Context, p string) (string, error) {
		if p == "/sdcard" {
			return "/storage/emulated/0", nil
		}
		return p, nil
	}
	canonical := c.Canonicalize(context.Background(), "/sdcard", resolve)
	c.Put(canonical, entries("a"))

	c.Invalidate("/sdcard/")

	if c.Contains(canonical) {
		t.Error("expected canonical line removed")
	}
	if _, ok := c.Alias("/sdcard"); ok {
		t.Error("expected alias removed")
	}
}

func TestInvalidateParent(t *testing.T) {
	c, _ := New(10)
	c.Put("/sdcard/DCIM", entries("a.jpg"))
	c.Put("/sdcard", entries("DCIM"))

	c.InvalidateParent("/sdcard/DCIM/a.jpg")
	if c.Contains("/sdcard/DCIM") {
		t.Error("expected parent line removed")
	}
	if !c.Contains("/sdcard") {
		t.Error("expected grandparent line untouched")
	}

	// Root's parent is root; must not panic
	c.InvalidateParent("/")
}

func TestInvalidateTree(t *testing.T) {
	c, _ := New(10)
	c.Put("/sdcard/DCIM", entries("Camera"))
	c.Put("/sdcard/DCIM/Camera", entries("a.jpg"))
	c.Put("/sdcard/DCIMX", entries("b"))

	c.InvalidateTree("/sdcard/DCIM")

	if c.Contains("/sdcard/DCIM") || c.Contains("/sdcard/DCIM/Camera") {
		t.Error("expected subtree lines removed")
	}
	if !c.Contains("/sdcard/DCIMX") {
		t.Error("expected sibling with shared prefix untouched")
	}
}

func TestForget_ResolvesUnknownAlias(t *testing.T) {
	c, _ := New(10)
	c.Put("/storage/emulated/0", entries("DCIM"))
	resolve := func(ctx context.Context, p string) (string, error) {
		if p == "/sdcard" {
			return "/storage/emulated/0", nil
		}
		return p, nil
	}

	c.Forget(context.Background(), "/sdcard/DCIM", true, resolve)

	if c.Contains("/storage/emulated/0") {
		t.Error("expected line cached under canonical path to be dropped")
	}
}

func TestClear(t *testing.T) {
	c, _ := New(10)
	c.Put("/a", entries("x"))
	c.Canonicalize(context.Background(), "/b", nil)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d lines", c.Len())
	}
	if _, ok := c.Alias("/b"); ok {
		t.Error("expected aliases cleared")
	}
}
