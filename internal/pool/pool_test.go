package pool

import (
	"context"
	"sync"
	"testing"

	"github.com/avetisov/parley/internal/catalog"
	"github.com/avetisov/parley/internal/executor"
	"github.com/avetisov/parley/internal/tools"
)

func testPool(t *testing.T) *Pool {
	t.Helper()
	c, err := catalog.LoadFile("")
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}
	reg, err := catalog.NewRegistry(c, catalog.ModelSpec{Vendor: "anthropic", VariantID: "claude-sonnet-4-5"}, []catalog.ModelSpec{
		{Vendor: "anthropic", VariantID: "claude-haiku-3-5"},
		{Vendor: "openai", VariantID: "gpt-5"},
	})
	if err != nil {
		t.Fatalf("creating registry: %v", err)
	}
	noop := func(ctx context.Context, args string) (string, error) { return "", nil }
	toolReg := tools.NewRegistry(
		executor.Tool{Name: "calculator", Run: noop},
		executor.Tool{Name: "web_search", Run: noop},
	)
	return New(reg, toolReg, executor.NewClient("test-key"))
}

func TestGetCachesHandle(t *testing.T) {
	p := testPool(t)
	spec := catalog.ModelSpec{Vendor: "openai", VariantID: "gpt-5"}

	h1, err := p.Get(spec, []string{"calculator"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	h2, err := p.Get(spec, []string{"calculator"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h1 != h2 {
		t.Error("same spec and tool set returned distinct handles")
	}
	if p.Size() != 1 {
		t.Errorf("Size() = %d, want 1", p.Size())
	}
}

func TestGetToolSetCanonicalization(t *testing.T) {
	p := testPool(t)
	spec := catalog.ModelSpec{Vendor: "openai", VariantID: "gpt-5"}

	h1, err := p.Get(spec, []string{"web_search", "calculator"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	h2, err := p.Get(spec, []string{"calculator", "web_search", "calculator"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h1 != h2 {
		t.Error("order and duplicates should not change the cache key")
	}
}

func TestGetNilVersusEmptyTools(t *testing.T) {
	p := testPool(t)
	spec := catalog.ModelSpec{Vendor: "openai", VariantID: "gpt-5"}

	all, err := p.Get(spec, nil)
	if err != nil {
		t.Fatalf("Get(nil): %v", err)
	}
	none, err := p.Get(spec, []string{})
	if err != nil {
		t.Fatalf("Get(empty): %v", err)
	}
	if all == none {
		t.Error("nil (all tools) and empty (no tools) should be distinct handles")
	}
	if got := all.ToolNames(); len(got) != 2 {
		t.Errorf("nil tool set granted %v, want both registered tools", got)
	}
	if got := none.ToolNames(); len(got) != 0 {
		t.Errorf("empty tool set granted %v, want none", got)
	}

	// nil and the explicit full set collapse to the same handle.
	full, err := p.Get(spec, []string{"calculator", "web_search"})
	if err != nil {
		t.Fatalf("Get(full): %v", err)
	}
	if full != all {
		t.Error("explicit full tool set should hit the nil-set cache entry")
	}
}

func TestGetDropsUnknownTools(t *testing.T) {
	p := testPool(t)
	spec := catalog.ModelSpec{Vendor: "openai", VariantID: "gpt-5"}

	h1, err := p.Get(spec, []string{"calculator", "time_machine"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	h2, err := p.Get(spec, []string{"calculator"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h1 != h2 {
		t.Error("unknown tool names should be dropped before keying")
	}
	if got := h1.ToolNames(); len(got) != 1 || got[0] != "calculator" {
		t.Errorf("ToolNames() = %v, want [calculator]", got)
	}
}

func TestGetDistinctSpecs(t *testing.T) {
	p := testPool(t)

	h1, err := p.Get(catalog.ModelSpec{Vendor: "openai", VariantID: "gpt-5"}, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	h2, err := p.Get(catalog.ModelSpec{Vendor: "anthropic", VariantID: "claude-sonnet-4-5"}, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h1 == h2 {
		t.Error("different specs returned the same handle")
	}
	if p.Size() != 2 {
		t.Errorf("Size() = %d, want 2", p.Size())
	}
}

func TestGetRejectsUnavailableSpec(t *testing.T) {
	p := testPool(t)

	if _, err := p.Get(catalog.ModelSpec{Vendor: "openai", VariantID: "gpt-5-mini"}, nil); err == nil {
		t.Error("expected error for spec outside the allow-list, got none")
	}
}

func TestGetConcurrent(t *testing.T) {
	p := testPool(t)
	spec := catalog.ModelSpec{Vendor: "openai", VariantID: "gpt-5"}

	handles := make([]*executor.Handle, 16)
	var wg sync.WaitGroup
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := p.Get(spec, []string{"calculator"})
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(handles); i++ {
		if handles[i] != handles[0] {
			t.Fatal("concurrent Get returned distinct handles for the same key")
		}
	}
	if p.Size() != 1 {
		t.Errorf("Size() = %d, want 1", p.Size())
	}
}
