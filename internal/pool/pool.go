// Package pool caches model handles keyed by model spec and tool set so that
// repeated requests for the same configuration reuse one handle for the
// lifetime of the process.
package pool

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/avetisov/parley/internal/catalog"
	"github.com/avetisov/parley/internal/executor"
	"github.com/avetisov/parley/internal/tools"
)

// poolKey identifies one cached handle. The tool set is canonicalized into a
// sorted, deduplicated, comma-joined string so equal sets compare equal
// regardless of request order.
type poolKey struct {
	spec    catalog.ModelSpec
	toolSet string
}

// Pool hands out cached executor handles.
type Pool struct {
	registry *catalog.Registry
	tools    *tools.Registry
	client   *executor.Client

	mu    sync.Mutex
	cache map[poolKey]*executor.Handle
}

// New creates an empty pool over the given model registry, tool registry and
// upstream client.
func New(registry *catalog.Registry, toolReg *tools.Registry, client *executor.Client) *Pool {
	return &Pool{
		registry: registry,
		tools:    toolReg,
		client:   client,
		cache:    make(map[poolKey]*executor.Handle),
	}
}

// Get returns the handle for spec equipped with the named tools, creating it
// on first use. A nil toolNames grants every registered tool; an empty slice
// grants none. Unknown names are dropped. Repeated calls with the same spec
// and the same effective tool set return the same handle.
func (p *Pool) Get(spec catalog.ModelSpec, toolNames []string) (*executor.Handle, error) {
	resolved, err := p.registry.ResolveSpec(spec)
	if err != nil {
		return nil, err
	}

	if toolNames == nil {
		toolNames = p.tools.Names()
	}
	granted := p.tools.FilterNames(toolNames)
	key := poolKey{spec: resolved, toolSet: canonicalSet(granted)}

	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.cache[key]; ok {
		return h, nil
	}
	apiModel, err := p.registry.Catalog().APIModel(resolved)
	if err != nil {
		return nil, fmt.Errorf("resolving API model for %s: %w", resolved, err)
	}

	h := executor.NewHandle(p.client, apiModel, p.tools.Filter(granted))
	p.cache[key] = h
	return h, nil
}

// Size reports the number of cached handles.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cache)
}

func canonicalSet(names []string) string {
	if len(names) == 0 {
		return ""
	}
	uniq := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		uniq = append(uniq, n)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, ",")
}
