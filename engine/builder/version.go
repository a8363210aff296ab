package builder

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
)

// VersionManager is the registry of every version of every workflow
// definition the runtime knows about (spec §4.11). Instances always
// resolve their graph through a VersionManager, by (name, versionName), so
// in-flight instances keep executing against the definition they were
// started with even after a newer version is registered.
type VersionManager struct {
	mu   sync.RWMutex
	defs map[string]map[string]*net.WorkflowDef
}

// NewVersionManager returns an empty registry.
func NewVersionManager() *VersionManager {
	return &VersionManager{defs: map[string]map[string]*net.WorkflowDef{}}
}

// Register adds def to the registry. Registering the same (Name,
// VersionName) pair twice replaces the previous definition — callers that
// want strict append-only semantics should check Resolve first.
func (vm *VersionManager) Register(def *net.WorkflowDef) error {
	if def == nil {
		return core.NewError(fmt.Errorf("cannot register a nil workflow definition"), core.ErrCodeUnknownElement, nil)
	}
	if err := def.Validate(); err != nil {
		return err
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	versions, ok := vm.defs[def.Name]
	if !ok {
		versions = map[string]*net.WorkflowDef{}
		vm.defs[def.Name] = versions
	}
	versions[def.VersionName] = def
	return nil
}

// Resolve looks up the definition registered for (name, versionName).
func (vm *VersionManager) Resolve(name, versionName string) (*net.WorkflowDef, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	versions, ok := vm.defs[name]
	if !ok {
		return nil, core.NewError(fmt.Errorf("no workflow definition named %q is registered", name),
			core.ErrCodeEntityNotFound, map[string]any{"workflow": name})
	}
	def, ok := versions[versionName]
	if !ok {
		return nil, core.NewError(fmt.Errorf("workflow %q has no version %q registered", name, versionName),
			core.ErrCodeEntityNotFound, map[string]any{"workflow": name, "version": versionName})
	}
	return def, nil
}

// Versions lists every version name registered for a workflow, sorted for
// deterministic iteration.
func (vm *VersionManager) Versions(name string) []string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	versions := vm.defs[name]
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
