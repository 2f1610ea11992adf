package scope

import (
	"fmt"
	"os"
)

// MockResolver resolves lines from a fixed table
type MockResolver struct {
	Names map[int]string
}

func (m *MockResolver) QualifiedNameAt(line int) (string, error) {
	if name, ok := m.Names[line]; ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: line %d", ErrUnresolvableScope, line)
}

// MockProvider serves MockResolvers by path and counts lookups
type MockProvider struct {
	Files   map[string]map[int]string
	Lookups map[string]int
}

func (m *MockProvider) ResolverFor(path string) (Resolver, error) {
	if m.Lookups == nil {
		m.Lookups = make(map[string]int)
	}
	m.Lookups[path]++

	names, ok := m.Files[path]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", path, os.ErrNotExist)
	}
	return &MockResolver{Names: names}, nil
}
