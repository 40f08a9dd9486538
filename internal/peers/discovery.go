package peers

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider returns the current peer list. The control loop only consumes the
// returned List and never cares how it was produced.
type Provider interface {
	Peers(ctx context.Context) (List, error)
}

// StaticProvider always returns the same list.
type StaticProvider struct {
	list List
}

// NewStaticProvider wraps a fixed list.
func NewStaticProvider(list List) *StaticProvider {
	return &StaticProvider{list: list}
}

// Peers returns the fixed list.
func (p *StaticProvider) Peers(context.Context) (List, error) {
	return p.list, nil
}

// ReadFile loads a comma or newline separated peers file. A missing file is
// not an error and yields an empty list.
func ReadFile(path string) (List, error) {
	if path == "" {
		return List{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return List{}, nil
		}
		return List{}, fmt.Errorf("read peers file %q: %w", path, err)
	}
	s := strings.NewReplacer("\n", ",", "\r", ",").Replace(string(b))
	return ParseList(s), nil
}
