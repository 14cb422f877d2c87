// Package network is the collaborator used to fetch deployed programs and
// broadcast transactions.
//
// Every error returned by a Client wraps ErrNetwork. A missing program
// additionally wraps ErrProgramNotFound so callers can tell absence from an
// unreachable host.
package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/provectl/internal/program"
)

var (
	ErrNetwork         = errors.New("network: request failed")
	ErrProgramNotFound = errors.New("network: program not found")
)

type Client interface {
	// Program returns the source of a deployed program.
	Program(ctx context.Context, host, id string) (string, error)
	// Broadcast submits a transaction payload and returns the accepted id.
	Broadcast(ctx context.Context, host string, payload []byte) (string, error)
}

// ProgramImports resolves the transitive imports of source through c.
// The result maps program id to source and never contains source itself,
// even when an import cycles back to it.
func ProgramImports(ctx context.Context, c Client, host, source string) (map[string]string, error) {
	out := make(map[string]string)
	seen := make(map[string]bool)
	if root, ok := program.ParseProgramID(source); ok {
		seen[root] = true
	}
	queue := program.ParseImports(source)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		src, err := c.Program(ctx, host, id)
		if err != nil {
			if errors.Is(err, ErrProgramNotFound) {
				return nil, fmt.Errorf("%w: import %s", err, id)
			}
			return nil, err
		}
		out[id] = src
		queue = append(queue, program.ParseImports(src)...)
	}
	return out, nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %w: %s", ErrNetwork, ErrProgramNotFound, id)
}
