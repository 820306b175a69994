// Package source abstracts where the data repository's files come from.
package source

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/cordoba-data/program-dashboard/internal/config"
)

// Source lists and fetches the files of one repository snapshot.
type Source interface {
	// Name returns the source name for logging purposes.
	Name() string

	// ListTree returns every file path in the repository, recursively.
	ListTree(ctx context.Context) ([]string, error)

	// FetchFile returns the raw bytes of one file.
	FetchFile(ctx context.Context, path string) ([]byte, error)
}

// Project is an entry of the accessible-projects listing.
type Project struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
}

// Diagnoser is implemented by sources that can explain a total listing
// failure by enumerating what the credentials can see.
type Diagnoser interface {
	AccessibleProjects(ctx context.Context) ([]Project, error)
}

// Constructor builds a Source from configuration.
type Constructor func(ctx context.Context, cfg config.Config, log *zap.Logger) (Source, error)

var registry = make(map[config.SourceKind]Constructor)

// Register makes a source kind available. Called from init() in each source
// package.
func Register(kind config.SourceKind, c Constructor) {
	registry[kind] = c
}

// Kinds returns the registered kinds, sorted.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// New validates the configuration and builds the configured source.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c, ok := registry[cfg.DataRepo.Source]
	if !ok {
		return nil, fmt.Errorf("%w: %s (registered: %v)", config.ErrUnknownSource, cfg.DataRepo.Source, Kinds())
	}
	return c(ctx, cfg, log)
}
