package source_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cordoba-data/program-dashboard/internal/config"
	"github.com/cordoba-data/program-dashboard/internal/source"
)

type stubSource struct{ name string }

func (s stubSource) Name() string                                      { return s.name }
func (s stubSource) ListTree(context.Context) ([]string, error)        { return nil, nil }
func (s stubSource) FetchFile(context.Context, string) ([]byte, error) { return nil, nil }

func TestNew_UsesRegisteredConstructor(t *testing.T) {
	source.Register(config.SourceGitLab, func(_ context.Context, cfg config.Config, _ *zap.Logger) (source.Source, error) {
		return stubSource{name: "stub:" + cfg.DataRepo.ID}, nil
	})
	assert.Contains(t, source.Kinds(), "gitlab")

	cfg := config.Defaults()
	cfg.DataRepo.ID = "42"
	cfg.DataRepo.Token = "tok"
	src, err := source.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "stub:42", src.Name())
}

func TestNew_UnregisteredKind(t *testing.T) {
	cfg := config.Defaults()
	cfg.DataRepo.Source = config.SourceS3
	cfg.Mirror.Bucket = "espejo"
	_, err := source.New(context.Background(), cfg, zap.NewNop())
	require.True(t, errors.Is(err, config.ErrUnknownSource))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Defaults()
	_, err := source.New(context.Background(), cfg, zap.NewNop())
	require.True(t, errors.Is(err, config.ErrMissingToken))
}
