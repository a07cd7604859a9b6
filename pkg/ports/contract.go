package ports

import (
	"context"
	"testing"

	"github.com/aretw0/mqlua/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunProgramSourceContract runs a suite of tests to verify that a ProgramSource
// implementation adheres to the interface contract. programs must already be
// stored in source.
func RunProgramSourceContract(t *testing.T, source ProgramSource, programs map[string]string) {
	t.Helper()
	ctx := context.Background()

	t.Run("Fetch", func(t *testing.T) {
		for path, want := range programs {
			got, err := source.Fetch(ctx, path)
			require.NoError(t, err, "Fetch(%s) should not return error", path)
			assert.Equal(t, want, string(got))
		}
	})

	t.Run("Fetch Missing", func(t *testing.T) {
		_, err := source.Fetch(ctx, "definitely-missing.lua")
		assert.ErrorIs(t, err, domain.ErrProgramNotFound)
	})

	if lister, ok := source.(ProgramLister); ok {
		t.Run("List", func(t *testing.T) {
			paths, err := lister.List(ctx)
			require.NoError(t, err)
			for path := range programs {
				assert.Contains(t, paths, path)
			}
		})
	}
}
