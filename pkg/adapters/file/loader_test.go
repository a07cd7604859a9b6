package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/mqlua/internal/testutils"
	"github.com/aretw0/mqlua/pkg/adapters/file"
	"github.com/aretw0/mqlua/pkg/ports"
	"github.com/stretchr/testify/require"
)

func TestFileLoader_Contract(t *testing.T) {
	programs := map[string]string{
		"worker.lua":  "local a, b = ...\nreturn a, b\n",
		"control.lua": "local node = require 'node'\n",
	}
	dir := testutils.WriteFiles(t, programs)

	ports.RunProgramSourceContract(t, file.NewLoader(dir), programs)
}

func TestFileLoader_AbsolutePathIgnoresBaseDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abs.lua")
	require.NoError(t, os.WriteFile(path, []byte("return 1"), 0o644))

	data, err := file.NewLoader("/nonexistent").Fetch(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "return 1", string(data))
}
