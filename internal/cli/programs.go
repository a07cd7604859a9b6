package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aretw0/mqlua/internal/config"
	"github.com/aretw0/mqlua/pkg/adapters/redis"
	"github.com/aretw0/mqlua/pkg/ports"
)

// ListPrograms prints the programs the configured loader can find.
func ListPrograms(ctx context.Context, cfg config.Config, w io.Writer) error {
	source, closeSource, err := createSource(cfg.Loader)
	if err != nil {
		return err
	}
	defer closeSource()

	lister, ok := source.(ports.ProgramLister)
	if !ok {
		return fmt.Errorf("loader %q can not list programs", cfg.Loader.Kind)
	}
	paths, err := lister.List(ctx)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(w, p)
	}
	return nil
}

// PushPrograms uploads local files to Redis so the redis loader can run them.
// Each file is stored under its base name unless name is given for a single file.
func PushPrograms(ctx context.Context, cfg config.Config, files []string, name string) error {
	if name != "" && len(files) != 1 {
		return fmt.Errorf("--name needs exactly one file")
	}
	r := cfg.Loader.Redis
	l := redis.New(r.Addr, r.Password, r.DB, redis.WithPrefix(r.Prefix), redis.WithTimeout(r.Timeout))
	defer l.Close()

	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		key := name
		if key == "" {
			key = filepath.Base(f)
		}
		if err := l.Put(ctx, key, src); err != nil {
			return err
		}
		printSystemMessage("stored %s as %s%s", f, r.Prefix, key)
	}
	return nil
}

// printSystemMessage prints a standardized system message to stdout.
func printSystemMessage(format string, args ...any) {
	fmt.Printf(">>> %s\n", fmt.Sprintf(format, args...))
}
