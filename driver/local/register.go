package local

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/gobeaver/storekit"
)

// Options are the factory options for the local backend.
type Options struct {
	// Root is the directory every key resolves under. Created if
	// missing.
	Root string `mapstructure:"root"`
}

func init() {
	storekit.RegisterBackend(backendName, func(options map[string]any) (storekit.Backend, error) {
		var o Options
		if err := mapstructure.Decode(options, &o); err != nil {
			return nil, fmt.Errorf("cannot decode local options: %w", err)
		}
		if o.Root == "" {
			return nil, fmt.Errorf("local backend requires a 'root' option")
		}
		return New(o.Root)
	})
}
