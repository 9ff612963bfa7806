package s3hybrid

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/gobeaver/storekit"
)

func init() {
	storekit.RegisterBackend(backendName, func(options map[string]any) (storekit.Backend, error) {
		var o Options
		if err := mapstructure.Decode(options, &o); err != nil {
			return nil, fmt.Errorf("cannot decode s3-hybrid options: %w", err)
		}
		return New(o)
	})
}
