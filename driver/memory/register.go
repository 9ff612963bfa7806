package memory

import (
	"github.com/gobeaver/storekit"
)

func init() {
	storekit.RegisterBackend(backendName, func(options map[string]any) (storekit.Backend, error) {
		return New(), nil
	})
}
