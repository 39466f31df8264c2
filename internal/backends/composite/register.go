package composite

import (
	"fmt"

	"github.com/ajiwo/admission/backends"
)

func init() {
	backends.Register("composite", func(config any) (backends.Backend, error) {
		compositeConfig, ok := config.(Config)
		if !ok {
			return nil, backends.ErrInvalidConfig
		}

		b, err := New(compositeConfig)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", backends.ErrInvalidConfig, err)
		}
		return b, nil
	})
}
