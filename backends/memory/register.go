package memory

import (
	"github.com/ajiwo/admission/backends"
)

func init() {
	backends.Register("memory", func(config any) (backends.Backend, error) {
		switch c := config.(type) {
		case nil:
			return New(), nil
		case Config:
			return NewWithConfig(c), nil
		default:
			return nil, backends.ErrInvalidConfig
		}
	})
}
