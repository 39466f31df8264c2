package redis

import (
	"github.com/ajiwo/admission/backends"
)

func init() {
	backends.Register("redis", func(config any) (backends.Backend, error) {
		redisConfig, ok := config.(Config)
		if !ok {
			return nil, backends.ErrInvalidConfig
		}
		if redisConfig.Addr == "" && len(redisConfig.Addrs) == 0 {
			return nil, backends.ErrInvalidConfig
		}
		return New(redisConfig)
	})
}
