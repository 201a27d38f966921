package safe

import (
	"workchat/logger"
)

// Go starts a goroutine that recovers from panic so a single misbehaving
// loop cannot take the process down.
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] %s panic recovered: %v", name, r)
			}
		}()
		f()
	}()
}
