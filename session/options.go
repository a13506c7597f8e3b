// options.go defines the options accepted by New.

package session

import (
	"context"
)

// SettingsChangedHook is invoked from the engine callback thread when the
// engine reports changed port settings. It must be fast and must not block
// on the session's lifecycle operations.
type SettingsChangedHook func(ctx context.Context, s *Session, portIndex uint32)

type OptionCommons struct{}

func (OptionCommons) sessionOption() {}

type Option interface {
	sessionOption()
}

type Options []Option

func OptionLatest[T Option](s Options) (ret T, ok bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if v, ok := s[i].(T); ok {
			return v, true
		}
	}
	return
}

// OptionSettingsChangedHook sets the hook, see SettingsChangedHook.
type OptionSettingsChangedHook struct {
	OptionCommons
	Hook SettingsChangedHook
}

func WithSettingsChangedHook(hook SettingsChangedHook) Option {
	return OptionSettingsChangedHook{Hook: hook}
}

// OptionDeferredSettingsChanged makes the callback only raise a flag, to be
// consumed by the streaming thread via Session.ConsumeSettingsChanged. This
// is for engines that forbid parameter queries from within callbacks.
type OptionDeferredSettingsChanged struct {
	OptionCommons
	Deferred bool
}

func WithDeferredSettingsChanged() Option {
	return OptionDeferredSettingsChanged{Deferred: true}
}
