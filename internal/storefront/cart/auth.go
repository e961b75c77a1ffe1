package cart

import "sync"

// AuthFlag はプロセス内の AuthSignal 実装。
type AuthFlag struct {
	mu     sync.Mutex
	authed bool
	subs   listeners[bool]
}

func NewAuthFlag(authenticated bool) *AuthFlag {
	return &AuthFlag{authed: authenticated}
}

func (f *AuthFlag) IsAuthenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authed
}

// Set は値が変わったときだけ通知する。
func (f *AuthFlag) Set(authenticated bool) {
	f.mu.Lock()
	changed := f.authed != authenticated
	f.authed = authenticated
	f.mu.Unlock()

	if changed {
		f.subs.notify(authenticated)
	}
}

func (f *AuthFlag) Subscribe(fn func(bool)) func() {
	return f.subs.add(fn)
}
