package resolver

import (
	"context"
	"net/url"
	"sync"

	"github.com/suPer8Hu/chat-capture/internal/platform"
)

// Navigation kinds.
const (
	Initial    = "initial"
	PopState   = "popstate"
	HashChange = "hashchange"
	Mutation   = "mutation"
)

// Resolver tracks the active conversation id of one page. Reads are
// lock-shared; Navigate, Watch and SetFromResponse are the only writers.
type Resolver struct {
	cfg      *platform.Config
	onChange func(id string)

	mu       sync.RWMutex
	current  string
	lastHref string
	pinned   bool // id came from a response body and holds until href changes
}

// New returns a resolver for cfg. onChange is called outside the lock each
// time the current id changes; it may be nil.
func New(cfg *platform.Config, onChange func(id string)) *Resolver {
	return &Resolver{cfg: cfg, onChange: onChange}
}

func (r *Resolver) CurrentID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Navigate handles one navigation signal. Mutation signals are ignored unless
// the href actually changed.
func (r *Resolver) Navigate(kind, href string) {
	r.mu.Lock()
	changedHref := href != r.lastHref
	if kind == Mutation && !changedHref {
		r.mu.Unlock()
		return
	}
	r.lastHref = href
	if r.pinned && !changedHref {
		r.mu.Unlock()
		return
	}
	r.pinned = false

	id := r.derive(href)
	if id == "" || id == r.current {
		r.mu.Unlock()
		return
	}
	r.current = id
	r.mu.Unlock()

	r.notify(id)
}

// Watch feeds href snapshots into Navigate as mutation signals until ctx is
// done or hrefs is closed.
func (r *Resolver) Watch(ctx context.Context, hrefs <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case href, ok := <-hrefs:
			if !ok {
				return
			}
			r.Navigate(Mutation, href)
		}
	}
}

// SetFromResponse records an id seen in an API response. Empty ids are
// ignored.
func (r *Resolver) SetFromResponse(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	r.pinned = true
	if id == r.current {
		r.mu.Unlock()
		return
	}
	r.current = id
	r.mu.Unlock()

	r.notify(id)
}

func (r *Resolver) derive(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return r.cfg.ConversationIDFromURL(u)
}

func (r *Resolver) notify(id string) {
	if r.onChange != nil {
		r.onChange(id)
	}
}
