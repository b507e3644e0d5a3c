package query

// Watcher delivers a coalesced signal whenever a watched key is invalidated
// or refreshed by a background revalidation. A signal means "re-read now"; several invalidations between two reads
// collapse into one signal.
type Watcher struct {
	c   *Client
	key Key
	ch  chan struct{}
}

// Watch signals when key is invalidated, directly or through its Kind.
func (c *Client) Watch(key Key) *Watcher {
	return c.addWatcher(&Watcher{c: c, key: key, ch: make(chan struct{}, 1)})
}

func (c *Client) addWatcher(w *Watcher) *Watcher {
	c.mu.Lock()
	c.watchers[w] = struct{}{}
	c.mu.Unlock()
	return w
}

func (w *Watcher) C() <-chan struct{} {
	return w.ch
}

// Stop detaches the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.c.mu.Lock()
	delete(w.c.watchers, w)
	w.c.mu.Unlock()
}

func (w *Watcher) matches(key Key) bool {
	return w.key == key
}

func (w *Watcher) signal() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}
