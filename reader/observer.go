package reader

// Observer receives reader lifecycle events, e.g. for metrics.
type Observer interface {
	ReaderAdded(name string)
	ReaderRemoved(name string)
	TokenRead(name string)
	ReadFailed(name string)
}

// NopObserver ignores all events.
type NopObserver struct{}

// ReaderAdded implements Observer.ReaderAdded.
func (NopObserver) ReaderAdded(string) {}

// ReaderRemoved implements Observer.ReaderRemoved.
func (NopObserver) ReaderRemoved(string) {}

// TokenRead implements Observer.TokenRead.
func (NopObserver) TokenRead(string) {}

// ReadFailed implements Observer.ReadFailed.
func (NopObserver) ReadFailed(string) {}
