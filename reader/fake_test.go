package reader

import (
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

var errScriptDone = errors.New("fake: no more status changes")

// step is what the fake service reports for one GetStatusChange call.
type step struct {
	readers []string         // enumeration after this step
	events  map[string]State // event state per reader; unlisted readers are unchanged
}

type fakeCard struct {
	resp         []byte
	connectErr   error
	transmitErr  error
	attribErr    error
	disconnected int
	commands     [][]byte
}

func (c *fakeCard) Transmit(cmd []byte) ([]byte, error) {
	c.commands = append(c.commands, cmd)
	if c.transmitErr != nil {
		return nil, c.transmitErr
	}
	return c.resp, nil
}

func (c *fakeCard) Attribute(uint32) ([]byte, error) {
	if c.attribErr != nil {
		return nil, c.attribErr
	}
	return []byte{0x3b, 0x8f, 0x80, 0x01}, nil
}

func (c *fakeCard) Disconnect() error {
	c.disconnected++
	return nil
}

type fakeContext struct {
	readers  []string
	listErr  error
	steps    []step
	cards    map[string]*fakeCard
	waits    int
	watched  [][]string
	block    bool
	cancel   chan struct{}
	released bool
}

func newFakeContext(readers ...string) *fakeContext {
	return &fakeContext{
		readers: readers,
		cards:   map[string]*fakeCard{},
		cancel:  make(chan struct{}, 1),
	}
}

func (f *fakeContext) ListReaders() ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.readers...), nil
}

func (f *fakeContext) GetStatusChange(states []ReaderState, _ time.Duration) error {
	f.waits++
	var names []string
	for _, s := range states {
		names = append(names, s.Reader)
	}
	f.watched = append(f.watched, names)

	if f.block {
		<-f.cancel
		return ErrCancelled
	}
	if len(f.steps) == 0 {
		return errScriptDone
	}
	st := f.steps[0]
	f.steps = f.steps[1:]
	for i := range states {
		if ev, ok := st.events[states[i].Reader]; ok {
			states[i].EventState = ev
		} else {
			states[i].EventState = states[i].CurrentState &^ StateChanged
		}
	}
	if st.readers != nil {
		f.readers = st.readers
	}
	return nil
}

func (f *fakeContext) Connect(name string) (Card, error) {
	c, ok := f.cards[name]
	if !ok {
		return nil, errors.New("fake: no card")
	}
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	return c, nil
}

func (f *fakeContext) Cancel() error {
	select {
	case f.cancel <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeContext) Release() error {
	f.released = true
	return nil
}

type recordingObserver struct {
	added, removed, read, failed []string
}

func (o *recordingObserver) ReaderAdded(n string)   { o.added = append(o.added, n) }
func (o *recordingObserver) ReaderRemoved(n string) { o.removed = append(o.removed, n) }
func (o *recordingObserver) TokenRead(n string)     { o.read = append(o.read, n) }
func (o *recordingObserver) ReadFailed(n string)    { o.failed = append(o.failed, n) }

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

const inserted = StateChanged | StatePresent
