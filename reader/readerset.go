package reader

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// readerSet owns the slots handed to GetStatusChange. It is only mutated
// between blocking waits.
type readerSet struct {
	hw     Context
	log    logrus.FieldLogger
	obs    Observer
	states []ReaderState
}

func newReaderSet(hw Context, log logrus.FieldLogger, obs Observer) *readerSet {
	return &readerSet{
		hw:  hw,
		log: log,
		obs: obs,
		states: []ReaderState{
			// Wakes the wait when readers are attached or detached, if supported.
			{Reader: PnPNotification, CurrentState: StateUnaware},
		},
	}
}

// refresh starts watching every enumerated reader not already tracked.
// Readers missing from the enumeration are kept; removal is driven by the
// state reported in waitForChange.
func (s *readerSet) refresh() error {
	names, err := s.hw.ListReaders()
	if err != nil {
		return fmt.Errorf("list readers: %w", err)
	}
	for _, name := range names {
		if s.contains(name) {
			continue
		}
		s.log.WithField("reader", name).Info("Adding reader")
		s.states = append(s.states, ReaderState{Reader: name, CurrentState: StateUnaware})
		s.obs.ReaderAdded(name)
	}
	return nil
}

// waitForChange blocks until any tracked reader changes state, then
// acknowledges the new states and drops readers that went away.
func (s *readerSet) waitForChange() error {
	if err := s.hw.GetStatusChange(s.states, Infinite); err != nil {
		return err
	}
	for i := range s.states {
		s.states[i].CurrentState = s.states[i].EventState
	}
	s.prune()
	return nil
}

func (s *readerSet) prune() {
	kept := s.states[:0]
	for _, rs := range s.states {
		if rs.Reader != PnPNotification && rs.EventState.Any(StateUnknown|StateIgnore) {
			s.log.WithField("reader", rs.Reader).Info("Removing reader")
			s.obs.ReaderRemoved(rs.Reader)
			continue
		}
		kept = append(kept, rs)
	}
	for i := len(kept); i < len(s.states); i++ {
		s.states[i] = ReaderState{}
	}
	s.states = kept
}

// inserted returns, in tracking order, the readers that just saw a card arrive.
func (s *readerSet) inserted() []string {
	var names []string
	for _, rs := range s.states {
		if rs.Reader == PnPNotification {
			continue
		}
		s.log.WithFields(logrus.Fields{
			"reader": rs.Reader,
			"state":  rs.EventState.String(),
			"atr":    fmt.Sprintf("%x", rs.Atr),
		}).Debug("Reader state")
		if rs.EventState.All(StateChanged | StatePresent) {
			names = append(names, rs.Reader)
		}
	}
	return names
}

func (s *readerSet) contains(name string) bool {
	for _, rs := range s.states {
		if rs.Reader == name {
			return true
		}
	}
	return false
}

// names lists the tracked physical readers.
func (s *readerSet) names() []string {
	var names []string
	for _, rs := range s.states {
		if rs.Reader != PnPNotification {
			names = append(names, rs.Reader)
		}
	}
	return names
}
