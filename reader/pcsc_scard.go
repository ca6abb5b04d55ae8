package reader

import (
	"errors"
	"fmt"
	"time"

	"github.com/ebfe/scard"
)

// PnPNotification is the pseudo reader name PC/SC uses to signal reader
// attach and detach through GetStatusChange.
const PnPNotification = `\\?PnP?\Notification`

// AttrATRString is SCARD_ATTR_ATR_STRING.
const AttrATRString uint32 = 0x00090303

// Infinite makes GetStatusChange wait without a timeout.
const Infinite time.Duration = -1

// ErrCancelled is returned by GetStatusChange after Cancel.
var ErrCancelled = errors.New("pcsc: blocking call cancelled")

// Context is a session with the platform smart card service.
type Context interface {
	ListReaders() ([]string, error)
	// GetStatusChange blocks until one of states differs from its
	// CurrentState, then fills in EventState and Atr.
	GetStatusChange(states []ReaderState, timeout time.Duration) error
	Connect(reader string) (Card, error)
	// Cancel aborts a pending GetStatusChange from another goroutine.
	Cancel() error
	Release() error
}

// Card is a shared connection to the card seated in one reader.
type Card interface {
	Transmit(cmd []byte) ([]byte, error)
	Attribute(id uint32) ([]byte, error)
	Disconnect() error
}

type scardContext struct {
	ctx *scard.Context
}

// EstablishContext opens a session with the PC/SC daemon.
func EstablishContext() (Context, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish pcsc context: %w", err)
	}
	return &scardContext{ctx: ctx}, nil
}

func (c *scardContext) ListReaders() ([]string, error) {
	names, err := c.ctx.ListReaders()
	if errors.Is(err, scard.ErrNoReadersAvailable) {
		return nil, nil
	}
	return names, err
}

func (c *scardContext) GetStatusChange(states []ReaderState, timeout time.Duration) error {
	rs := make([]scard.ReaderState, len(states))
	for i, s := range states {
		rs[i] = scard.ReaderState{
			Reader:       s.Reader,
			CurrentState: scard.StateFlag(s.CurrentState),
		}
	}
	if err := c.ctx.GetStatusChange(rs, timeout); err != nil {
		if errors.Is(err, scard.ErrCancelled) {
			return ErrCancelled
		}
		return err
	}
	for i := range rs {
		states[i].EventState = State(rs[i].EventState)
		states[i].Atr = rs[i].Atr
	}
	return nil
}

func (c *scardContext) Connect(reader string) (Card, error) {
	card, err := c.ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return nil, err
	}
	return &scardCard{card: card}, nil
}

func (c *scardContext) Cancel() error {
	return c.ctx.Cancel()
}

func (c *scardContext) Release() error {
	return c.ctx.Release()
}

type scardCard struct {
	card *scard.Card
}

func (c *scardCard) Transmit(cmd []byte) ([]byte, error) {
	return c.card.Transmit(cmd)
}

func (c *scardCard) Attribute(id uint32) ([]byte, error) {
	return c.card.GetAttrib(scard.Attrib(id))
}

func (c *scardCard) Disconnect() error {
	return c.card.Disconnect(scard.LeaveCard)
}
