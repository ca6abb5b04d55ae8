package reader

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// TrailerLen is the size of the SW1 SW2 status word ending every response.
const TrailerLen = 2

// ErrMalformedResponse means a card response was too short to carry a status
// trailer.
var ErrMalformedResponse = errors.New("malformed card response")

// Token strips the status trailer from a raw card response.
func Token(resp []byte) ([]byte, error) {
	if len(resp) < TrailerLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedResponse, len(resp))
	}
	return resp[:len(resp)-TrailerLen], nil
}

// PCSC implements TagReader on top of the platform PC/SC service. It watches
// every attached reader and reads the identifier of each inserted card.
// PCSC is not safe for concurrent use.
type PCSC struct {
	hw      Context
	readers *readerSet
	queue   tokenQueue
	command []byte
	log     logrus.FieldLogger
	obs     Observer
}

// NewPCSC creates a reader that sends command to every newly inserted card.
func NewPCSC(hw Context, command []byte, log logrus.FieldLogger, obs Observer) *PCSC {
	if obs == nil {
		obs = NopObserver{}
	}
	return &PCSC{
		hw:      hw,
		readers: newReaderSet(hw, log, obs),
		command: command,
		log:     log,
		obs:     obs,
	}
}

// Read implements TagReader.Read. Queued identifiers are returned without
// touching the hardware; otherwise Read polls until a card yields one.
// Enumeration and wait failures are returned and end the reader's usefulness.
func (p *PCSC) Read(ctx context.Context) ([]byte, error) {
	for {
		if tok, ok := p.queue.pop(); ok {
			return tok, nil
		}
		if err := p.poll(ctx); err != nil {
			return nil, err
		}
	}
}

// Readers lists the physical readers currently tracked.
func (p *PCSC) Readers() []string {
	return p.readers.names()
}

// Close implements TagReader.Close.
func (p *PCSC) Close() error {
	return p.hw.Release()
}

func (p *PCSC) poll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.readers.refresh(); err != nil {
		return err
	}
	if err := p.wait(ctx); err != nil {
		return err
	}
	for _, name := range p.readers.inserted() {
		log := p.log.WithField("reader", name)
		resp, err := p.readCard(name)
		if err != nil {
			log.WithError(err).Error("Error reading card")
			p.obs.ReadFailed(name)
			continue
		}
		tok, err := Token(resp)
		if err != nil {
			log.WithError(err).Error("Error reading card")
			p.obs.ReadFailed(name)
			continue
		}
		p.queue.push(tok)
		p.obs.TokenRead(name)
	}
	return nil
}

// wait blocks in GetStatusChange. Cancelling ctx aborts the call.
func (p *PCSC) wait(ctx context.Context) error {
	if done := ctx.Done(); done != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-done:
				if err := p.hw.Cancel(); err != nil {
					p.log.WithError(err).Error("Cancel status wait")
				}
			case <-stop:
			}
		}()
	}

	err := p.readers.waitForChange()
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("wait for reader change: %w", err)
}

// readCard connects to the card in name and exchanges the identify command.
func (p *PCSC) readCard(name string) ([]byte, error) {
	log := p.log.WithField("reader", name)

	card, err := p.hw.Connect(name)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if err := card.Disconnect(); err != nil {
			log.WithError(err).Error("Disconnect card")
		}
	}()

	// Informational only.
	if atr, err := card.Attribute(AttrATRString); err != nil {
		log.WithError(err).Debug("ATR attribute unavailable")
	} else {
		log.WithField("atr", hex.EncodeToString(atr)).Info("Card attribute")
	}

	log.WithField("command", hex.EncodeToString(p.command)).Info("APDU transmission")
	resp, err := card.Transmit(p.command)
	if err != nil {
		return nil, fmt.Errorf("transmit: %w", err)
	}
	log.WithField("response", hex.EncodeToString(resp)).Info("APDU response")
	return resp, nil
}
