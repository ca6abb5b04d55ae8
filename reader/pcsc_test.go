package reader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	tests := []struct {
		name    string
		resp    []byte
		want    []byte
		wantErr bool
	}{
		{"uid with trailer", []byte{0xde, 0xad, 0xbe, 0xef, 0x90, 0x00}, []byte{0xde, 0xad, 0xbe, 0xef}, false},
		{"trailer only", []byte{0x90, 0x00}, []byte{}, false},
		{"one byte", []byte{0x90}, nil, true},
		{"empty", nil, nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Token(tc.resp)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	hw := newFakeContext("ACS ACR122U 00 00", "Identiv uTrust 01 00")
	obs := &recordingObserver{}
	set := newReaderSet(hw, testLogger(), obs)

	require.NoError(t, set.refresh())
	require.NoError(t, set.refresh())

	assert.Equal(t, []string{"ACS ACR122U 00 00", "Identiv uTrust 01 00"}, set.names())
	assert.Len(t, set.states, 3)
	assert.Equal(t, PnPNotification, set.states[0].Reader)
	assert.Equal(t, []string{"ACS ACR122U 00 00", "Identiv uTrust 01 00"}, obs.added)
	assert.Empty(t, obs.removed)
}

func TestRefreshKeepsReadersMissingFromEnumeration(t *testing.T) {
	hw := newFakeContext("a")
	set := newReaderSet(hw, testLogger(), NopObserver{})
	require.NoError(t, set.refresh())

	hw.readers = nil
	require.NoError(t, set.refresh())
	assert.Equal(t, []string{"a"}, set.names())
}

func TestReadReturnsTokensInReaderOrder(t *testing.T) {
	hw := newFakeContext("a", "b", "c")
	hw.cards["a"] = &fakeCard{resp: []byte{0x01, 0x90, 0x00}}
	hw.cards["b"] = &fakeCard{resp: []byte{0x02, 0x90, 0x00}}
	hw.cards["c"] = &fakeCard{resp: []byte{0x03, 0x90, 0x00}}
	hw.steps = []step{{events: map[string]State{"c": inserted, "a": inserted, "b": inserted}}}

	obs := &recordingObserver{}
	r := NewPCSC(hw, []byte{0xff, 0xca, 0x00, 0x00, 0x00}, testLogger(), obs)
	ctx := context.Background()

	for _, want := range []byte{0x01, 0x02, 0x03} {
		tok, err := r.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{want}, tok)
	}
	assert.Equal(t, 1, hw.waits, "queued tokens must be served without waiting")
	assert.Equal(t, []string{"a", "b", "c"}, obs.read)
	for _, name := range []string{"a", "b", "c"} {
		card := hw.cards[name]
		assert.Equal(t, 1, card.disconnected, name)
		assert.Equal(t, [][]byte{{0xff, 0xca, 0x00, 0x00, 0x00}}, card.commands, name)
	}
}

func TestReadIsolatesCardFailures(t *testing.T) {
	hw := newFakeContext("a", "b", "c")
	hw.cards["a"] = &fakeCard{connectErr: errors.New("sharing violation")}
	hw.cards["b"] = &fakeCard{transmitErr: errors.New("card removed")}
	hw.cards["c"] = &fakeCard{resp: []byte{0xca, 0xfe, 0x90, 0x00}, attribErr: errors.New("unsupported")}
	hw.steps = []step{{events: map[string]State{"a": inserted, "b": inserted, "c": inserted}}}

	obs := &recordingObserver{}
	r := NewPCSC(hw, []byte{0xff, 0xca, 0x00, 0x00, 0x00}, testLogger(), obs)

	tok, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xca, 0xfe}, tok)
	assert.Equal(t, []string{"a", "b"}, obs.failed)
	assert.Equal(t, 0, hw.cards["a"].disconnected)
	assert.Equal(t, 1, hw.cards["b"].disconnected, "card must be released after a failed transmit")
	assert.Equal(t, 0, r.queue.len())
}

func TestReadDropsMalformedResponse(t *testing.T) {
	hw := newFakeContext("a")
	hw.cards["a"] = &fakeCard{resp: []byte{0x6a}}
	hw.steps = []step{
		{events: map[string]State{"a": inserted}},
		{events: map[string]State{"a": StateChanged | StateEmpty}},
	}

	obs := &recordingObserver{}
	r := NewPCSC(hw, []byte{0xff, 0xca, 0x00, 0x00, 0x00}, testLogger(), obs)

	_, err := r.Read(context.Background())
	assert.ErrorIs(t, err, errScriptDone)
	assert.Equal(t, []string{"a"}, obs.failed)
	assert.Empty(t, obs.read)
}

func TestReadIgnoresChangesWithoutCard(t *testing.T) {
	hw := newFakeContext("a")
	hw.cards["a"] = &fakeCard{resp: []byte{0x01, 0x90, 0x00}}
	hw.steps = []step{
		{events: map[string]State{"a": StateChanged | StateEmpty}},
		{events: map[string]State{"a": StatePresent}},
		{events: map[string]State{"a": inserted | StateInUse}},
	}

	r := NewPCSC(hw, []byte{0xff, 0xca, 0x00, 0x00, 0x00}, testLogger(), nil)
	tok, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, tok)
	assert.Equal(t, 3, hw.waits)
}

func TestReadRemovesVanishedReaders(t *testing.T) {
	hw := newFakeContext("a")
	hw.cards["a"] = &fakeCard{resp: []byte{0x01, 0x90, 0x00}}
	hw.steps = []step{
		{events: map[string]State{"a": inserted}},
		{events: map[string]State{"a": StateChanged | StateUnknown}, readers: []string{}},
		{events: map[string]State{}, readers: []string{"a"}},
	}

	obs := &recordingObserver{}
	r := NewPCSC(hw, []byte{0xff, 0xca, 0x00, 0x00, 0x00}, testLogger(), obs)
	ctx := context.Background()

	_, err := r.Read(ctx)
	require.NoError(t, err)

	_, err = r.Read(ctx)
	require.ErrorIs(t, err, errScriptDone)

	assert.Equal(t, [][]string{
		{PnPNotification, "a"},
		{PnPNotification, "a"},
		{PnPNotification},
		{PnPNotification, "a"},
	}, hw.watched)
	assert.Equal(t, []string{"a"}, obs.removed)
	assert.Equal(t, []string{"a", "a"}, obs.added, "reader is only re-added once enumerated again")
}

func TestReadRemovesIgnoredReaders(t *testing.T) {
	hw := newFakeContext("a", "b")
	hw.steps = []step{
		{events: map[string]State{"a": StateChanged | StateIgnore}, readers: []string{"b"}},
	}

	r := NewPCSC(hw, []byte{0xff, 0xca, 0x00, 0x00, 0x00}, testLogger(), nil)
	_, err := r.Read(context.Background())
	require.ErrorIs(t, err, errScriptDone)
	assert.Equal(t, []string{"b"}, r.Readers())
}

func TestPnPNotificationIsNeverPrunedOrRead(t *testing.T) {
	hw := newFakeContext("a")
	hw.cards["a"] = &fakeCard{resp: []byte{0x07, 0x90, 0x00}}
	hw.steps = []step{
		{events: map[string]State{PnPNotification: StateChanged | StateUnknown | StatePresent}},
		{events: map[string]State{PnPNotification: StateChanged | StateIgnore, "a": inserted}},
	}

	obs := &recordingObserver{}
	r := NewPCSC(hw, []byte{0xff, 0xca, 0x00, 0x00, 0x00}, testLogger(), obs)

	tok, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0x07}, tok)
	assert.Equal(t, []string{"a"}, obs.read)
	assert.Empty(t, obs.failed)
	assert.Empty(t, obs.removed)
	for _, w := range hw.watched {
		assert.Equal(t, PnPNotification, w[0])
	}
}

func TestReadFailsWhenEnumerationFails(t *testing.T) {
	hw := newFakeContext()
	hw.listErr = errors.New("service not available")

	r := NewPCSC(hw, []byte{0xff, 0xca, 0x00, 0x00, 0x00}, testLogger(), nil)
	_, err := r.Read(context.Background())
	assert.ErrorIs(t, err, hw.listErr)
	assert.Equal(t, 0, hw.waits)
}

func TestReadCancelUnblocksWait(t *testing.T) {
	hw := newFakeContext("a")
	hw.block = true

	r := NewPCSC(hw, []byte{0xff, 0xca, 0x00, 0x00, 0x00}, testLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Read(ctx)
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after cancel")
	}
}

func TestCloseReleasesContext(t *testing.T) {
	hw := newFakeContext()
	r := NewPCSC(hw, nil, testLogger(), nil)
	require.NoError(t, r.Close())
	assert.True(t, hw.released)
}

func TestTokenQueueIsFIFO(t *testing.T) {
	var q tokenQueue
	_, ok := q.pop()
	assert.False(t, ok)

	q.push([]byte{1})
	q.push([]byte{2})
	assert.Equal(t, 2, q.len())

	head, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, []byte{1}, head)
	head, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, []byte{2}, head)
	assert.Equal(t, 0, q.len())
}
