package notify

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/homework-notify/backend/internal/chat"
)

// Ledger records, per channel, the message ids this system sent on the last
// dispatch so they can be retracted before resending. In-memory only; a
// restart forgets prior messages and they age out of the channel untouched.
type Ledger struct {
	messages map[string][]string
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{messages: make(map[string][]string)}
}

// Get returns the recorded message ids for a channel in send order.
func (l *Ledger) Get(channelID string) []string {
	return l.messages[channelID]
}

// Set replaces the recorded message ids for a channel.
func (l *Ledger) Set(channelID string, ids []string) {
	l.messages[channelID] = ids
}

// Clear forgets the recorded message ids for a channel.
func (l *Ledger) Clear(channelID string) {
	delete(l.messages, channelID)
}

// Dispatcher delivers message chunks to a chat channel, retracting the
// previous batch first and recording the new message ids in the ledger.
type Dispatcher struct {
	channel chat.Channel
	ledger  *Ledger
	pacing  time.Duration
	sleep   func(time.Duration)
}

// NewDispatcher creates a dispatcher. pacing is the delay after each
// channel write or delete, protecting collaborator rate limits.
func NewDispatcher(channel chat.Channel, ledger *Ledger, pacing time.Duration) *Dispatcher {
	return &Dispatcher{
		channel: channel,
		ledger:  ledger,
		pacing:  pacing,
		sleep:   time.Sleep,
	}
}

// Dispatch runs one delivery cycle for a channel: retract the previously
// ledgered messages, then send each chunk in order, recording the resulting
// ids. Retraction failures (message already gone, permission revoked) are
// logged and skipped. A failed send is logged and the remaining chunks are
// still attempted; the ledger ends up holding exactly the ids that are
// visible in the channel.
func (d *Dispatcher) Dispatch(ctx context.Context, channelID string, chunks []string) []string {
	d.retract(ctx, channelID)
	d.ledger.Clear(channelID)

	sent := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		id, err := d.channel.Send(ctx, channelID, chunk)
		if err != nil {
			log.Printf("Could not send message to channel %s: %v", channelID, err)
			continue
		}
		sent = append(sent, id)
		d.sleep(d.pacing)
	}

	d.ledger.Set(channelID, sent)
	return sent
}

// Send posts a one-off message outside the ledger, such as the startup
// status summary. The pacing delay still applies.
func (d *Dispatcher) Send(ctx context.Context, channelID, text string) (string, error) {
	id, err := d.channel.Send(ctx, channelID, text)
	if err != nil {
		return "", err
	}
	d.sleep(d.pacing)
	return id, nil
}

// Retract deletes every ledgered message for a channel without sending a
// replacement batch, then clears the ledger entry. Returns how many
// messages were deleted.
func (d *Dispatcher) Retract(ctx context.Context, channelID string) int {
	deleted := d.retract(ctx, channelID)
	d.ledger.Clear(channelID)
	return deleted
}

// retract fetch-then-deletes each previously recorded message id.
func (d *Dispatcher) retract(ctx context.Context, channelID string) int {
	deleted := 0
	for _, id := range d.ledger.Get(channelID) {
		if _, err := d.channel.Fetch(ctx, channelID, id); err != nil {
			if !errors.Is(err, chat.ErrMessageNotFound) {
				log.Printf("Could not fetch message %s in channel %s: %v", id, channelID, err)
			}
			continue
		}
		if err := d.channel.Delete(ctx, channelID, id); err != nil {
			log.Printf("Could not delete message %s in channel %s: %v", id, channelID, err)
			continue
		}
		deleted++
		d.sleep(d.pacing)
	}
	return deleted
}
