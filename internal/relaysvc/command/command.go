// Package command relays admin balance changes to the card readers.
package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/avvvet/rfid-relay/internal/comm"
	"github.com/avvvet/rfid-relay/internal/relaysvc/metrics"
	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/avvvet/rfid-relay/internal/relaysvc/service"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ErrPublishFailed means the new balance was stored but the readers were
// not told about it.
var ErrPublishFailed = errors.New("balance stored but topup publish failed")

// Publisher sends a topup command to the hardware. broker.Broker
// implements it.
type Publisher interface {
	PublishTopup(cmd comm.TopupCommand) error
}

type Result struct {
	Card      *models.Card    `json:"card"`
	Previous  decimal.Decimal `json:"previous_balance"`
	Delta     decimal.Decimal `json:"delta"`
	Published bool            `json:"published"`
}

type Relay struct {
	cards     *service.CardService
	publisher Publisher
	metrics   *metrics.Relay
}

func NewRelay(cards *service.CardService, publisher Publisher, m *metrics.Relay) *Relay {
	return &Relay{cards: cards, publisher: publisher, metrics: m}
}

// SetBalance makes target the card's balance, optionally renaming its
// owner, then asks the readers to apply the difference. The store is
// updated first; when publishing fails the committed Result is returned
// along with ErrPublishFailed.
//
// The read and the write are separate store calls, so a hardware balance
// event for the same card landing in between is overwritten.
func (r *Relay) SetBalance(ctx context.Context, uid string, target decimal.Decimal, newOwner, actor string) (*Result, error) {
	before, err := r.cards.GetCard(ctx, uid)
	if err != nil {
		r.metrics.IncCommand("not_found_or_error")
		return nil, err
	}

	delta := target.Sub(before.Balance)

	card, err := r.cards.OverwriteBalance(ctx, uid, target, newOwner)
	if err != nil {
		r.metrics.IncPersistFailure("set_balance")
		r.metrics.IncCommand("store_failed")
		return nil, err
	}

	res := &Result{Card: card, Previous: before.Balance, Delta: delta}

	cmd := comm.TopupCommand{
		UID:         uid,
		Amount:      delta,
		NewBalance:  target,
		PerformedBy: actor,
	}
	if err := r.publisher.PublishTopup(cmd); err != nil {
		r.metrics.IncCommand("publish_failed")
		log.WithField("uid", uid).Errorf("Error publishing topup: %v", err)
		return res, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	res.Published = true
	r.metrics.IncCommand("published")
	log.WithFields(log.Fields{
		"uid":   uid,
		"delta": delta.String(),
		"actor": actor,
	}).Info("topup command published")
	return res, nil
}
