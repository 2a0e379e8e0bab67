// Package reconcile applies hardware events to card state and tells viewers
// what changed. Presence bookkeeping and notifications happen on one
// goroutine; store calls run per card so a slow database only delays the
// card it is working on.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avvvet/rfid-relay/internal/comm"
	"github.com/avvvet/rfid-relay/internal/relaysvc/ingress"
	"github.com/avvvet/rfid-relay/internal/relaysvc/metrics"
	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/avvvet/rfid-relay/internal/relaysvc/service"
	"github.com/avvvet/rfid-relay/internal/relaysvc/store"
	"github.com/avvvet/rfid-relay/internal/relaysvc/watchdog"
	log "github.com/sirupsen/logrus"
)

// Notifier fans a message out to viewers. hub.Hub implements it.
type Notifier interface {
	Broadcast(msgType string, payload any) int
}

type Options struct {
	PresenceTimeout time.Duration
	Tick            time.Duration
	StoreTimeout    time.Duration
	Metrics         *metrics.Relay
	// Now defaults to time.Now. Run calls it from several goroutines.
	Now func() time.Time
}

type Engine struct {
	cards        *service.CardService
	txs          *service.TransactionService
	notifier     Notifier
	watchdog     *watchdog.Watchdog
	metrics      *metrics.Relay
	now          func() time.Time
	tick         time.Duration
	storeTimeout time.Duration
}

func NewEngine(cards *service.CardService, txs *service.TransactionService, notifier Notifier, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &Engine{
		cards:        cards,
		txs:          txs,
		notifier:     notifier,
		watchdog:     watchdog.New(opts.PresenceTimeout),
		metrics:      opts.Metrics,
		now:          opts.Now,
		tick:         opts.Tick,
		storeTimeout: opts.StoreTimeout,
	}
}

type job struct {
	seq uint64
	ev  ingress.Event
}

// outcome is the store result of one detection or balance event. A nil
// card with a nil err means there is nothing to announce.
type outcome struct {
	seq  uint64
	ev   ingress.Event
	card *models.Card
	at   time.Time
	err  error
}

// lane holds the pending jobs of one uid. jobs[0] is running.
type lane struct {
	jobs []job
}

// Run consumes events and drives the presence watchdog until ctx ends or
// events is closed and the work in flight has settled.
//
// Removals and watchdog ticks are handled inline. Detections and balance
// events go to a lane per uid: one store call at a time per card, in
// arrival order, with the result handed back here to be announced.
func (e *Engine) Run(ctx context.Context, events <-chan ingress.Event) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	var (
		wg      sync.WaitGroup
		seq     uint64
		lanes   = make(map[string]*lane)
		removed = make(map[string]uint64)
		results = make(chan outcome)
	)
	defer wg.Wait()

	start := func(j job) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := e.work(ctx, j.ev)
			out.seq = j.seq
			select {
			case results <- out:
			case <-ctx.Done():
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				if len(lanes) == 0 {
					return
				}
				events = nil
				continue
			}
			seq++
			uid := ev.UID()

			if ev.Kind == ingress.KindPresence && ev.Presence.Status == ingress.Removed {
				// detections still in flight for uid predate the removal
				if _, busy := lanes[uid]; busy {
					removed[uid] = seq
				}
				e.removed(uid)
				continue
			}

			j := job{seq: seq, ev: ev}
			l, busy := lanes[uid]
			if !busy {
				lanes[uid] = &lane{jobs: []job{j}}
				start(j)
				continue
			}
			// a waiting heartbeat is superseded by a newer one
			if n := len(l.jobs); n > 1 && isHeartbeat(l.jobs[n-1].ev) && isHeartbeat(ev) {
				l.jobs[n-1] = j
				continue
			}
			l.jobs = append(l.jobs, j)

		case out := <-results:
			uid := out.ev.UID()
			if cut, ok := removed[uid]; ok && out.seq < cut && out.ev.Kind == ingress.KindPresence {
				out.card = nil
			}
			if err := e.settle(out); err != nil {
				log.WithFields(log.Fields{
					"uid":   uid,
					"kind":  out.ev.Kind,
					"topic": out.ev.Topic,
				}).Errorf("Error applying event: %v", err)
			}

			l := lanes[uid]
			l.jobs = l.jobs[1:]
			if len(l.jobs) > 0 {
				start(l.jobs[0])
			} else {
				delete(lanes, uid)
				delete(removed, uid)
				if events == nil && len(lanes) == 0 {
					return
				}
			}

		case <-ticker.C:
			e.Expire(e.now())
		}
	}
}

// Apply handles a single event to completion on the calling goroutine.
func (e *Engine) Apply(ctx context.Context, ev ingress.Event) error {
	if ev.Kind == ingress.KindPresence && ev.Presence.Status == ingress.Removed {
		e.removed(ev.Presence.UID)
		return nil
	}
	return e.settle(e.work(ctx, ev))
}

func isHeartbeat(ev ingress.Event) bool {
	return ev.Kind == ingress.KindPresence && ev.Presence.Status != ingress.Removed
}

// work runs the store half of ev. It leaves the watchdog and the notifier
// alone, so it may run off the reactor goroutine.
func (e *Engine) work(ctx context.Context, ev ingress.Event) outcome {
	start := time.Now()
	defer func() { e.metrics.ObserveApply(string(ev.Kind), time.Since(start)) }()

	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	out := outcome{ev: ev}
	switch ev.Kind {
	case ingress.KindPresence:
		out.card, out.err = e.detected(ctx, ev.Presence)
	case ingress.KindBalance:
		out.card, out.at, out.err = e.balance(ctx, ev.Balance)
	}
	return out
}

// settle announces a finished outcome and arms the watchdog for detections.
func (e *Engine) settle(out outcome) error {
	if out.err != nil || out.card == nil {
		return out.err
	}
	card := out.card

	switch out.ev.Kind {
	case ingress.KindPresence:
		p := out.ev.Presence
		balance := card.Balance
		if p.Balance != nil {
			balance = *p.Balance
		}
		e.notifier.Broadcast(comm.TypeCardStatus, comm.CardStatus{
			UID:     card.UID,
			Present: true,
			Owner:   card.OwnerOrDefault(),
			Balance: &balance,
			Topic:   out.ev.Topic,
		})

		at := out.ev.ReceivedAt
		if at.IsZero() {
			at = e.now()
		}
		e.watchdog.Heartbeat(p.UID, at)

	case ingress.KindBalance:
		e.notifier.Broadcast(comm.TypeBalanceUpdate, comm.BalanceUpdate{
			UID:     card.UID,
			Balance: card.Balance,
			Owner:   card.OwnerOrDefault(),
			Amount:  out.ev.Balance.Amount,
			Ts:      out.at.UnixMilli(),
		})
	}
	return nil
}

// Expire reports every card whose heartbeats stopped as gone.
func (e *Engine) Expire(now time.Time) []string {
	expired := e.watchdog.Tick(now)
	for _, uid := range expired {
		log.WithField("uid", uid).Info("card presence timed out")
		e.notifier.Broadcast(comm.TypeCardStatus, comm.CardStatus{
			UID:     uid,
			Present: false,
			Status:  comm.StatusTimeout,
		})
	}
	return expired
}

func (e *Engine) Present(uid string) bool {
	return e.watchdog.Present(uid)
}

func (e *Engine) removed(uid string) {
	e.watchdog.Remove(uid)
	log.WithField("uid", uid).Info("card removed")
	e.notifier.Broadcast(comm.TypeCardStatus, comm.CardStatus{
		UID:     uid,
		Present: false,
		Status:  comm.StatusRemoved,
	})
}

func (e *Engine) detected(ctx context.Context, p *ingress.PresenceEvent) (*models.Card, error) {
	card, created, err := e.cards.GetOrCreate(ctx, p.UID)
	if err != nil {
		e.metrics.IncPersistFailure("get_or_create")
		return nil, err
	}
	if created {
		log.WithField("uid", p.UID).Info("registered new card")
	}
	return card, nil
}

func (e *Engine) balance(ctx context.Context, b *ingress.BalanceEvent) (*models.Card, time.Time, error) {
	card, err := e.cards.OverwriteBalance(ctx, b.UID, b.NewBalance, "")
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.WithField("uid", b.UID).Debug("balance update for unknown card dropped")
			return nil, time.Time{}, nil
		}
		e.metrics.IncPersistFailure("set_balance")
		return nil, time.Time{}, err
	}

	now := e.now()
	tx := models.NewTransaction(*card, b.Amount, now, b.PerformedBy)
	if err := e.txs.Record(ctx, &tx); err != nil {
		e.metrics.IncPersistFailure("transaction")
		log.WithField("uid", b.UID).Errorf("Error recording transaction: %v", err)
	} else {
		e.metrics.IncTransaction(string(tx.Kind))
	}
	return card, now, nil
}
