// Package maintenance removes records written with corrupt uids or owners,
// typically from a reader that garbled its serial output.
package maintenance

import (
	"context"
	"fmt"
	"strings"

	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/avvvet/rfid-relay/internal/relaysvc/store"
	log "github.com/sirupsen/logrus"
)

type Report struct {
	DeletedCards        int   `json:"deleted_cards"`
	CleanedOwners       int   `json:"cleaned_owners"`
	DeletedTransactions int64 `json:"deleted_transactions"`
	DryRun              bool  `json:"dry_run"`
}

func (r Report) String() string {
	return fmt.Sprintf("deleted %d corrupted cards, cleaned %d card owners, deleted %d corrupted transactions",
		r.DeletedCards, r.CleanedOwners, r.DeletedTransactions)
}

// Cleanup deletes cards and transactions whose uid is corrupt and strips
// non-printable bytes from owners. With dryRun nothing is written and the
// report counts what would change (transactions are counted per uid).
func Cleanup(ctx context.Context, cards store.CardStore, txs store.TransactionStore, dryRun bool) (*Report, error) {
	report := &Report{DryRun: dryRun}

	all, err := cards.ListCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}

	for _, card := range all {
		if !models.ValidUID(card.UID) {
			if !dryRun {
				if err := cards.DeleteCard(ctx, card.UID); err != nil {
					return report, fmt.Errorf("delete card %q: %w", card.UID, err)
				}
			}
			report.DeletedCards++
			log.Infof("deleted corrupted card %q", preview(card.UID))
			continue
		}

		owner := strings.TrimSpace(models.StripNonPrintable(card.Owner))
		if owner == card.Owner {
			continue
		}
		if owner == "" {
			owner = models.DefaultOwner
		}
		if !dryRun {
			if err := cards.UpdateOwner(ctx, card.UID, owner); err != nil {
				return report, fmt.Errorf("clean owner of %s: %w", card.UID, err)
			}
		}
		report.CleanedOwners++
		log.Infof("cleaned owner for card %s", card.UID)
	}

	uids, err := txs.TransactionUIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("list transaction uids: %w", err)
	}
	for _, uid := range uids {
		if models.ValidUID(uid) {
			continue
		}
		if dryRun {
			report.DeletedTransactions++
			continue
		}
		n, err := txs.DeleteTransactionsByUID(ctx, uid)
		if err != nil {
			return report, fmt.Errorf("delete transactions for %q: %w", uid, err)
		}
		report.DeletedTransactions += n
	}

	return report, nil
}

func preview(uid string) string {
	if len(uid) > 20 {
		return uid[:20] + "..."
	}
	return uid
}
