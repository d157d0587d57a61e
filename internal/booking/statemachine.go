package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/ledger"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/repository"
)

var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingPending: {
		models.BookingConfirmed, models.BookingCancelled, models.BookingDisputed,
	},
	models.BookingConfirmed: {
		models.BookingAccepted, models.BookingCancelled, models.BookingDisputed, models.BookingCancellationRequested,
	},
	models.BookingAccepted: {
		models.BookingInProgress, models.BookingCompleted, models.BookingCancelled, models.BookingDisputed, models.BookingCancellationRequested,
	},
	models.BookingInProgress: {
		models.BookingWorkerCompleted, models.BookingCompleted, models.BookingCancelled, models.BookingDisputed,
	},
	models.BookingWorkerCompleted: {
		models.BookingCompleted, models.BookingCancelled, models.BookingDisputed,
	},
	models.BookingCancellationRequested: {
		models.BookingCancelled, models.BookingConfirmed, models.BookingAccepted, models.BookingDisputed,
	},
	models.BookingDisputed: {
		models.BookingCompleted, models.BookingCancelled,
	},
}

// CanTransition reports whether the workflow allows from -> to.
func CanTransition(from, to models.BookingStatus) bool {
	return slices.Contains(transitions[from], to)
}

// SettleFrom lists the workflow statuses a settlement from source may start in.
func SettleFrom(source string) []models.BookingStatus {
	switch source {
	case ledger.SourceClientConfirmation:
		return []models.BookingStatus{models.BookingWorkerCompleted}
	case ledger.SourceAutoRelease:
		return []models.BookingStatus{models.BookingAccepted, models.BookingInProgress, models.BookingWorkerCompleted}
	case ledger.SourceDisputeResolution:
		return []models.BookingStatus{models.BookingDisputed}
	case ledger.SourceSelectionDeclined, ledger.SourceSelectionExpired:
		return []models.BookingStatus{models.BookingConfirmed}
	case ledger.SourceCancellationApproved:
		return []models.BookingStatus{models.BookingCancellationRequested}
	case ledger.SourceClientRefund:
		return []models.BookingStatus{models.BookingPending, models.BookingConfirmed}
	case ledger.SourceWorkerCancellation:
		return []models.BookingStatus{
			models.BookingPending, models.BookingConfirmed, models.BookingAccepted, models.BookingInProgress,
			models.BookingWorkerCompleted, models.BookingCancellationRequested,
		}
	}
	return nil
}

// Advance applies a workflow-only transition with a compare-and-swap on the
// current status. Transitions that end the booking while funds are held must
// go through the ledger so status and payment status change together.
func Advance(ctx context.Context, repo repository.BookingRepository, b *models.Booking, to models.BookingStatus, at time.Time) error {
	from := b.Status
	if !CanTransition(from, to) {
		return apperr.InvalidState(fmt.Sprintf("cannot move booking from %s to %s", from, to)).
			With("status", from)
	}
	if to.Terminal() && b.PaymentStatus == models.PaymentHeld {
		return apperr.InvalidState("booking has held funds; settle escrow instead")
	}
	b.Stamp(to, at)
	err := repo.Save(ctx, b, from)
	if errors.Is(err, repository.ErrConflict) {
		return apperr.InvalidState("booking changed concurrently")
	}
	if err != nil {
		return apperr.Internal("save booking", err)
	}
	return nil
}
