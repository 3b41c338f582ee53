package domain

// Snapshot is everything the reconciler may look at. It is assembled under
// the package row lock so concurrent webhook deliveries never interleave.
type Snapshot struct {
	Current           Status
	Agreement         AgreementStatus
	DocumentRequested bool
	DocumentUploaded  bool
	PaymentRequested  bool
	PaymentReceived   bool
}

// Reconcile computes the overall package status from the latest
// sub-statuses. It is the single source of truth for status transitions:
// every adapter calls it after persisting a sub-status change.
//
// Unsatisfied document requests take precedence over unsatisfied payment
// requests, so a signer is asked for their paperwork before being sent to
// checkout.
func Reconcile(s Snapshot) Status {
	// Terminal states never reopen, even under out-of-order webhook delivery.
	if s.Current.IsTerminal() {
		return s.Current
	}

	switch s.Agreement {
	case AgreementStatusDeclined:
		return StatusDeclined
	case AgreementStatusRevoked:
		return StatusRevoked
	}

	documentsSatisfied := !s.DocumentRequested || s.DocumentUploaded
	paymentSatisfied := !s.PaymentRequested || s.PaymentReceived

	if s.Agreement == AgreementStatusCompleted {
		if documentsSatisfied && paymentSatisfied {
			return StatusCompleted
		}
		if !documentsSatisfied {
			return StatusDocumentsPendingUpload
		}
		return StatusPaymentPending
	}

	// Progression guards: the overall status only moves forward while the
	// agreement is in flight, never back.
	if s.Agreement == AgreementStatusPartiallySigned {
		if s.Current == StatusSent || s.Current == StatusViewed {
			return StatusPartiallySigned
		}
	}
	if s.Agreement == AgreementStatusViewed && s.Current == StatusSent {
		return StatusViewed
	}

	return s.Current
}
