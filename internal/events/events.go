package events

// Package lifecycle and billing event types published through the outbox.
const (
	EventPackageSent        = "package.sent"
	EventPackageViewed      = "package.viewed"
	EventPackageCompleted   = "package.completed"
	EventPackageDeclined    = "package.declined"
	EventPackageRevoked     = "package.revoked"
	EventPackageFailed      = "package.failed"
	EventDocumentUploaded   = "package.document_uploaded"
	EventPaymentReceived    = "payment.received"
	EventCreditsPurchased   = "credits.purchased"
	EventSubscriptionRenew  = "subscription.renewed"
	EventReconciliationDebt = "reconciliation.debt"
)

// PackagePayload captures the minimal data needed to react to a package event.
type PackagePayload struct {
	PackageID string `json:"package_id"`
	ProUserID string `json:"pro_user_id"`
	Status    string `json:"status,omitempty"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p PackagePayload) ToMap() map[string]any {
	payload := map[string]any{
		"package_id":  p.PackageID,
		"pro_user_id": p.ProUserID,
	}
	if p.Status != "" {
		payload["status"] = p.Status
	}
	return payload
}

// CreditsPayload captures the minimal data for credit balance events.
type CreditsPayload struct {
	ProUserID        string `json:"pro_user_id"`
	CreditsGranted   string `json:"credits_granted,omitempty"`
	ProviderChargeID string `json:"provider_charge_id,omitempty"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p CreditsPayload) ToMap() map[string]any {
	payload := map[string]any{
		"pro_user_id": p.ProUserID,
	}
	if p.CreditsGranted != "" {
		payload["credits_granted"] = p.CreditsGranted
	}
	if p.ProviderChargeID != "" {
		payload["provider_charge_id"] = p.ProviderChargeID
	}
	return payload
}
