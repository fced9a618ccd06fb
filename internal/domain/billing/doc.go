// Package billing provides domain models for quota threshold alerting and
// overage settlement.
//
// AlertRecord is the append-only dedup marker written after a threshold
// alert has been successfully dispatched; its existence inside the dedup
// window suppresses repeat alerts for the same (tenant, service, threshold,
// period).
//
// OverageInvoice is the append-only local record of an invoice created with
// the external payment processor for a tenant's monthly overage. Its status
// moves from pending to paid/failed via the processor's webhook, which is
// owned elsewhere.
package billing
