// Package metering provides domain models for per-tenant usage metering in a
// multi-tenant property-management SaaS.
//
// The package implements the usage metering bounded context:
//   - Recording immutable usage log entries for billable actions
//     (signatures, SMS, email, document storage, AI tokens)
//   - Deriving the cost of each entry from a static pricing table
//   - Aggregating entries into one monthly summary per tenant and period
//   - Comparing summaries against the quotas of a tenant's plan
//
// Key types:
//   - UsageEvent: transient input describing one billable action
//   - UsageLogEntry: immutable, append-only record derived from an event
//   - MonthlySummary: per-(tenant, period) aggregate, overwritten on recompute
//   - Plan: read-only quota and overage-price directory entry
//
// A period is always a calendar month, identified by its first-of-month UTC
// instant. Summaries are the single source consulted by admission control,
// threshold alerting and overage settlement.
package metering
