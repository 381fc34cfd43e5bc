// Package models contains the GORM persistence models of the order ledger.
// Domain types stay free of ORM tags; each model converts with ToDomain and
// FromDomain.
//
//   - base.go: shared columns (id, timestamps, version)
//   - order.go: orders and order_items
//   - payment.go: the payments ledger
//   - cancellation.go: order_cancellation_requests
//   - stock.go: products and the stock_restorations ledger
//   - outbox.go: outbox_events for reliable event delivery
package models
