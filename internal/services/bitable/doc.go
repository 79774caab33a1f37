// Package bitable implements the record source adapter against the remote
// tabular store's HTTP API: tenant token exchange, cursor-paginated record
// listing, and best-effort batch updates addressed by record identity.
package bitable
