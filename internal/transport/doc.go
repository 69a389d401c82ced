// Package transport implements the fetch collaborator: given a resource and
// reference parameters, return one page of related records and the total
// number of matches.
//
// Backends:
//   - HTTPFetcher: GET {base}/{resource}?filter=...&range=...&sort=...
//   - NATSFetcher: request/reply on <prefix>.<resource>
//   - Local: a SQLite dataset (internal/store)
//
// Handler and Responder serve any Fetcher over HTTP and NATS with the same
// wire format, so a local dataset can back remote clients.
//
// Every failure is returned as *Error. Temporary errors (timeouts, 5xx,
// 429, no responders) may be retried by WithRetry; nothing retries by
// default.
package transport
