// Package fetch is the retrying HTTP capability used by every listing, detail and
// upload call. Requests run through a colly collector whose transport retries
// transient failures with exponential backoff, caches DNS answers, optionally goes
// through an authenticated proxy, and never follows redirects.
package fetch
