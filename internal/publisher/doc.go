// Package publisher announces completed sitemap deployments. Backends live in the
// memory and pubsub subpackages.
package publisher

// Attributer is implemented by payloads that carry routing attributes.
type Attributer interface {
	Attributes() map[string]string
}
