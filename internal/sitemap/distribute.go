package sitemap

import "fmt"

// Fixed worker-unit layout. A worker deploys DefaultUnitCount units holding at
// most DefaultUnitCapacity sitemaps each; sitemaps beyond that are dropped.
const (
	DefaultUnitCount    = 3
	DefaultUnitCapacity = 40
)

// Slot is one sitemap placed in a unit under a stable binding name,
// SITEMAP_<unit>_<slot>.
type Slot struct {
	Name    string
	Sitemap Sitemap
}

// Unit is one deployable script for a worker.
type Unit struct {
	Index int
	Name  string
	Slots []Slot
}

// Distribution is the result of laying sitemaps out across units.
type Distribution struct {
	Units   []Unit
	Dropped int
}

// Sitemaps returns every placed sitemap in unit order.
func (d Distribution) Sitemaps() []Sitemap {
	var out []Sitemap
	for _, u := range d.Units {
		for _, s := range u.Slots {
			out = append(out, s.Sitemap)
		}
	}
	return out
}

// Distribute fills units in order, capacity sitemaps at a time. Every unit is
// returned even when empty so unit names stay stable between runs. Non-positive
// arguments fall back to the defaults.
func Distribute(worker string, sitemaps []Sitemap, units, capacity int) Distribution {
	if units <= 0 {
		units = DefaultUnitCount
	}
	if capacity <= 0 {
		capacity = DefaultUnitCapacity
	}

	dist := Distribution{Units: make([]Unit, units)}
	for u := range units {
		name := worker
		if units > 1 {
			name = fmt.Sprintf("%s-%d", worker, u+1)
		}
		dist.Units[u] = Unit{Index: u + 1, Name: name}
	}
	for i, s := range sitemaps {
		u := i / capacity
		if u >= units {
			dist.Dropped = len(sitemaps) - i
			break
		}
		c := i%capacity + 1
		dist.Units[u].Slots = append(dist.Units[u].Slots, Slot{
			Name:    fmt.Sprintf("SITEMAP_%d_%d", u+1, c),
			Sitemap: s,
		})
	}
	return dist
}
