package repo

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects a window of an ordered listing.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page into valid bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
