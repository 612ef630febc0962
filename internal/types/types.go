// README: Common value objects shared across modules.
package types

type ID string

type Point struct {
	Lat float64
	Lng float64
}

// Money is an integer amount in the smallest currency unit.
type Money struct {
	Amount   int64
	Currency string
}

// Location is a geo point plus a display address. The address is
// presentation-only and never feeds computation.
type Location struct {
	Point   Point
	Address string
}
