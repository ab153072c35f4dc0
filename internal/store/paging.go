package store

// Page is a normalized limit/skip pair ready for a query.
type Page struct {
	Limit int
	Skip  int
}

// Paging is a per-endpoint limit policy. Requests outside [Min,Max] or with
// no usable limit fall back to Default; negative skips collapse to 0.
type Paging struct {
	Default int
	Min     int
	Max     int
}

// Endpoint paging policies. Sort direction is fixed per endpoint: public game
// discovery pages oldest-first, per-user listings and turn history page
// newest-first.
var (
	GamePaging     = Paging{Default: 20, Min: 1, Max: 100}
	FindGamePaging = Paging{Default: 20, Min: 1, Max: 100}
	TurnPaging     = Paging{Default: 3, Min: 1, Max: 100}
	ContactPaging  = Paging{Default: 100, Min: 1, Max: 1000}
)

// Clamp normalizes a raw page. A limit of 0 means "absent".
func (p Paging) Clamp(page Page) Page {
	if page.Limit < p.Min || page.Limit > p.Max {
		page.Limit = p.Default
	}
	if page.Skip < 0 {
		page.Skip = 0
	}
	return page
}
