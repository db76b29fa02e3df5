package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product is a game in the catalog. The same shape is persisted in Postgres
// and indexed into the search engine; popularity_score, sales and views are
// maintained by the popularity pipeline and denormalized onto the document so
// ranking never needs a join.
type Product struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Image         string     `json:"image"`
	Active        bool       `json:"active"`
	Value         float64    `json:"value"`
	StockQuantity int        `json:"stock_quantity"`
	Genre         string     `json:"genre"`
	Platform      string     `json:"platform"`
	Tags          []string   `json:"tags"`
	Metacritic    *float64   `json:"metacritic,omitempty"`
	UserRating    *float64   `json:"user_rating,omitempty"`
	ReleaseDate   *time.Time `json:"release_date,omitempty"`

	PopularityScore int64 `json:"popularity_score"`
	Sales           int64 `json:"sales"`
	Views           int64 `json:"views"`

	DateRegister time.Time `json:"date_register"`
}

// IsAvailable reports whether the product can satisfy a purchase of the given
// quantity: it must be active and hold at least that much stock.
func (p *Product) IsAvailable(quantity int) bool {
	return p.Active && p.StockQuantity >= quantity
}

// DecrementStock subtracts quantity from stock if enough is available. With
// insufficient stock it leaves the product unchanged; callers decide whether
// that is an error via IsAvailable.
func (p *Product) DecrementStock(quantity int) {
	if p.StockQuantity >= quantity {
		p.StockQuantity -= quantity
	}
}

// RegisterView increments the view counter.
func (p *Product) RegisterView() {
	p.Views++
}
