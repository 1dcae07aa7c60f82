package catalog

import "strings"

// Price range buckets offered by the browse screen.
const (
	PriceRangeAny      = ""
	PriceRangeUnder50  = "under-50"
	PriceRange50To200  = "50-200"
	PriceRange200To500 = "200-500"
	PriceRangeOver500  = "over-500"
)

// Stock views offered by the browse screen.
const (
	StockAny = ""
	StockIn  = "in-stock"
	StockOut = "out-of-stock"
)

// ProductFilter narrows a fetched product list client-side. Filtering is
// applied after the fetch so tweaking filters never refires the request.
type ProductFilter struct {
	Search     string
	Category   string
	PriceRange string
	Stock      string
}

// Empty reports whether the filter would pass everything through.
func (f ProductFilter) Empty() bool {
	return f.Search == "" && f.Category == "" && f.PriceRange == "" && f.Stock == ""
}

// Apply returns the products matching every set criterion.
func (f ProductFilter) Apply(products []Product) []Product {
	if f.Empty() {
		return products
	}

	out := make([]Product, 0, len(products))
	for _, p := range products {
		if f.matches(p) {
			out = append(out, p)
		}
	}
	return out
}

func (f ProductFilter) matches(p Product) bool {
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Description), needle) {
			return false
		}
	}

	if f.Category != "" && !strings.EqualFold(p.CategoryName, f.Category) {
		return false
	}

	if !f.stockMatches(p) {
		return false
	}

	return f.priceMatches(p.PriceValue())
}

func (f ProductFilter) stockMatches(p Product) bool {
	available := p.IsInStock && p.StockQuantity > 0
	switch f.Stock {
	case StockIn:
		return available
	case StockOut:
		return !available
	default:
		return true
	}
}

func (f ProductFilter) priceMatches(price float64) bool {
	switch f.PriceRange {
	case PriceRangeUnder50:
		return price < 50
	case PriceRange50To200:
		return price >= 50 && price <= 200
	case PriceRange200To500:
		return price > 200 && price <= 500
	case PriceRangeOver500:
		return price > 500
	default:
		return true
	}
}
