package catalog

import "sort"

// Sort orders offered by the reservations screen.
const (
	SortNewest     = "newest"
	SortOldest     = "oldest"
	SortAmountHigh = "amount-high"
	SortAmountLow  = "amount-low"
)

// ReservationFilter narrows and orders a fetched reservation list.
type ReservationFilter struct {
	Status string
	Sort   string
}

// Apply filters by status then sorts. The input slice is not modified.
func (f ReservationFilter) Apply(orders []Order) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}

	switch f.Sort {
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	case SortAmountHigh:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].TotalValue() > out[j].TotalValue()
		})
	case SortAmountLow:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].TotalValue() < out[j].TotalValue()
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}

	return out
}

// Stats are the aggregate counters the admin dashboard renders.
type Stats struct {
	Total     int
	Pending   int
	Approved  int
	Released  int
	Cancelled int
	Revenue   float64
}

// Summarize tallies counts per status. Revenue counts released orders only,
// since that is the point the store actually hands merchandise over.
func Summarize(orders []Order) Stats {
	stats := Stats{Total: len(orders)}
	for _, o := range orders {
		switch o.Status {
		case StatusPending:
			stats.Pending++
		case StatusApproved:
			stats.Approved++
		case StatusReleased:
			stats.Released++
			stats.Revenue += o.TotalValue()
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}
