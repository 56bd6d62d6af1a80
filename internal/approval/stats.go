package approval

// ComputeStats counts items by status. Structural rows never count.
func ComputeStats(r Release) Stats {
	var stats Stats
	for _, item := range r.Items {
		if IsStructuralName(item.Name) {
			continue
		}
		switch item.Status {
		case StatusApproved:
			stats.Approved++
		case StatusRejected:
			stats.Rejected++
		case StatusDeferred:
			stats.Deferred++
		default:
			stats.Pending++
		}
		stats.Total++
	}
	return stats
}

// IsReadyToAnnounce gates the announce action: nothing pending and something approved.
func IsReadyToAnnounce(r Release) bool {
	stats := ComputeStats(r)
	return stats.Pending == 0 && stats.Approved > 0
}

// ApprovedItems returns approved items in ledger order.
func ApprovedItems(r Release) []LineItem {
	out := make([]LineItem, 0, len(r.Items))
	for _, item := range r.Items {
		if item.Status == StatusApproved && !IsStructuralName(item.Name) {
			out = append(out, item)
		}
	}
	return out
}
