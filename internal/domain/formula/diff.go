package formula

// ItemChange describes one line-item difference between two formula versions.
type ItemChange struct {
	Name         string `json:"name"`
	FromAmountMg int    `json:"from_amount_mg"`
	ToAmountMg   int    `json:"to_amount_mg"`
}

// VersionDiff summarizes what changed between two versions of a user's
// formula. Consumed by the admin timeline view.
type VersionDiff struct {
	FromVersion int          `json:"from_version"`
	ToVersion   int          `json:"to_version"`
	Added       []LineItem   `json:"added,omitempty"`
	Removed     []LineItem   `json:"removed,omitempty"`
	Changed     []ItemChange `json:"changed,omitempty"`
	TotalDelta  int          `json:"total_delta_mg"`
}

// Diff compares two formulas line item by line item, keyed on canonical name.
func Diff(from, to *Formula) VersionDiff {
	d := VersionDiff{
		FromVersion: from.Version,
		ToVersion:   to.Version,
		TotalDelta:  to.TotalMg - from.TotalMg,
	}

	fromItems := make(map[string]LineItem)
	for _, it := range from.Items() {
		fromItems[it.Name] = it
	}

	seen := make(map[string]bool)
	for _, it := range to.Items() {
		seen[it.Name] = true
		prev, ok := fromItems[it.Name]
		switch {
		case !ok:
			d.Added = append(d.Added, it)
		case prev.AmountMg != it.AmountMg:
			d.Changed = append(d.Changed, ItemChange{
				Name:         it.Name,
				FromAmountMg: prev.AmountMg,
				ToAmountMg:   it.AmountMg,
			})
		}
	}

	for _, it := range from.Items() {
		if !seen[it.Name] {
			d.Removed = append(d.Removed, it)
		}
	}

	return d
}
