package domain

// RecordFilter represents filtering options for listing records.
type RecordFilter struct {
	Status          string
	PropertyFilters []PropertyFilter
}

// PropertyFilter represents a data-level equality/existence filter.
type PropertyFilter struct {
	Key    string
	Value  string
	Exists *bool
}

// MatchesFilter reports whether the record satisfies every filter clause.
func (r Record) MatchesFilter(filter *RecordFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Status != "" && r.Status != filter.Status {
		return false
	}
	for _, pf := range filter.PropertyFilters {
		value := r.ValueForField(pf.Key)
		if pf.Exists != nil {
			if *pf.Exists && value == nil {
				return false
			}
			if !*pf.Exists && value != nil {
				return false
			}
			continue
		}
		if pf.Value != "" && formatValue(value) != pf.Value {
			return false
		}
	}
	return true
}
