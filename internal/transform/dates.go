package transform

import "time"

// DateKey maps a timestamp to its YYYYMMDD integer date key, matching the
// warehouse's utils.get_date_key function.
func DateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// DateIndex is the set of date keys present in the shared calendar
// dimension. It resolves timestamps to date keys; timestamps outside the
// calendar resolve to nil and dependent facts carry a null date key.
type DateIndex map[int]struct{}

// NewDateIndex builds an index from the date keys of the loaded calendar.
func NewDateIndex(keys []int) DateIndex {
	idx := make(DateIndex, len(keys))
	for _, k := range keys {
		idx[k] = struct{}{}
	}
	return idx
}

// Resolve returns the date key for t, or nil when the calendar does not
// cover it.
func (idx DateIndex) Resolve(t time.Time) *int {
	key := DateKey(t)
	if _, ok := idx[key]; !ok {
		return nil
	}
	return &key
}
