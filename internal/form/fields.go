package form

// Fields is the structured result of one successful extraction.
//
// A Fields value is treated as immutable once it has been written into a
// record: the store and the exporter share the pointer without copying.
type Fields struct {
	Admin  map[string]string `json:"admin"`
	Counts map[string]int64  `json:"counts"`
	Votes  map[string]int64  `json:"votes"`
}

// NewFields returns an empty Fields with initialized maps.
func NewFields() *Fields {
	return &Fields{
		Admin:  make(map[string]string),
		Counts: make(map[string]int64),
		Votes:  make(map[string]int64),
	}
}

// Text returns an administrative field and whether it was present.
func (f *Fields) Text(key string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f.Admin[key]
	return v, ok
}

// Count returns a numeric field and whether it was present.
func (f *Fields) Count(key string) (int64, bool) {
	if f == nil {
		return 0, false
	}
	v, ok := f.Counts[key]
	return v, ok
}

// Vote returns the count for a category label. Absent labels read as zero.
func (f *Fields) Vote(label string) int64 {
	if f == nil {
		return 0
	}
	return f.Votes[label]
}

// VoteSum adds up the counts of the given labels.
func (f *Fields) VoteSum(labels []string) int64 {
	var total int64
	for _, label := range labels {
		total += f.Vote(label)
	}
	return total
}
