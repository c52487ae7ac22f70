package domain

// Entry is one denylisted value. Index is assigned by the store, strictly
// increasing per category and never reused. Only Retired ever changes.
type Entry struct {
	Index    int64    `json:"index"`
	Category Category `json:"-"`
	Value    string   `json:"value"`
	Retired  bool     `json:"retired"`
}
