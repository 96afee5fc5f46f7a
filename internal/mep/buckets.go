package mep

// Buckets holds MEP items grouped by category, the layout both persisted
// documents use.
type Buckets struct {
	Ductwork   []Item `json:"ductwork"`
	Piping     []Item `json:"piping"`
	Conduits   []Item `json:"conduits"`
	CableTrays []Item `json:"cableTrays"`
}

// Bucket returns the slice that holds items of kind k, or nil for an
// unknown kind.
func (b *Buckets) Bucket(k Kind) *[]Item {
	switch k {
	case Duct:
		return &b.Ductwork
	case Pipe:
		return &b.Piping
	case Conduit:
		return &b.Conduits
	case CableTray:
		return &b.CableTrays
	}
	return nil
}

// All returns every item in kind order.
func (b *Buckets) All() []Item {
	out := make([]Item, 0, b.Count())
	for _, k := range Kinds {
		for _, it := range *b.Bucket(k) {
			out = append(out, it.Clone())
		}
	}
	return out
}

// Count is the total number of items.
func (b *Buckets) Count() int {
	return len(b.Ductwork) + len(b.Piping) + len(b.Conduits) + len(b.CableTrays)
}

// Normalize replaces nil buckets with empty ones so they encode as [].
func (b *Buckets) Normalize() {
	for _, k := range Kinds {
		if p := b.Bucket(k); *p == nil {
			*p = []Item{}
		}
	}
}

// Replace resets every bucket from items, routing each by its type. Items
// of unknown type are skipped and returned.
func (b *Buckets) Replace(items []Item) (skipped []Item) {
	*b = Buckets{}
	b.Normalize()
	for _, it := range items {
		p := b.Bucket(it.Type)
		if p == nil {
			skipped = append(skipped, it)
			continue
		}
		*p = append(*p, it.Clone())
	}
	return skipped
}

// Upsert stores item, replacing the entry with the same base id in its
// bucket. It reports false for an unknown type.
func (b *Buckets) Upsert(item Item) bool {
	p := b.Bucket(item.Type)
	if p == nil {
		return false
	}
	base := BaseID(item.ID)
	for i, it := range *p {
		if BaseID(it.ID) == base {
			(*p)[i] = item.Clone()
			return true
		}
	}
	*p = append(*p, item.Clone())
	return true
}

// Find returns the item with id exactly.
func (b *Buckets) Find(id string) (Item, bool) {
	for _, k := range Kinds {
		for _, it := range *b.Bucket(k) {
			if it.ID == id {
				return it.Clone(), true
			}
		}
	}
	return Item{}, false
}

// Remove deletes the item with id and reports whether it existed.
func (b *Buckets) Remove(id string) (Item, bool) {
	for _, k := range Kinds {
		p := b.Bucket(k)
		for i, it := range *p {
			if it.ID == id {
				*p = append((*p)[:i:i], (*p)[i+1:]...)
				return it, true
			}
		}
	}
	return Item{}, false
}

// Clone returns a deep copy.
func (b Buckets) Clone() Buckets {
	var c Buckets
	c.Replace(b.All())
	return c
}
