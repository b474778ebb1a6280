package annot

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Annotations is the typed annotation document attached to one sample.
type Annotations map[string]Value

// Clone creates a copy of the annotation document. Values are immutable,
// so a shallow map copy is sufficient.
func (a Annotations) Clone() Annotations {
	if a == nil {
		return nil
	}
	clone := make(Annotations, len(a))
	for k, v := range a {
		clone[k] = v
	}
	return clone
}

// Index combines annotation storage with an inverted index over sample
// positions using Roaring Bitmaps.
//
// Structure:
//   - Primary storage: map[uint32]Annotations (annotations by sample position)
//   - Inverted index: map[key]map[valueKey]*roaring.Bitmap (posting lists)
//
// Sample positions are row offsets into the ingestion's sample ordering,
// so a posting list translates directly into sample ids.
type Index struct {
	mu sync.RWMutex

	docs     map[uint32]Annotations
	inverted map[string]map[string]*roaring.Bitmap
}

// NewIndex creates an empty annotation index.
func NewIndex() *Index {
	return &Index{
		docs:     make(map[uint32]Annotations),
		inverted: make(map[string]map[string]*roaring.Bitmap),
	}
}

// Set stores annotations for a sample position and updates the inverted
// index. It replaces any existing annotations for the position. Null
// values are stored but not indexed.
func (ix *Index) Set(pos uint32, anns Annotations) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.docs[pos]; ok {
		ix.removeLocked(pos, old)
	}

	ix.docs[pos] = anns.Clone()
	ix.addLocked(pos, anns)
}

// Get retrieves the annotations for a sample position.
func (ix *Index) Get(pos uint32) (Annotations, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	anns, ok := ix.docs[pos]
	if !ok {
		return nil, false
	}
	return anns.Clone(), true
}

// Len returns the number of annotated sample positions.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return len(ix.docs)
}

// Keys returns the sorted set of annotation keys present in the index.
func (ix *Index) Keys() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	keys := make([]string, 0, len(ix.inverted))
	for k := range ix.inverted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Filter returns the sample positions whose annotation under key equals
// value. The returned bitmap is a copy and safe to mutate.
func (ix *Index) Filter(key string, value Value) *roaring.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	bm := ix.postingLocked(key, value)
	if bm == nil {
		return roaring.New()
	}
	return bm.Clone()
}

// FilterAll returns the sample positions matching every key/value
// condition (AND semantics). An empty condition set matches nothing.
func (ix *Index) FilterAll(conds Annotations) *roaring.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var result *roaring.Bitmap
	for key, value := range conds {
		bm := ix.postingLocked(key, value)
		if bm == nil {
			return roaring.New()
		}
		if result == nil {
			result = bm.Clone()
		} else {
			result.And(bm)
		}
		if result.IsEmpty() {
			return result
		}
	}
	if result == nil {
		return roaring.New()
	}
	return result
}

// addLocked adds a document to the inverted index. Caller must hold
// ix.mu.Lock().
func (ix *Index) addLocked(pos uint32, anns Annotations) {
	for key, value := range anns {
		if value.IsNull() {
			continue
		}
		valueMap, ok := ix.inverted[key]
		if !ok {
			valueMap = make(map[string]*roaring.Bitmap)
			ix.inverted[key] = valueMap
		}

		valueKey := value.Key()
		bm, ok := valueMap[valueKey]
		if !ok {
			bm = roaring.New()
			valueMap[valueKey] = bm
		}
		bm.Add(pos)
	}
}

// removeLocked removes a document from the inverted index. Caller must
// hold ix.mu.Lock().
func (ix *Index) removeLocked(pos uint32, anns Annotations) {
	for key, value := range anns {
		if value.IsNull() {
			continue
		}
		valueMap, ok := ix.inverted[key]
		if !ok {
			continue
		}

		valueKey := value.Key()
		bm, ok := valueMap[valueKey]
		if !ok {
			continue
		}

		bm.Remove(pos)
		if bm.IsEmpty() {
			delete(valueMap, valueKey)
			if len(valueMap) == 0 {
				delete(ix.inverted, key)
			}
		}
	}
}

func (ix *Index) postingLocked(key string, value Value) *roaring.Bitmap {
	valueMap, ok := ix.inverted[key]
	if !ok {
		return nil
	}
	return valueMap[value.Key()]
}
