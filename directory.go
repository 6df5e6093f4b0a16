package trampoline

import (
	"sort"

	"github.com/emirpasic/gods/lists/arraylist"
)

// regionDirectory is the ordered collection of live regions, sorted by
// base address, supporting binary search by address proximity. The
// dynamic-vector contract (init/size/get/insert-at-index/delete-at-index)
// is satisfied by gods' arraylist; the binary search and "probe outward
// from the midpoint" walk are ours to drive on top of it, the same way the
// reference engine layers ZyrexTrampolineRegionFindChunk over a plain
// ZyanVector rather than asking the vector to search for it.
type regionDirectory struct {
	regions *arraylist.List
}

func newRegionDirectory() *regionDirectory {
	return &regionDirectory{regions: arraylist.New()}
}

func (d *regionDirectory) size() int {
	return d.regions.Size()
}

func (d *regionDirectory) at(i int) *trampolineRegion {
	v, ok := d.regions.Get(i)
	if !ok {
		return nil
	}
	return v.(*trampolineRegion)
}

// search returns the index of the region whose base equals addr, or the
// index addr would be inserted at to keep the directory sorted.
func (d *regionDirectory) search(addr uintptr) (index int, found bool) {
	n := d.regions.Size()
	i := sort.Search(n, func(i int) bool {
		return d.at(i).base >= addr
	})
	if i < n && d.at(i).base == addr {
		return i, true
	}
	return i, false
}

func (d *regionDirectory) insert(r *trampolineRegion) {
	index, found := d.search(r.base)
	if found {
		return
	}
	d.regions.Insert(index, r)
}

func (d *regionDirectory) remove(r *trampolineRegion) {
	index, found := d.search(r.base)
	if !found {
		return
	}
	d.regions.Remove(index)
}

// findChunk implements spec.md 4.4: binary-search the directory for the
// region nearest the midpoint of [lo, hi], then probe outward alternately
// (one step lower, one step higher) until both directions are exhausted,
// returning the first unused chunk within range of both lo and hi found in
// a candidate region also within range of both.
func (d *regionDirectory) findChunk(lo, hi uint64) (*trampolineRegion, *TrampolineChunk, bool) {
	n := d.regions.Size()
	if n == 0 {
		return nil, nil, false
	}

	mid := lo + (hi-lo)/2
	center, _ := d.search(uintptr(mid))
	if center >= n {
		center = n - 1
	}

	lowIdx, highIdx := center, center+1
	triedLow, triedHigh := false, false

	for !(triedLow && triedHigh) {
		if lowIdx >= 0 {
			region := d.at(lowIdx)
			if chunk, ok := region.findChunkInRange(lo, hi); ok {
				return region, chunk, true
			}
			lowIdx--
		} else {
			triedLow = true
		}

		if highIdx < n {
			region := d.at(highIdx)
			if chunk, ok := region.findChunkInRange(lo, hi); ok {
				return region, chunk, true
			}
			highIdx++
		} else {
			triedHigh = true
		}

		if lowIdx < 0 {
			triedLow = true
		}
		if highIdx >= n {
			triedHigh = true
		}
	}

	return nil, nil, false
}
