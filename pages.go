package jsc

import "tlog.app/go/tlog"

type (
	// PageMap hands out fixed-size linear-memory regions, one per
	// named array/string/intrinsic. Indices are monotonic; freed
	// pages are not reused.
	PageMap struct {
		PageSize int

		HasArray  bool
		HasString bool

		ind  map[string]int
		ord  []string
		next int
	}

	// DataSegment is one initialized byte range destined for the
	// module data section.
	DataSegment struct {
		Offset int
		Bytes  []byte
	}
)

func newPageMap(size int) *PageMap {
	p := &PageMap{
		PageSize: size,
		ind:      map[string]int{},
	}

	// page 0 stays unused so a zero pointer never aliases data
	p.Alloc("null", "")

	return p
}

// Alloc returns the page index for reason, assigning the next free
// index on first use. kind is "array", "string" or "".
func (p *PageMap) Alloc(reason, kind string) int {
	if ind, ok := p.ind[reason]; ok {
		return ind
	}

	ind := p.next
	p.next++

	p.ind[reason] = ind
	p.ord = append(p.ord, reason)

	switch kind {
	case "array":
		p.HasArray = true
	case "string":
		p.HasString = true
	}

	tlog.V("pages").Printw("alloc page", "reason", reason, "kind", kind, "ind", ind)

	return ind
}

// Ptr is the byte pointer of the page allocated for reason.
func (p *PageMap) Ptr(reason, kind string) int {
	return p.Alloc(reason, kind) * p.PageSize
}

// Has reports whether reason owns a live page.
func (p *PageMap) Has(reason string) bool {
	_, ok := p.ind[reason]
	return ok
}

// Free releases the page owned by reason. The index is not reused.
func (p *PageMap) Free(reason string) {
	delete(p.ind, reason)
}

// Len is the number of pages ever allocated.
func (p *PageMap) Len() int { return p.next }

// Reasons lists live page reasons in allocation order.
func (p *PageMap) Reasons() []string {
	r := make([]string, 0, len(p.ind))

	for _, reason := range p.ord {
		if _, ok := p.ind[reason]; ok {
			r = append(r, reason)
		}
	}

	return r
}

func (c *Compilation) emitData(offset int, b []byte) {
	c.Data = append(c.Data, DataSegment{Offset: offset, Bytes: b})
}
