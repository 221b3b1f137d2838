package storage

import (
	"fmt"
	"sync"

	"ariesdb/pkg/primitives"
)

// MemPage is an in-memory stand-in for a disk page, sized to PageSize.
type MemPage struct {
	mu    sync.Mutex
	part  primitives.PartNum
	num   primitives.PageNum
	lsn   primitives.LSN
	dirty bool
	data  [PageSize]byte
}

func newMemPage(part primitives.PartNum, num primitives.PageNum) *MemPage {
	return &MemPage{part: part, num: num}
}

// Dirty reports whether the page has been written since it was last
// cleared via clearDirty (what FlushPage/FlushAll do here, standing in
// for a real buffer pool marking a page clean once its image is durable
// on disk).
func (p *MemPage) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}

func (p *MemPage) clearDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = false
}

func (p *MemPage) Num() primitives.PageNum { return p.num }

func (p *MemPage) PageLSN() primitives.LSN {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lsn
}

func (p *MemPage) SetPageLSN(lsn primitives.LSN) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lsn = lsn
}

func (p *MemPage) Read(offset, length int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, length)
	copy(out, p.data[offset:offset+length])
	return out
}

func (p *MemPage) Write(offset int, data []byte, lsn primitives.LSN) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copy(p.data[offset:], data)
	p.lsn = lsn
	p.dirty = true
}

// MemBufferManager is an in-memory BufferManager: every page lives in
// a map for the lifetime of the process. It never evicts, matching the
// "minimal stand-in" scope of spec §6 — a real implementation would be
// the pack's clock-replacement BufferPoolManager.
type MemBufferManager struct {
	mu    sync.Mutex
	pages map[string]*MemPage
}

func NewMemBufferManager() *MemBufferManager {
	return &MemBufferManager{pages: make(map[string]*MemPage)}
}

func pageKey(part primitives.PartNum, page primitives.PageNum) string {
	return fmt.Sprintf("%d/%d", part, page)
}

func (b *MemBufferManager) FetchPage(part primitives.PartNum, page primitives.PageNum) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := pageKey(part, page)
	p, ok := b.pages[key]
	if !ok {
		p = newMemPage(part, page)
		b.pages[key] = p
	}
	return p, nil
}

// FlushPage clears the page's dirty bit: MemBufferManager has no
// backing disk to flush to, but the dirty bit still needs to go away
// once a page's image is considered durable, the way pageFlushHook
// would mark a real buffer pool's page clean after eviction.
func (b *MemBufferManager) FlushPage(part primitives.PartNum, page primitives.PageNum) error {
	b.mu.Lock()
	p, ok := b.pages[pageKey(part, page)]
	b.mu.Unlock()
	if ok {
		p.clearDirty()
	}
	return nil
}

func (b *MemBufferManager) FlushAll() error {
	b.mu.Lock()
	pages := make([]*MemPage, 0, len(b.pages))
	for _, p := range b.pages {
		pages = append(pages, p)
	}
	b.mu.Unlock()
	for _, p := range pages {
		p.clearDirty()
	}
	return nil
}

// IterPageNums calls fn once per resident page with its current dirty
// bit, for redo-complete dirty page table pruning (spec §6).
func (b *MemBufferManager) IterPageNums(fn func(part primitives.PartNum, page primitives.PageNum, dirty bool)) {
	b.mu.Lock()
	pages := make([]*MemPage, 0, len(b.pages))
	for _, p := range b.pages {
		pages = append(pages, p)
	}
	b.mu.Unlock()
	for _, p := range pages {
		fn(p.part, p.num, p.Dirty())
	}
}

// MemDiskManager is an in-memory DiskSpaceManager tracking partition
// and page existence with monotonically increasing numbers, grounded
// on the pack's DiskManager.AllocatePage counter style.
type MemDiskManager struct {
	mu         sync.Mutex
	nextPart   primitives.PartNum
	nextPage   map[primitives.PartNum]primitives.PageNum
	parts      map[primitives.PartNum]bool
	pages      map[primitives.PartNum]map[primitives.PageNum]bool
}

func NewMemDiskManager() *MemDiskManager {
	return &MemDiskManager{
		nextPart: primitives.LogPartNum + 1,
		nextPage: make(map[primitives.PartNum]primitives.PageNum),
		parts:    make(map[primitives.PartNum]bool),
		pages:    make(map[primitives.PartNum]map[primitives.PageNum]bool),
	}
}

func (d *MemDiskManager) AllocPart() primitives.PartNum {
	d.mu.Lock()
	defer d.mu.Unlock()
	part := d.nextPart
	d.nextPart++
	d.parts[part] = true
	d.pages[part] = make(map[primitives.PageNum]bool)
	return part
}

func (d *MemDiskManager) FreePart(part primitives.PartNum) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.parts, part)
	delete(d.pages, part)
}

func (d *MemDiskManager) AllocPage(part primitives.PartNum) primitives.PageNum {
	d.mu.Lock()
	defer d.mu.Unlock()
	page := d.nextPage[part]
	d.nextPage[part] = page + 1
	if d.pages[part] == nil {
		d.pages[part] = make(map[primitives.PageNum]bool)
	}
	d.pages[part][page] = true
	return page
}

func (d *MemDiskManager) FreePage(part primitives.PartNum, page primitives.PageNum) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pages[part], page)
}

func (d *MemDiskManager) MarkPartAllocated(part primitives.PartNum) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parts[part] = true
	if d.pages[part] == nil {
		d.pages[part] = make(map[primitives.PageNum]bool)
	}
	if part >= d.nextPart {
		d.nextPart = part + 1
	}
}

func (d *MemDiskManager) MarkPageAllocated(part primitives.PartNum, page primitives.PageNum) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pages[part] == nil {
		d.pages[part] = make(map[primitives.PageNum]bool)
	}
	d.pages[part][page] = true
	if page >= d.nextPage[part] {
		d.nextPage[part] = page + 1
	}
}

func (d *MemDiskManager) PartExists(part primitives.PartNum) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parts[part]
}

func (d *MemDiskManager) PageExists(part primitives.PartNum, page primitives.PageNum) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pages[part][page]
}
