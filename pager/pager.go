// Package pager mediates all reads and writes between the B+tree and a
// single backing file. It lazily materializes pages on first access and
// flushes dirty pages back to disk on close.
package pager

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// PageSize is the fixed width of every page, on disk and in memory.
	PageSize = 4096
	// TableMaxPages bounds how many pages a single file may hold in this
	// design; there is no free-page recycling or file shrinking.
	TableMaxPages = 100
)

// ErrOutOfBounds is returned when a page number falls outside [0, TableMaxPages).
var ErrOutOfBounds = errors.New("pager: page number out of bounds")

// ErrCorruptFile is returned when an opened file's length is not a whole
// multiple of PageSize.
var ErrCorruptFile = errors.New("pager: file length is not a multiple of page size")

// ErrEmptySlot is returned when flushing a page slot that was never populated.
var ErrEmptySlot = errors.New("pager: attempted to flush an empty page slot")

// Page is one in-memory page buffer. Dirty tracks whether it must be
// written back on flush.
type Page struct {
	Data  [PageSize]byte
	Dirty bool
}

// Pager owns every in-memory page buffer and the backing file handle. The
// tree and cursor never touch the file directly; all page materialization
// goes through Get.
type Pager struct {
	file       *os.File
	pages      [TableMaxPages]*Page
	pagesCount uint32
	logger     *zap.Logger
}

// Option configures a Pager at Open time.
type Option func(*Pager)

// WithLogger attaches a structured logger for diagnostics. A nil logger
// (the default) disables logging.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pager) {
		if logger == nil {
			logger = zap.NewNop()
		}
		p.logger = logger
	}
}

// Open opens path for read/write, creating it if absent. The file length
// must already be a whole multiple of PageSize.
func Open(path string, opts ...Option) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "pager: open %q", path)
	}

	size, err := fileSize(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if size%PageSize != 0 {
		f.Close()
		return nil, errors.Wrapf(ErrCorruptFile, "file %q has length %d", path, size)
	}

	p := &Pager{
		file:       f,
		pagesCount: uint32(size / PageSize),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger.Debug("pager opened", zap.String("path", path), zap.Uint32("pages_count", p.pagesCount))
	return p, nil
}

func fileSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "pager: stat")
	}
	return fi.Size(), nil
}

// PagesCount reports how many page slots are currently known to exist.
func (p *Pager) PagesCount() uint32 { return p.pagesCount }

// Get returns the page at pageNum, reading it from disk on first access.
// The returned pointer is stable for the lifetime of the Pager.
func (p *Pager) Get(pageNum uint32) (*Page, error) {
	if pageNum >= TableMaxPages {
		return nil, errors.Wrapf(ErrOutOfBounds, "page %d (max %d)", pageNum, TableMaxPages)
	}

	if p.pages[pageNum] == nil {
		pg := &Page{}
		if err := p.loadFromDisk(pageNum, pg); err != nil {
			return nil, err
		}
		p.pages[pageNum] = pg
	}

	if pageNum+1 > p.pagesCount {
		p.pagesCount = pageNum + 1
	}
	return p.pages[pageNum], nil
}

// loadFromDisk seeks to pageNum's offset and reads whatever is there. A
// page wholly or partly past EOF is left zero-filled for the untouched
// tail — this is how a freshly allocated page is "read" the first time.
func (p *Pager) loadFromDisk(pageNum uint32, pg *Page) error {
	off := int64(pageNum) * PageSize
	if _, err := p.file.Seek(off, io.SeekStart); err != nil {
		return errors.Wrapf(err, "pager: seek page %d", pageNum)
	}
	if _, err := io.ReadFull(p.file, pg.Data[:]); err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return errors.Wrapf(err, "pager: read page %d", pageNum)
	}
	return nil
}

// Alloc returns the next page number to be used. It does not grow
// PagesCount itself — the caller must follow up with Get(n) to actually
// materialize the slot.
func (p *Pager) Alloc() (uint32, error) {
	if p.pagesCount >= TableMaxPages {
		return 0, errors.Errorf("pager: no more pages (max %d)", TableMaxPages)
	}
	return p.pagesCount, nil
}

// FlushPage writes one populated, dirty slot back to disk.
func (p *Pager) FlushPage(pageNum uint32) error {
	if pageNum >= TableMaxPages {
		return errors.Wrapf(ErrOutOfBounds, "flush page %d", pageNum)
	}
	pg := p.pages[pageNum]
	if pg == nil {
		return errors.Wrapf(ErrEmptySlot, "page %d", pageNum)
	}
	if !pg.Dirty {
		return nil
	}
	off := int64(pageNum) * PageSize
	if _, err := p.file.Seek(off, io.SeekStart); err != nil {
		return errors.Wrapf(err, "pager: seek page %d for flush", pageNum)
	}
	if _, err := p.file.Write(pg.Data[:]); err != nil {
		return errors.Wrapf(err, "pager: write page %d", pageNum)
	}
	pg.Dirty = false
	return nil
}

// FlushAll writes every populated, dirty page slot below PagesCount back to
// disk, in page-number order, and syncs the file.
func (p *Pager) FlushAll() error {
	for i := uint32(0); i < p.pagesCount; i++ {
		if p.pages[i] == nil {
			continue
		}
		if err := p.FlushPage(i); err != nil {
			return err
		}
	}
	return errors.Wrap(p.file.Sync(), "pager: sync")
}

// Close flushes all dirty pages and closes the backing file. It is the
// only durability guarantee this design makes: a crash before Close leaves
// the file reflecting only what was previously flushed.
func (p *Pager) Close() error {
	if err := p.FlushAll(); err != nil {
		return err
	}
	for i := range p.pages {
		p.pages[i] = nil
	}
	return errors.Wrap(p.file.Close(), "pager: close")
}
