package rail

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arcwave/benchlink/internal/pool"
	"github.com/arcwave/benchlink/logger"
)

// watchDebounce coalesces the event bursts editors produce when they
// rewrite the table file.
const watchDebounce = 100 * time.Millisecond

// Store owns the persisted rail table. The table starts at factory
// defaults; Load pulls the file in, Update persists a learned cell, and an
// optional watcher reloads the table when the file changes on disk.
//
// Rows are "x, y, dir, ok, next" in decimal: cell 8y+dir of rail x holds
// 128 + 64*ok + 8*dir + next. Only non-default cells are written back, and
// the dir field is taken from the cell's position, so direction bits that
// disagree with the position are normalized on the next load.
type Store struct {
	path   string
	logger logger.Logger

	mu    sync.RWMutex
	table *Table

	watching atomic.Bool
	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewStore wraps the table file at path. Pass a nil logger to use the
// package default.
func NewStore(path string, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{
		path:   path,
		logger: log,
		table:  NewTable(),
	}
}

// Path returns the table file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the table file, replacing the in-memory table. A missing file
// resets to factory defaults without error; malformed or out-of-range rows
// are skipped.
func (s *Store) Load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("rail table file missing, using defaults", "path", s.path)
			s.swap(NewTable())
			return nil
		}
		return fmt.Errorf("rail: open table %s: %w", s.path, err)
	}
	defer f.Close()

	table, skipped, err := readTable(f)
	if err != nil {
		return fmt.Errorf("rail: parse table %s: %w", s.path, err)
	}
	if skipped > 0 {
		s.logger.Warn("skipped invalid rail table rows", "path", s.path, "rows", skipped)
	}
	s.swap(table)
	s.logger.Debug("rail table loaded", "path", s.path)
	return nil
}

// Save writes all non-default cells back to the table file.
func (s *Store) Save() error {
	s.mu.RLock()
	table := s.table.Clone()
	s.mu.RUnlock()

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("rail: create table %s: %w", s.path, err)
	}
	if err := writeTable(f, table); err != nil {
		f.Close()
		return fmt.Errorf("rail: write table %s: %w", s.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("rail: close table %s: %w", s.path, err)
	}
	return nil
}

// Refresh reloads the table from disk, unless a watcher is already keeping
// it current.
func (s *Store) Refresh() error {
	if s.watching.Load() {
		return nil
	}
	return s.Load()
}

// Update stores one learned cell and persists the whole table.
func (s *Store) Update(rail, cell int, v uint8) error {
	s.mu.Lock()
	s.table.SetCell(rail, cell, v)
	s.mu.Unlock()
	return s.Save()
}

// Cell returns the current value of cell j on rail i.
func (s *Store) Cell(rail, cell int) uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Cell(rail, cell)
}

// BlockWords returns the two payload words for one rail block.
func (s *Store) BlockWords(rail, block int) (uint32, uint32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.BlockWords(rail, block)
}

// Snapshot returns an independent copy of the current table.
func (s *Store) Snapshot() *Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Clone()
}

func (s *Store) swap(t *Table) {
	s.mu.Lock()
	s.table = t
	s.mu.Unlock()
}

// Watch reloads the table whenever the file changes on disk. The watch is
// on the parent directory so editors that replace the file are still seen.
// While a watch is active, Refresh becomes a no-op.
func (s *Store) Watch() error {
	if s.watching.Load() {
		return errors.New("rail: store is already watching")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rail: start watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("rail: watch %s: %w", dir, err)
	}
	s.watcher = w
	s.done = make(chan struct{})
	s.watching.Store(true)
	s.wg.Add(1)
	go s.watchLoop()
	s.logger.Info("watching rail table", "path", s.path)
	return nil
}

func (s *Store) watchLoop() {
	defer s.wg.Done()
	var (
		debounce  *time.Timer
		debounceC <-chan time.Time
	)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			if debounce == nil {
				debounce = pool.GetTimer(watchDebounce)
				debounceC = debounce.C
			} else {
				debounce.Reset(watchDebounce)
			}
		case <-debounceC:
			pool.PutTimer(debounce)
			debounce, debounceC = nil, nil
			if err := s.Load(); err != nil {
				s.logger.Warn("rail table reload failed", "error", err)
			} else {
				s.logger.Info("rail table reloaded", "path", s.path)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("rail table watcher error", "error", err)
		case <-s.done:
			if debounce != nil {
				pool.PutTimer(debounce)
			}
			return
		}
	}
}

// Close stops the watcher if one is running.
func (s *Store) Close() error {
	if !s.watching.CompareAndSwap(true, false) {
		return nil
	}
	close(s.done)
	err := s.watcher.Close()
	s.wg.Wait()
	return err
}

func readTable(r io.Reader) (*Table, int, error) {
	table := NewTable()
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = 5
	skipped := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			skipped++
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		x, y, dir, ok, next, convErr := parseRow(rec)
		if convErr != nil {
			skipped++
			continue
		}
		table.SetCell(x, y*CellsPerBlock+dir, EncodeEntry(ok == 1, uint8(dir), uint8(next)))
	}
	return table, skipped, nil
}

func parseRow(rec []string) (x, y, dir, ok, next int, err error) {
	fields := [5]*int{&x, &y, &dir, &ok, &next}
	for i, dst := range fields {
		*dst, err = strconv.Atoi(rec[i])
		if err != nil {
			return
		}
	}
	switch {
	case x < 0 || x >= NumRails,
		y < 0 || y >= BlocksPerRail,
		dir < 0 || dir >= CellsPerBlock,
		ok < 0 || ok > 1,
		next < 0 || next >= CellsPerBlock:
		err = fmt.Errorf("rail: row out of range: %v", rec)
	}
	return
}

func writeTable(w io.Writer, t *Table) error {
	for i := 0; i < NumRails; i++ {
		for j := 0; j < CellsPerRail; j++ {
			v := t.Cell(i, j)
			if v == DefaultCell(j) {
				continue
			}
			_, err := fmt.Fprintf(w, "%d, %d, %d, %d, %d\n",
				i, j/CellsPerBlock, j%CellsPerBlock, (v>>6)&1, v&7)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
