// Package memtrack accounts for device memory allocations: live and peak
// byte counts, totals per caller-supplied tag, and reports.
package memtrack

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/dustin/go-humanize"
	vk "github.com/vulkan-go/vulkan"
)

// Allocation describes one live allocation.
type Allocation struct {
	Size            vk.DeviceSize
	MemoryTypeIndex uint32
	Tag             string
}

// Stats is a consistent snapshot of a Tracker.
type Stats struct {
	Total vk.DeviceSize
	Peak  vk.DeviceSize
	Count int
	ByTag map[string]vk.DeviceSize
}

// Tracker records allocations keyed by their device memory handle.
// Tracker is safe for concurrent use. The zero value is not usable; call New.
type Tracker struct {
	mu          sync.Mutex
	allocations map[vk.DeviceMemory]Allocation
	byTag       map[string]vk.DeviceSize
	total       vk.DeviceSize
	peak        vk.DeviceSize
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{
		allocations: make(map[vk.DeviceMemory]Allocation),
		byTag:       make(map[string]vk.DeviceSize),
	}
}

// RecordAllocation adds mem. Recording a handle that is already live
// replaces the previous record.
func (t *Tracker) RecordAllocation(mem vk.DeviceMemory, size vk.DeviceSize, memoryTypeIndex uint32, tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.allocations[mem]; ok {
		t.removeLocked(old)
	}
	t.allocations[mem] = Allocation{Size: size, MemoryTypeIndex: memoryTypeIndex, Tag: tag}
	t.total += size
	if t.total > t.peak {
		t.peak = t.total
	}
	if tag != "" {
		t.byTag[tag] += size
	}
}

// RecordFree removes mem; unknown handles are ignored.
func (t *Tracker) RecordFree(mem vk.DeviceMemory) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a, ok := t.allocations[mem]; ok {
		t.removeLocked(a)
		delete(t.allocations, mem)
	}
}

func (t *Tracker) removeLocked(a Allocation) {
	t.total -= a.Size
	if a.Tag != "" {
		t.byTag[a.Tag] -= a.Size
	}
}

// Total is the number of bytes currently allocated.
func (t *Tracker) Total() vk.DeviceSize {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Peak is the highest Total seen since creation or the last Reset.
func (t *Tracker) Peak() vk.DeviceSize {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}

// ByTag is the number of live bytes recorded under tag.
func (t *Tracker) ByTag(tag string) vk.DeviceSize {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byTag[tag]
}

// Count is the number of live allocations.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.allocations)
}

// Live reports whether mem is allocated and not yet freed.
func (t *Tracker) Live(mem vk.DeviceMemory) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.allocations[mem]
	return ok
}

// Lookup returns the record of a live allocation.
func (t *Tracker) Lookup(mem vk.DeviceMemory) (Allocation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.allocations[mem]
	return a, ok
}

// Reset forgets every allocation and clears the peak.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allocations = make(map[vk.DeviceMemory]Allocation)
	t.byTag = make(map[string]vk.DeviceSize)
	t.total = 0
	t.peak = 0
}

// Snapshot copies the counters under one lock.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{
		Total: t.total,
		Peak:  t.peak,
		Count: len(t.allocations),
		ByTag: make(map[string]vk.DeviceSize, len(t.byTag)),
	}
	for tag, size := range t.byTag {
		s.ByTag[tag] = size
	}
	return s
}

// Tags lists the tags of s in sorted order.
func (s Stats) Tags() []string {
	tags := make([]string, 0, len(s.ByTag))
	for tag := range s.ByTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// WriteSummary prints a human readable report. Tags with no live bytes are
// left out.
func (t *Tracker) WriteSummary(w io.Writer) error {
	s := t.Snapshot()
	ew := &errWriter{w: w}
	ew.printf("\n=== GPU Memory Summary ===\n")
	ew.printf("Total allocated:  %s\n", humanize.IBytes(uint64(s.Total)))
	ew.printf("Peak allocated:   %s\n", humanize.IBytes(uint64(s.Peak)))
	ew.printf("Allocation count: %d\n", s.Count)
	if len(s.ByTag) > 0 {
		ew.printf("\nBy tag:\n")
		for _, tag := range s.Tags() {
			if size := s.ByTag[tag]; size > 0 {
				ew.printf("  %s: %s\n", tag, humanize.IBytes(uint64(size)))
			}
		}
	}
	ew.printf("==========================\n\n")
	return ew.err
}

// WriteCSV writes the counters, then the per-tag totals, with sizes in bytes
// and mebibytes.
func (t *Tracker) WriteCSV(w io.Writer) error {
	s := t.Snapshot()
	err := csv.NewWriter(w).WriteAll([][]string{
		{"metric", "value_bytes", "value_mb"},
		sizeRow("total_allocated", s.Total),
		sizeRow("peak_allocated", s.Peak),
		{"allocation_count", strconv.Itoa(s.Count), strconv.Itoa(s.Count)},
	})
	if err == nil && len(s.ByTag) > 0 {
		// blank line between the two tables
		if _, err = io.WriteString(w, "\n"); err == nil {
			rows := [][]string{{"tag", "size_bytes", "size_mb"}}
			for _, tag := range s.Tags() {
				rows = append(rows, sizeRow(tag, s.ByTag[tag]))
			}
			err = csv.NewWriter(w).WriteAll(rows)
		}
	}
	if err != nil {
		return fmt.Errorf("memtrack: write csv: %w", err)
	}
	return nil
}

// SaveCSV writes the CSV report to path.
func (t *Tracker) SaveCSV(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("memtrack: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return t.WriteCSV(f)
}

func sizeRow(name string, size vk.DeviceSize) []string {
	return []string{
		name,
		strconv.FormatUint(uint64(size), 10),
		strconv.FormatFloat(float64(size)/(1024*1024), 'f', 2, 64),
	}
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
