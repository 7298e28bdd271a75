package trace

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/joshuapare/bootalloc/alloc"
	"github.com/joshuapare/bootalloc/region"
)

const (
	// backedCongruence keeps mapped addresses congruent with scenario
	// addresses modulo 1 MiB, so any alignment up to 1 MiB rounds identically.
	backedCongruence = 1 << 20

	// maxBackedExtent bounds the memory a backed replay will map.
	maxBackedExtent = 1 << 30

	// stampKey is mixed into the word written at the start of each allocation.
	stampKey = 0xb0075eed00000000

	// stampStep spreads the step index across the stamp so two allocations
	// handed the same address by different steps never write the same word.
	stampStep = 0x9e3779b97f4a7c15
)

// Options configures a replay.
type Options struct {
	// Logger receives per-step tracing at Debug and mismatches at Warn.
	// It is also handed to allocators the replay constructs. Nil discards.
	Logger *slog.Logger
}

func (o *Options) logger() *slog.Logger {
	if o != nil && o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StepResult records the outcome of one step. Addresses are in scenario space.
type StepResult struct {
	Index     int         `json:"index"`
	ID        string      `json:"id,omitempty"`
	Op        string      `json:"op"`
	Args      string      `json:"args"`
	Addr      *alloc.Addr `json:"addr,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Mismatch  string      `json:"mismatch,omitempty"`
}

// Summary is the allocator's accounting after the last step.
type Summary struct {
	PageSize       uintptr `json:"page_size"`
	TotalBytes     uintptr `json:"total_bytes"`
	UsedBytes      uintptr `json:"used_bytes"`
	AvailableBytes uintptr `json:"available_bytes"`
	TotalPages     int     `json:"total_pages"`
	UsedPages      int     `json:"used_pages"`
	AvailablePages int     `json:"available_pages"`
}

// Report is the result of replaying a scenario.
type Report struct {
	Name        string         `json:"name,omitempty"`
	Backed      bool           `json:"backed"`
	Steps       []StepResult   `json:"steps"`
	Final       Summary        `json:"final"`
	Handoff     *alloc.Handoff `json:"handoff,omitempty"`
	Mismatches  int            `json:"mismatches"`
	Corruptions []string       `json:"corruptions,omitempty"`
}

// Err reports ErrCorruption or ErrExpectation when the replay found problems.
func (r *Report) Err() error {
	switch {
	case len(r.Corruptions) > 0:
		return fmt.Errorf("%w: %d allocation(s)", ErrCorruption, len(r.Corruptions))
	case r.Mismatches > 0:
		return fmt.Errorf("%w: %d step(s)", ErrExpectation, r.Mismatches)
	}
	return nil
}

type handoffer interface {
	Handoff() (alloc.Handoff, error)
}

type checker interface {
	Check() error
}

// stampRec is a live allocation tracked by a backed replay.
type stampRec struct {
	size    uintptr
	step    int
	word    uint64
	stamped bool
}

// outcome is what an id resolves to for later dealloc steps.
type outcome struct {
	addr   alloc.Addr
	layout alloc.Layout
	pages  int
}

type replayer struct {
	a      alloc.Allocator
	mem    *region.Region
	rebase alloc.Addr
	log    *slog.Logger

	results map[string]outcome
	// byteStamps and pageStamps hold live allocations keyed by real address.
	byteStamps map[alloc.Addr]stampRec
	pageStamps map[alloc.Addr]stampRec
	overlaps   []string
}

// Replay initializes a with the scenario's span and runs every step.
// The returned error is non-nil when initialization fails or any step
// missed its expectation; the report is returned whenever steps ran.
func Replay(a alloc.Allocator, sc *Scenario, opts *Options) (*Report, error) {
	rp := &replayer{a: a, log: opts.logger()}
	return rp.run(sc)
}

// ReplayEarly runs the scenario against a fresh EarlyAllocator using the
// scenario's page size.
func ReplayEarly(sc *Scenario, opts *Options) (*Report, error) {
	ea, err := alloc.NewEarly(uintptr(sc.PageSize), &alloc.Options{Logger: opts.logger()})
	if err != nil {
		return nil, err
	}
	return Replay(ea, sc, opts)
}

// ReplayBacked runs the scenario against an EarlyAllocator managing real
// mapped memory. Every allocation is stamped on success, checked against the
// allocations still live, and all live stamps are verified after the last step.
func ReplayBacked(sc *Scenario, opts *Options) (*Report, error) {
	rp, err := newBackedReplayer(sc, opts)
	if err != nil {
		return nil, err
	}
	defer rp.mem.Close()
	return rp.run(sc)
}

// newBackedReplayer maps memory covering the scenario's extent and returns a
// replayer whose allocator manages it. The caller closes rp.mem.
func newBackedReplayer(sc *Scenario, opts *Options) (*replayer, error) {
	lo, hi := sc.extent()
	if hi-lo > maxBackedExtent {
		return nil, fmt.Errorf("%w: extent %#x exceeds backed replay limit %#x",
			ErrInvalidScenario, hi-lo, maxBackedExtent)
	}

	ea, err := alloc.NewEarly(uintptr(sc.PageSize), &alloc.Options{Logger: opts.logger()})
	if err != nil {
		return nil, err
	}

	mem, err := region.Map(uintptr(hi-lo) + backedCongruence)
	if err != nil {
		return nil, err
	}

	base := mem.Base()
	realLo := base + (alloc.Addr(lo)-base)&(backedCongruence-1)
	return &replayer{
		a:          ea,
		mem:        mem,
		rebase:     realLo - alloc.Addr(lo),
		log:        opts.logger(),
		byteStamps: make(map[alloc.Addr]stampRec),
		pageStamps: make(map[alloc.Addr]stampRec),
	}, nil
}

func (rp *replayer) real(addr uint64) alloc.Addr {
	return alloc.Addr(addr) + rp.rebase
}

func (rp *replayer) scenario(addr alloc.Addr) alloc.Addr {
	return addr - rp.rebase
}

func (rp *replayer) run(sc *Scenario) (*Report, error) {
	if err := rp.a.Init(rp.real(sc.Start), uintptr(sc.Size)); err != nil {
		return nil, fmt.Errorf("trace: init: %w", err)
	}
	rp.results = make(map[string]outcome)

	rep := &Report{Name: sc.Name, Backed: rp.mem != nil}
	for i := range sc.Steps {
		res := rp.step(i, &sc.Steps[i])
		if res.Mismatch != "" {
			rep.Mismatches++
			rp.log.Warn("step mismatch", "index", i, "op", res.Op, "args", res.Args, "mismatch", res.Mismatch)
		}
		rep.Steps = append(rep.Steps, res)
	}

	rep.Final = Summary{
		PageSize:       rp.a.PageSize(),
		TotalBytes:     rp.a.TotalBytes(),
		UsedBytes:      rp.a.UsedBytes(),
		AvailableBytes: rp.a.AvailableBytes(),
		TotalPages:     rp.a.TotalPages(),
		UsedPages:      rp.a.UsedPages(),
		AvailablePages: rp.a.AvailablePages(),
	}
	if h, ok := rp.a.(handoffer); ok {
		if ho, err := h.Handoff(); err == nil {
			ho.Bytes.Start = rp.scenario(ho.Bytes.Start)
			ho.Free.Start = rp.scenario(ho.Free.Start)
			ho.Pages.Start = rp.scenario(ho.Pages.Start)
			rep.Handoff = &ho
		}
	}
	rep.Corruptions = rp.verifyStamps()

	return rep, rep.Err()
}

func (rp *replayer) step(i int, st *Step) StepResult {
	res := StepResult{Index: i, ID: st.ID, Op: st.Op()}

	var (
		addr    alloc.Addr
		hasAddr bool
		err     error
	)
	switch {
	case st.Init != nil:
		res.Args = fmt.Sprintf("start=%#x size=%#x", st.Init.Start, st.Init.Size)
		err = rp.a.Init(rp.real(st.Init.Start), uintptr(st.Init.Size))

	case st.AddMemory != nil:
		res.Args = fmt.Sprintf("start=%#x size=%#x", st.AddMemory.Start, st.AddMemory.Size)
		err = rp.a.AddMemory(rp.real(st.AddMemory.Start), uintptr(st.AddMemory.Size))

	case st.Alloc != nil:
		l := alloc.Layout{Size: uintptr(st.Alloc.Size), Align: uintptr(st.Alloc.Align)}
		res.Args = fmt.Sprintf("size=%#x align=%#x", l.Size, l.Align)
		addr, err = rp.a.Alloc(l)
		if err == nil {
			hasAddr = true
			rp.remember(st.ID, outcome{addr: addr, layout: l})
			rp.stamp("bytes", rp.byteStamps, i, addr, l.Size)
		}

	case st.Dealloc != nil:
		p, l, ok := rp.resolveDealloc(st.Dealloc)
		res.Args = fmt.Sprintf("addr=%s size=%#x align=%#x", rp.scenario(p), l.Size, l.Align)
		if !ok {
			res.Mismatch = fmt.Sprintf("ref %q produced no address", st.Dealloc.Ref)
			return res
		}
		err = rp.a.Dealloc(p, l)
		if err == nil && rp.byteStamps != nil {
			delete(rp.byteStamps, p)
			if rp.a.UsedBytes() == 0 {
				clear(rp.byteStamps)
			}
		}

	case st.AllocPages != nil:
		res.Args = fmt.Sprintf("pages=%d align=%#x", st.AllocPages.Pages, st.AllocPages.Align)
		addr, err = rp.a.AllocPages(st.AllocPages.Pages, uintptr(st.AllocPages.Align))
		if err == nil {
			hasAddr = true
			rp.remember(st.ID, outcome{addr: addr, pages: st.AllocPages.Pages})
			ps := rp.a.PageSize()
			for n := range st.AllocPages.Pages {
				rp.stamp("page", rp.pageStamps, i, addr+alloc.Addr(uintptr(n)*ps), ps)
			}
		}

	case st.DeallocPages != nil:
		p, n, ok := rp.resolveDeallocPages(st.DeallocPages)
		res.Args = fmt.Sprintf("addr=%s pages=%d", rp.scenario(p), n)
		if !ok {
			res.Mismatch = fmt.Sprintf("ref %q produced no address", st.DeallocPages.Ref)
			return res
		}
		rp.a.DeallocPages(p, n)
	}

	if hasAddr {
		s := rp.scenario(addr)
		res.Addr = &s
	}
	if err != nil {
		res.Error = err.Error()
		res.ErrorKind = ErrorName(err)
	}
	res.Mismatch = rp.compare(st.Expect, res)
	if c, ok := rp.a.(checker); ok && res.Mismatch == "" {
		if cerr := c.Check(); cerr != nil {
			res.Mismatch = "invariant: " + cerr.Error()
		}
	}

	rp.log.Debug("step", "index", i, "op", res.Op, "args", res.Args, "addr", res.Addr, "error_kind", res.ErrorKind)
	return res
}

func (rp *replayer) compare(exp *Expect, res StepResult) string {
	if exp == nil {
		return ""
	}
	if exp.Error != "" {
		if res.ErrorKind != exp.Error {
			if res.ErrorKind == "" {
				return fmt.Sprintf("expected error %s, got success", exp.Error)
			}
			return fmt.Sprintf("expected error %s, got %s", exp.Error, res.ErrorKind)
		}
		return ""
	}
	if res.Error != "" {
		return fmt.Sprintf("expected success, got %s", res.Error)
	}
	if exp.Addr != nil {
		if res.Addr == nil {
			return fmt.Sprintf("expected addr %#x, step produced no address", *exp.Addr)
		}
		if *res.Addr != alloc.Addr(*exp.Addr) {
			return fmt.Sprintf("expected addr %#x, got %s", *exp.Addr, *res.Addr)
		}
	}
	return ""
}

func (rp *replayer) remember(id string, o outcome) {
	if id != "" {
		rp.results[id] = o
	}
}

func (rp *replayer) resolveDealloc(op *DeallocOp) (alloc.Addr, alloc.Layout, bool) {
	if op.Ref == "" {
		return rp.real(op.Addr), alloc.Layout{Size: uintptr(op.Size), Align: uintptr(op.Align)}, true
	}
	o, ok := rp.results[op.Ref]
	return o.addr, o.layout, ok
}

func (rp *replayer) resolveDeallocPages(op *DeallocPagesOp) (alloc.Addr, int, bool) {
	if op.Ref == "" {
		return rp.real(op.Addr), op.Pages, true
	}
	o, ok := rp.results[op.Ref]
	return o.addr, o.pages, ok
}

// stamp records a new allocation of the given kind when memory is backed.
// An allocation overlapping one that is still live is reported right away,
// and a word derived from addr and step is written at addr when it fits.
func (rp *replayer) stamp(kind string, stamps map[alloc.Addr]stampRec, step int, addr alloc.Addr, size uintptr) {
	if rp.mem == nil || size == 0 {
		return
	}
	rp.checkOverlap(kind, step, alloc.Span{Start: addr, Size: size})

	rec := stampRec{size: size, step: step}
	if size >= 8 {
		rec.word = uint64(rp.scenario(addr)) ^ stampKey ^ uint64(step+1)*stampStep
		if err := rp.mem.WriteU64(addr, rec.word); err != nil {
			rp.log.Warn("stamp failed", "addr", rp.scenario(addr), "err", err)
		} else {
			rec.stamped = true
		}
	}
	stamps[addr] = rec
}

func (rp *replayer) checkOverlap(kind string, step int, s alloc.Span) {
	check := func(liveKind string, stamps map[alloc.Addr]stampRec) {
		for addr, rec := range stamps {
			if !s.Overlaps(alloc.Span{Start: addr, Size: rec.size}) {
				continue
			}
			msg := fmt.Sprintf("%s at %s (step %d) overlaps live %s at %s (step %d)",
				kind, rp.scenario(s.Start), step, liveKind, rp.scenario(addr), rec.step)
			rp.log.Warn("allocation overlap", "detail", msg)
			rp.overlaps = append(rp.overlaps, msg)
		}
	}
	check("bytes", rp.byteStamps)
	check("page", rp.pageStamps)
}

func (rp *replayer) verifyStamps() []string {
	bad := slices.Clone(rp.overlaps)
	check := func(kind string, stamps map[alloc.Addr]stampRec) {
		for addr, rec := range stamps {
			if !rec.stamped {
				continue
			}
			got, err := rp.mem.ReadU64(addr)
			if err != nil || got != rec.word {
				bad = append(bad, fmt.Sprintf("%s at %s (step %d): got %#x want %#x",
					kind, rp.scenario(addr), rec.step, got, rec.word))
			}
		}
	}
	if rp.mem != nil {
		check("bytes", rp.byteStamps)
		check("page", rp.pageStamps)
	}
	slices.Sort(bad)
	return bad
}
