package settlement

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/staff"
	"github.com/shopspring/decimal"
)

// memStore backs every repository used by the service. Transactions are
// serialized and roll back by restoring a snapshot.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	staff      map[string]staff.Staff
	attendance map[string][]attendance.Attendance
	ledgers    map[string]settlement.LedgerBalances
	records    []settlement.PaymentRecord
	events     []settlement.PaymentRecord
	seq        int64

	// failure injection
	updateConflicts int
	appendErr       error
	eventErr        error
	staffErr        error
	updateCalls     int

	// afterListRecords runs once ListAllByStaff has read the log.
	afterListRecords func()
}

func newMemStore() *memStore {
	return &memStore{
		staff:      map[string]staff.Staff{},
		attendance: map[string][]attendance.Attendance{},
		ledgers:    map[string]settlement.LedgerBalances{},
	}
}

type snapshot struct {
	ledgers map[string]settlement.LedgerBalances
	records []settlement.PaymentRecord
	events  []settlement.PaymentRecord
	seq     int64
}

func (m *memStore) snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledgers := make(map[string]settlement.LedgerBalances, len(m.ledgers))
	for k, v := range m.ledgers {
		ledgers[k] = v
	}
	return snapshot{
		ledgers: ledgers,
		records: append([]settlement.PaymentRecord(nil), m.records...),
		events:  append([]settlement.PaymentRecord(nil), m.events...),
		seq:     m.seq,
	}
}

func (m *memStore) restore(s snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgers = s.ledgers
	m.records = s.records
	m.events = s.events
	m.seq = s.seq
}

func (m *memStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(ctx); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// WithinSnapshot holds the transaction lock so no settlement commits while fn reads.
func (m *memStore) WithinSnapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx)
}

func (m *memStore) addStaff(st staff.Staff) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[st.ID] = st
}

func (m *memStore) addAttendance(staffID string, date time.Time, status attendance.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attendance[staffID] = append(m.attendance[staffID], attendance.Attendance{StaffID: staffID, Date: date, Status: status})
}

func (m *memStore) setLedger(staffID string, advance, carry string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.ledgers[staffID]
	b.StaffID = staffID
	b.Advance = decimal.RequireFromString(advance)
	b.CarryForward = decimal.RequireFromString(carry)
	m.ledgers[staffID] = b
}

func (m *memStore) ledger(staffID string) settlement.LedgerBalances {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledgers[staffID]
}

func (m *memStore) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// staff.StaffRepository

type staffRepo struct{ *memStore }

func (r staffRepo) GetByID(_ context.Context, id string) (staff.Staff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staffErr != nil {
		return staff.Staff{}, r.staffErr
	}
	st, ok := r.staff[id]
	if !ok {
		return staff.Staff{}, staff.ErrStaffNotFound
	}
	return st, nil
}

// attendance.AttendanceRepository

type attendanceRepo struct{ *memStore }

func (r attendanceRepo) CountByStatus(_ context.Context, staffID string, from, to time.Time, statuses []attendance.Status) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, a := range r.attendance[staffID] {
		if a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		for _, s := range statuses {
			if a.Status == s {
				count++
				break
			}
		}
	}
	return count, nil
}

func (r attendanceRepo) ListByStaffAndRange(_ context.Context, staffID string, from, to time.Time) ([]attendance.Attendance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []attendance.Attendance
	for _, a := range r.attendance[staffID] {
		if !a.Date.Before(from) && !a.Date.After(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

// settlement.LedgerRepository

type ledgerRepo struct{ *memStore }

func (r ledgerRepo) Ensure(_ context.Context, staffID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ledgers[staffID]; !ok {
		r.ledgers[staffID] = settlement.LedgerBalances{StaffID: staffID, Advance: decimal.Zero, CarryForward: decimal.Zero}
	}
	return nil
}

func (r ledgerRepo) GetForUpdate(ctx context.Context, staffID string) (settlement.LedgerBalances, error) {
	return r.Get(ctx, staffID)
}

func (r ledgerRepo) Get(_ context.Context, staffID string) (settlement.LedgerBalances, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.ledgers[staffID]
	if !ok {
		return settlement.LedgerBalances{StaffID: staffID, Advance: decimal.Zero, CarryForward: decimal.Zero}, nil
	}
	return b, nil
}

func (r ledgerRepo) Update(_ context.Context, b settlement.LedgerBalances) (settlement.LedgerBalances, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	if r.updateConflicts > 0 {
		r.updateConflicts--
		return settlement.LedgerBalances{}, settlement.ErrConcurrencyConflict
	}
	current := r.ledgers[b.StaffID]
	if current.Version != b.Version {
		return settlement.LedgerBalances{}, settlement.ErrConcurrencyConflict
	}
	if err := b.Validate(); err != nil {
		return settlement.LedgerBalances{}, err
	}
	b.Version++
	b.UpdatedAt = time.Now()
	r.ledgers[b.StaffID] = b
	return b, nil
}

func (r ledgerRepo) ListStaffIDs(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.ledgers))
	for id := range r.ledgers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// settlement.PaymentRecordRepository

type recordRepo struct{ *memStore }

func (r recordRepo) Append(_ context.Context, rec settlement.PaymentRecord) (settlement.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return settlement.PaymentRecord{}, r.appendErr
	}
	for _, existing := range r.records {
		if existing.IdempotencyKey == rec.IdempotencyKey {
			return settlement.PaymentRecord{}, settlement.ErrDuplicateIdempotencyKey
		}
		if rec.Type == settlement.TypeSalary && existing.Type == settlement.TypeSalary &&
			existing.StaffID == rec.StaffID &&
			*existing.PeriodMonth == *rec.PeriodMonth && *existing.PeriodYear == *rec.PeriodYear {
			return settlement.PaymentRecord{}, settlement.ErrPeriodAlreadySettled
		}
	}
	r.seq++
	rec.Sequence = r.seq
	rec.CreatedAt = time.Now()
	r.records = append(r.records, rec)
	return rec, nil
}

func (r recordRepo) GetByIdempotencyKey(_ context.Context, key string) (settlement.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.IdempotencyKey == key {
			return rec, nil
		}
	}
	return settlement.PaymentRecord{}, settlement.ErrPaymentRecordNotFound
}

func (r recordRepo) ListByStaff(_ context.Context, staffID string, filter settlement.PaymentRecordFilter) ([]settlement.PaymentRecord, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []settlement.PaymentRecord
	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if rec.StaffID != staffID {
			continue
		}
		if filter.Type != nil && rec.Type != *filter.Type {
			continue
		}
		matched = append(matched, rec)
	}
	total := int64(len(matched))
	start := filter.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r recordRepo) ListAllByStaff(_ context.Context, staffID string) ([]settlement.PaymentRecord, error) {
	r.mu.Lock()
	var out []settlement.PaymentRecord
	for _, rec := range r.records {
		if rec.StaffID == staffID {
			out = append(out, rec)
		}
	}
	hook := r.afterListRecords
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

// settlement.EventRecorder

type eventRecorder struct{ *memStore }

func (r eventRecorder) RecordSettlement(_ context.Context, rec settlement.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.eventErr != nil {
		return r.eventErr
	}
	r.events = append(r.events, rec)
	return nil
}

// settlement.InFlightGuard

type keyGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func (g *keyGuard) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held == nil {
		g.held = map[string]bool{}
	}
	if g.held[key] {
		return nil, settlement.ErrSettlementInProgress
	}
	g.held[key] = true
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.held, key)
	}, nil
}

var errStorageDown = errors.New("connection reset by peer")
