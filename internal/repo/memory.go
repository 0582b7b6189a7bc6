package repo

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"residence/internal/lock"
	"residence/internal/models"
	"residence/internal/schedule"
)

// memory holds every table of the in-memory backend behind one mutex.
type memory struct {
	mu           sync.RWMutex
	users        map[string]*UserRow
	sessions     map[string]memSession
	facilities   map[string]*models.Facility
	households   map[string]*models.Household
	reservations map[string]*models.Reservation
	byFacility   map[string][]string // facility id -> reservation ids
}

type memSession struct {
	userID  string
	expires time.Time
}

// NewMemoryStore returns a Store kept entirely in process memory. Used by
// tests and by STORE_DRIVER=memory.
func NewMemoryStore(locks lock.Locker) *Store {
	if locks == nil {
		locks = lock.NewLocal()
	}
	m := &memory{
		users:        map[string]*UserRow{},
		sessions:     map[string]memSession{},
		facilities:   map[string]*models.Facility{},
		households:   map[string]*models.Household{},
		reservations: map[string]*models.Reservation{},
		byFacility:   map[string][]string{},
	}
	return &Store{
		Users:        memUsers{m},
		Sessions:     memSessions{m},
		Facilities:   memFacilities{m},
		Households:   memHouseholds{m},
		Reservations: &memReservations{m: m, locks: locks},
		Ping:         func(context.Context) error { return nil },
		Close:        func(context.Context) error { return nil },
	}
}

type memUsers struct{ m *memory }

func (r memUsers) Create(_ context.Context, email, name string, passwordHash []byte) (string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range r.m.users {
		if u.Email == email {
			return "", ErrDuplicate
		}
	}
	id := uuid.NewString()
	r.m.users[id] = &UserRow{User: models.User{ID: id, Email: email, Name: name}, PasswordHash: passwordHash}
	return id, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*UserRow, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range r.m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := u.User
	return &cp, nil
}

func (r memUsers) UpsertAdmin(ctx context.Context, email string, passwordHash []byte) error {
	if u, err := r.GetByEmail(ctx, email); err == nil {
		r.m.mu.Lock()
		defer r.m.mu.Unlock()
		stored := r.m.users[u.ID]
		stored.IsAdmin = true
		stored.PasswordHash = passwordHash
		return nil
	}
	id, err := r.Create(ctx, email, "", passwordHash)
	if err != nil {
		return err
	}
	r.m.mu.Lock()
	r.m.users[id].IsAdmin = true
	r.m.mu.Unlock()
	return nil
}

type memSessions struct{ m *memory }

func (r memSessions) Create(_ context.Context, token, userID string, expires time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.sessions[token] = memSession{userID: userID, expires: expires}
	return nil
}

func (r memSessions) Delete(_ context.Context, token string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.sessions, token)
	return nil
}

func (r memSessions) Lookup(_ context.Context, token string) (string, time.Time, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	s, ok := r.m.sessions[token]
	if !ok {
		return "", time.Time{}, ErrNotFound
	}
	return s.userID, s.expires, nil
}

type memFacilities struct{ m *memory }

func cloneFacility(f *models.Facility) *models.Facility {
	cp := *f
	cp.OperatingHours = slices.Clone(f.OperatingHours)
	if f.Capacity != nil {
		c := *f.Capacity
		cp.Capacity = &c
	}
	return &cp
}

func (r memFacilities) Create(_ context.Context, f *models.Facility) (string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if _, dup := r.m.facilities[f.ID]; dup {
		return "", ErrDuplicate
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	r.m.facilities[f.ID] = cloneFacility(f)
	return f.ID, nil
}

func (r memFacilities) Get(_ context.Context, id string) (*models.Facility, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	f, ok := r.m.facilities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneFacility(f), nil
}

func (r memFacilities) List(_ context.Context, buildingID string) ([]models.Facility, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []models.Facility
	for _, f := range r.m.facilities {
		if buildingID == "" || f.BuildingID == buildingID {
			out = append(out, *cloneFacility(f))
		}
	}
	slices.SortFunc(out, func(a, b models.Facility) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (r memFacilities) SetOperatingHours(_ context.Context, id string, hours []models.DayHours) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	f, ok := r.m.facilities[id]
	if !ok {
		return ErrNotFound
	}
	f.OperatingHours = slices.Clone(hours)
	return nil
}

type memHouseholds struct{ m *memory }

func cloneHousehold(h *models.Household) *models.Household {
	cp := *h
	cp.MemberIDs = slices.Clone(h.MemberIDs)
	return &cp
}

func (r memHouseholds) Create(_ context.Context, h *models.Household) (string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if _, dup := r.m.households[h.ID]; dup {
		return "", ErrDuplicate
	}
	for _, uid := range h.MemberIDs {
		if _, ok := r.m.users[uid]; !ok {
			return "", ErrMissingReference
		}
	}
	r.m.households[h.ID] = cloneHousehold(h)
	return h.ID, nil
}

func (r memHouseholds) Get(_ context.Context, id string) (*models.Household, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	h, ok := r.m.households[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneHousehold(h), nil
}

func (r memHouseholds) GetMany(_ context.Context, ids []string) (map[string]*models.Household, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make(map[string]*models.Household, len(ids))
	for _, id := range ids {
		if h, ok := r.m.households[id]; ok {
			out[id] = cloneHousehold(h)
		}
	}
	return out, nil
}

func (r memHouseholds) AddMember(_ context.Context, householdID, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	h, ok := r.m.households[householdID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := r.m.users[userID]; !ok {
		return ErrMissingReference
	}
	if !slices.Contains(h.MemberIDs, userID) {
		h.MemberIDs = append(h.MemberIDs, userID)
	}
	return nil
}

func (r memHouseholds) IsMember(_ context.Context, userID, householdID string) (bool, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	h, ok := r.m.households[householdID]
	return ok && slices.Contains(h.MemberIDs, userID), nil
}

func (r memHouseholds) ListMembers(_ context.Context, householdID string) ([]string, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	h, ok := r.m.households[householdID]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(h.MemberIDs), nil
}

type memReservations struct {
	m     *memory
	locks lock.Locker
}

func (r *memReservations) FindOverlapping(_ context.Context, facilityID string, start, end time.Time) ([]models.Reservation, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []models.Reservation
	for _, id := range r.m.byFacility[facilityID] {
		res := r.m.reservations[id]
		if res.Status.Active() && schedule.Overlaps(res.StartTime, res.EndTime, start, end) {
			out = append(out, *res)
		}
	}
	schedule.SortByStart(out)
	return out, nil
}

func (r *memReservations) NextStartingAfter(_ context.Context, facilityID string, t time.Time) (*models.Reservation, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var next *models.Reservation
	for _, id := range r.m.byFacility[facilityID] {
		res := r.m.reservations[id]
		if !res.Status.Active() || !res.StartTime.After(t) {
			continue
		}
		if next == nil || res.StartTime.Before(next.StartTime) {
			next = res
		}
	}
	if next == nil {
		return nil, nil
	}
	cp := *next
	return &cp, nil
}

func (r *memReservations) Get(_ context.Context, id string) (*models.Reservation, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	res, ok := r.m.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *res
	return &cp, nil
}

func (r *memReservations) ListActive(ctx context.Context, facilityID string, from, to time.Time) ([]models.Reservation, error) {
	return r.FindOverlapping(ctx, facilityID, from, to)
}

func (r *memReservations) WithFacilityLock(ctx context.Context, facilityID string, fn func(ctx context.Context, tx ReservationTx) error) error {
	unlock, err := r.locks.Lock(ctx, facilityID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx, memReservationTx{r})
}

type memReservationTx struct{ *memReservations }

func (tx memReservationTx) Insert(_ context.Context, res *models.Reservation) error {
	m := tx.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.facilities[res.FacilityID]; !ok {
		return ErrMissingReference
	}
	if _, ok := m.households[res.HouseholdID]; !ok {
		return ErrMissingReference
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if _, dup := m.reservations[res.ID]; dup {
		return ErrDuplicate
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	cp := *res
	m.reservations[res.ID] = &cp
	m.byFacility[res.FacilityID] = append(m.byFacility[res.FacilityID], res.ID)
	return nil
}
