// Package testutil provides in-memory stand-ins for the database and the
// object store so service and handler tests run without external services.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"rollcall/internal/apperr"
	"rollcall/internal/attendance"
)

// MemoryRepo is an in-memory attendance.Repository with the same join and
// ordering rules as the Postgres one.
type MemoryRepo struct {
	mu      sync.Mutex
	orgs    []attendance.Organization
	classes []attendance.Class
	users   []attendance.User
	records []attendance.Record

	// Err, when set, is returned by every call.
	Err error
}

var _ attendance.Repository = (*MemoryRepo)(nil)

// NewMemoryRepo returns an empty repository.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (m *MemoryRepo) CreateOrganization(ctx context.Context, org attendance.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, o := range m.orgs {
		if o.Email == org.Email {
			return fmt.Errorf("%w: email %q already registered", apperr.ErrConflict, org.Email)
		}
	}
	m.orgs = append(m.orgs, org)
	return nil
}

func (m *MemoryRepo) FindOrganization(ctx context.Context, email, password string) (attendance.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return attendance.Organization{}, m.Err
	}
	for _, o := range m.orgs {
		if o.Email == email && o.Password == password {
			return o, nil
		}
	}
	return attendance.Organization{}, apperr.ErrAuth
}

func (m *MemoryRepo) CreateClass(ctx context.Context, class attendance.Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.classes = append(m.classes, class)
	return nil
}

func (m *MemoryRepo) ListClasses(ctx context.Context, orgID string) ([]attendance.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := []attendance.Class{}
	for _, c := range m.classes {
		if c.OrgID == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryRepo) DeleteClass(ctx context.Context, classID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	kept := m.classes[:0]
	for _, c := range m.classes {
		if c.ID != classID {
			kept = append(kept, c)
		}
	}
	m.classes = kept
	return nil
}

func (m *MemoryRepo) CreateUser(ctx context.Context, u attendance.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.users = append(m.users, u)
	return nil
}

func (m *MemoryRepo) ListUsers(ctx context.Context, orgID, classID string) ([]attendance.UserView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := []attendance.UserView{}
	for _, u := range m.users {
		if u.OrgID != orgID {
			continue
		}
		className, found := m.className(u.ClassID)
		if classID != "" {
			if u.ClassID != classID || !found {
				continue
			}
		} else if !found {
			className = attendance.UnassignedClass
		}
		out = append(out, attendance.UserView{
			ID:           u.ID,
			Name:         u.Name,
			EnrollmentID: u.EnrollmentID,
			ClassName:    className,
			Image:        u.ImagePath,
			RollNo:       u.RollNo,
		})
	}
	return out, nil
}

func (m *MemoryRepo) className(classID string) (string, bool) {
	for _, c := range m.classes {
		if c.ID == classID {
			return c.Name, true
		}
	}
	return "", false
}

func (m *MemoryRepo) UpdateUser(ctx context.Context, upd attendance.UserUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for i, u := range m.users {
		if u.ID != upd.ID {
			continue
		}
		u.Name, u.EnrollmentID, u.RollNo, u.ClassID = upd.Name, upd.EnrollmentID, upd.RollNo, upd.ClassID
		if upd.ImagePath != nil {
			u.ImagePath = *upd.ImagePath
		}
		m.users[i] = u
	}
	return nil
}

func (m *MemoryRepo) DeleteUser(ctx context.Context, userID string, dropImage func(imagePath string)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, u := range m.users {
		if u.ID == userID && u.ImagePath != "" && dropImage != nil {
			dropImage(u.ImagePath)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: delete user: %v", apperr.ErrDatabase, err)
	}

	keptUsers := m.users[:0]
	for _, u := range m.users {
		if u.ID != userID {
			keptUsers = append(keptUsers, u)
		}
	}
	m.users = keptUsers

	keptRecords := m.records[:0]
	for _, r := range m.records {
		if r.UserID != userID {
			keptRecords = append(keptRecords, r)
		}
	}
	m.records = keptRecords
	return nil
}

func (m *MemoryRepo) InsertAttendance(ctx context.Context, rec attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryRepo) DailyReport(ctx context.Context, orgID, date string) ([]attendance.DailyEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := []attendance.DailyEntry{}
	for _, r := range m.records {
		if r.OrgID == orgID && r.Date == date {
			out = append(out, attendance.DailyEntry{Name: r.Name, UserID: r.UserID, Time: r.Time, Status: r.Status})
		}
	}
	return out, nil
}

func (m *MemoryRepo) IndividualReport(ctx context.Context, userID string) ([]attendance.IndividualEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := []attendance.IndividualEntry{}
	for i := len(m.records) - 1; i >= 0; i-- {
		if r := m.records[i]; r.UserID == userID {
			out = append(out, attendance.IndividualEntry{Date: r.Date, Time: r.Time, Status: r.Status})
		}
	}
	return out, nil
}

// AttendanceCount returns how many records reference userID.
func (m *MemoryRepo) AttendanceCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.UserID == userID {
			n++
		}
	}
	return n
}
