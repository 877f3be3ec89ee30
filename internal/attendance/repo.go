package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"rollcall/internal/apperr"
	"rollcall/internal/store"
)

// Repository is the data access the service needs.
type Repository interface {
	CreateOrganization(ctx context.Context, org Organization) error
	FindOrganization(ctx context.Context, email, password string) (Organization, error)

	CreateClass(ctx context.Context, class Class) error
	ListClasses(ctx context.Context, orgID string) ([]Class, error)
	DeleteClass(ctx context.Context, classID string) error

	CreateUser(ctx context.Context, user User) error
	ListUsers(ctx context.Context, orgID, classID string) ([]UserView, error)
	UpdateUser(ctx context.Context, upd UserUpdate) error
	// DeleteUser removes the user and their attendance in one transaction.
	// dropImage runs inside it, after the image reference is read and before
	// any row is deleted; it is not called when the user has no image.
	DeleteUser(ctx context.Context, userID string, dropImage func(imagePath string)) error

	InsertAttendance(ctx context.Context, rec Record) error
	DailyReport(ctx context.Context, orgID, date string) ([]DailyEntry, error)
	IndividualReport(ctx context.Context, userID string) ([]IndividualEntry, error)
}

var _ Repository = (*PostgresRepository)(nil)

// PostgresRepository persists attendance data in Postgres.
type PostgresRepository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateOrganization(ctx context.Context, org Organization) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO organizations (id, name, email, password, type)
			VALUES ($1, $2, $3, $4, $5)
		`, org.ID, org.Name, org.Email, org.Password, org.Type)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %q already registered", apperr.ErrConflict, org.Email)
		}
		return dbErr("insert organization", err)
	})
}

func (r *PostgresRepository) FindOrganization(ctx context.Context, email, password string) (Organization, error) {
	var org Organization
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT id, COALESCE(name, ''), COALESCE(type, '')
			FROM organizations
			WHERE email = $1 AND password = $2
		`, email, password).Scan(&org.ID, &org.Name, &org.Type)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.ErrAuth
		}
		return dbErr("find organization", err)
	})
	if err != nil {
		return Organization{}, err
	}
	org.Email = email
	return org, nil
}

func (r *PostgresRepository) CreateClass(ctx context.Context, class Class) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO classes (id, org_id, name) VALUES ($1, $2, $3)`,
			class.ID, class.OrgID, class.Name)
		return dbErr("insert class", err)
	})
}

func (r *PostgresRepository) ListClasses(ctx context.Context, orgID string) ([]Class, error) {
	classes := []Class{}
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, COALESCE(name, '') FROM classes WHERE org_id = $1`, orgID)
		if err != nil {
			return dbErr("list classes", err)
		}
		defer rows.Close()
		for rows.Next() {
			c := Class{OrgID: orgID}
			if err := rows.Scan(&c.ID, &c.Name); err != nil {
				return dbErr("scan class", err)
			}
			classes = append(classes, c)
		}
		return dbErr("list classes", rows.Err())
	})
	return classes, err
}

func (r *PostgresRepository) DeleteClass(ctx context.Context, classID string) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM classes WHERE id = $1`, classID)
		return dbErr("delete class", err)
	})
}

func (r *PostgresRepository) CreateUser(ctx context.Context, u User) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, org_id, class_id, name, enrollment_id, roll_no, image_path)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, u.ID, u.OrgID, u.ClassID, u.Name, u.EnrollmentID, u.RollNo, u.ImagePath)
		return dbErr("insert user", err)
	})
}

// ListUsers lists every user of the organization when classID is empty,
// otherwise only the users assigned to that existing class.
func (r *PostgresRepository) ListUsers(ctx context.Context, orgID, classID string) ([]UserView, error) {
	query := `
		SELECT u.id, COALESCE(u.name, ''), COALESCE(u.enrollment_id, ''), COALESCE(c.name, $2),
		       COALESCE(u.image_path, ''), COALESCE(u.roll_no, '')
		FROM users u LEFT JOIN classes c ON u.class_id = c.id
		WHERE u.org_id = $1
	`
	args := []any{orgID, UnassignedClass}
	if classID != "" {
		query = `
			SELECT u.id, COALESCE(u.name, ''), COALESCE(u.enrollment_id, ''), COALESCE(c.name, ''),
			       COALESCE(u.image_path, ''), COALESCE(u.roll_no, '')
			FROM users u JOIN classes c ON u.class_id = c.id
			WHERE u.org_id = $1 AND u.class_id = $2
		`
		args = []any{orgID, classID}
	}

	users := []UserView{}
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return dbErr("list users", err)
		}
		defer rows.Close()
		for rows.Next() {
			var u UserView
			if err := rows.Scan(&u.ID, &u.Name, &u.EnrollmentID, &u.ClassName, &u.Image, &u.RollNo); err != nil {
				return dbErr("scan user", err)
			}
			users = append(users, u)
		}
		return dbErr("list users", rows.Err())
	})
	return users, err
}

func (r *PostgresRepository) UpdateUser(ctx context.Context, upd UserUpdate) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		if upd.ImagePath != nil {
			_, err = tx.Exec(ctx, `
				UPDATE users SET name = $1, enrollment_id = $2, roll_no = $3, class_id = $4, image_path = $5
				WHERE id = $6
			`, upd.Name, upd.EnrollmentID, upd.RollNo, upd.ClassID, *upd.ImagePath, upd.ID)
		} else {
			_, err = tx.Exec(ctx, `
				UPDATE users SET name = $1, enrollment_id = $2, roll_no = $3, class_id = $4
				WHERE id = $5
			`, upd.Name, upd.EnrollmentID, upd.RollNo, upd.ClassID, upd.ID)
		}
		return dbErr("update user", err)
	})
}

func (r *PostgresRepository) DeleteUser(ctx context.Context, userID string, dropImage func(imagePath string)) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var imagePath string
		err := tx.QueryRow(ctx, `SELECT COALESCE(image_path, '') FROM users WHERE id = $1`, userID).Scan(&imagePath)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return dbErr("lookup user image", err)
		case imagePath != "" && dropImage != nil:
			dropImage(imagePath)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
			return dbErr("delete user", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM attendance WHERE user_id = $1`, userID); err != nil {
			return dbErr("delete user attendance", err)
		}
		return nil
	})
}

func (r *PostgresRepository) InsertAttendance(ctx context.Context, rec Record) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO attendance (user_id, org_id, name, date, time, status)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, rec.UserID, rec.OrgID, rec.Name, rec.Date, rec.Time, rec.Status)
		return dbErr("insert attendance", err)
	})
}

func (r *PostgresRepository) DailyReport(ctx context.Context, orgID, date string) ([]DailyEntry, error) {
	entries := []DailyEntry{}
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT COALESCE(name, ''), COALESCE(user_id, ''), COALESCE(time, ''), COALESCE(status, '')
			FROM attendance
			WHERE org_id = $1 AND date = $2
		`, orgID, date)
		if err != nil {
			return dbErr("daily report", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e DailyEntry
			if err := rows.Scan(&e.Name, &e.UserID, &e.Time, &e.Status); err != nil {
				return dbErr("scan daily report", err)
			}
			entries = append(entries, e)
		}
		return dbErr("daily report", rows.Err())
	})
	return entries, err
}

// IndividualReport returns the user's records newest first. Records created
// within the same clock tick fall back to insertion order via the serial id.
func (r *PostgresRepository) IndividualReport(ctx context.Context, userID string) ([]IndividualEntry, error) {
	entries := []IndividualEntry{}
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT COALESCE(date, ''), COALESCE(time, ''), COALESCE(status, '')
			FROM attendance
			WHERE user_id = $1
			ORDER BY timestamp DESC, id DESC
		`, userID)
		if err != nil {
			return dbErr("individual report", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e IndividualEntry
			if err := rows.Scan(&e.Date, &e.Time, &e.Status); err != nil {
				return dbErr("scan individual report", err)
			}
			entries = append(entries, e)
		}
		return dbErr("individual report", rows.Err())
	})
	return entries, err
}

func dbErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", apperr.ErrDatabase, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
