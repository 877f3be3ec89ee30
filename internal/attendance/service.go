package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rollcall/internal/apperr"
	"rollcall/internal/objectstore"
	"rollcall/internal/queue"
)

const deleteTimeout = 30 * time.Second

// Service implements the attendance operations on top of a repository and
// an optional object store.
type Service struct {
	repo    Repository
	blobs   objectstore.Store
	cleanup queue.Queue
	logger  *zap.Logger
	newID   func() string
}

// NewService wires the service. blobs may be nil when no object store is
// configured; cleanup may be nil to skip retrying failed blob deletes.
func NewService(repo Repository, blobs objectstore.Store, cleanup queue.Queue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		blobs:   blobs,
		cleanup: cleanup,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// StorageConfigured reports whether image uploads are possible.
func (s *Service) StorageConfigured() bool {
	return s.blobs != nil
}

// Signup registers an organization and returns its id.
func (s *Service) Signup(ctx context.Context, name, email, password, orgType string) (string, error) {
	org := Organization{
		ID:       s.newID(),
		Name:     name,
		Email:    email,
		Password: password,
		Type:     orgType,
	}
	if err := s.repo.CreateOrganization(ctx, org); err != nil {
		if apperr.Unavailable(err) || errors.Is(err, apperr.ErrConflict) {
			return "", err
		}
		return "", fmt.Errorf("%w: email exists or database error: %v", apperr.ErrConflict, err)
	}
	s.logger.Info("organization registered", zap.String("org_id", org.ID))
	return org.ID, nil
}

// Login looks up an organization by exact email and password.
func (s *Service) Login(ctx context.Context, email, password string) (Organization, error) {
	org, err := s.repo.FindOrganization(ctx, email, password)
	if err != nil {
		return Organization{}, err
	}
	return org, nil
}

// CreateClass creates a class and returns its id.
func (s *Service) CreateClass(ctx context.Context, orgID, name string) (string, error) {
	class := Class{ID: s.newID(), OrgID: orgID, Name: name}
	if err := s.repo.CreateClass(ctx, class); err != nil {
		return "", err
	}
	return class.ID, nil
}

// ListClasses returns the organization's classes.
func (s *Service) ListClasses(ctx context.Context, orgID string) ([]Class, error) {
	return s.repo.ListClasses(ctx, orgID)
}

// DeleteClass deletes a class. Users keep their class reference.
func (s *Service) DeleteClass(ctx context.Context, classID string) error {
	return s.repo.DeleteClass(ctx, classID)
}

// RegisterUser uploads the photo and then inserts the user pointing at it.
// If the upload fails nothing is inserted; if the insert fails the blob is
// left behind.
func (s *Service) RegisterUser(ctx context.Context, u User, img Image) (User, error) {
	if s.blobs == nil {
		return User{}, fmt.Errorf("%w: storage not configured", apperr.ErrConfig)
	}
	u.ID = s.newID()

	url, err := s.blobs.Upload(ctx, objectstore.UserImageKey(u.ID), img.Data, imageContentType(img.ContentType))
	if err != nil {
		return User{}, fmt.Errorf("storage upload failed: %w", err)
	}
	u.ImagePath = url

	if err := s.repo.CreateUser(ctx, u); err != nil {
		s.logger.Warn("user insert failed after upload, blob orphaned",
			zap.String("user_id", u.ID), zap.String("image", url), zap.Error(err))
		return User{}, err
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("org_id", u.OrgID))
	return u, nil
}

// ListUsers lists an organization's users. An empty classID or "all" lists
// everyone, showing "Unassigned" where the class is gone.
func (s *Service) ListUsers(ctx context.Context, orgID, classID string) ([]UserView, error) {
	if classID == "all" {
		classID = ""
	}
	return s.repo.ListUsers(ctx, orgID, classID)
}

// UpdateUser updates the user's fields. When img is given and an object store
// is configured the photo is overwritten first and the new URL stored.
func (s *Service) UpdateUser(ctx context.Context, upd UserUpdate, img *Image) error {
	upd.ImagePath = nil
	if img != nil {
		if s.blobs == nil {
			s.logger.Warn("image ignored on update, storage not configured", zap.String("user_id", upd.ID))
		} else {
			url, err := s.blobs.Overwrite(ctx, objectstore.UserImageKey(upd.ID), img.Data, imageContentType(img.ContentType))
			if err != nil {
				return fmt.Errorf("storage overwrite failed: %w", err)
			}
			upd.ImagePath = &url
		}
	}
	return s.repo.UpdateUser(ctx, upd)
}

// DeleteUser removes the user, their attendance and, best-effort, their photo.
// A failed photo delete is logged and queued for retry; it never fails the call.
// Once started it runs to completion even if the caller goes away, so the photo
// is never removed while the user row survives.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()
	return s.repo.DeleteUser(ctx, userID, func(imagePath string) {
		s.dropImage(ctx, userID, imagePath)
	})
}

func (s *Service) dropImage(ctx context.Context, userID, imagePath string) {
	if s.blobs == nil {
		return
	}
	key := objectstore.KeyFromURL(imagePath)
	if key == "" {
		return
	}
	err := s.blobs.Delete(ctx, key)
	if err == nil {
		return
	}
	s.logger.Warn("image delete failed", zap.String("user_id", userID), zap.String("key", key), zap.Error(err))
	if s.cleanup == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	msg := queue.Message{Type: queue.TypeBlobDelete, Body: []byte(key), Attempts: 1}
	if err := s.cleanup.Publish(pubCtx, msg); err != nil {
		s.logger.Warn("image cleanup not queued", zap.String("key", key), zap.Error(err))
	}
}

// MarkAttendance stores one attendance event.
func (s *Service) MarkAttendance(ctx context.Context, rec Record) error {
	return s.repo.InsertAttendance(ctx, rec)
}

// DailyReport returns the organization's records for date.
func (s *Service) DailyReport(ctx context.Context, orgID, date string) ([]DailyEntry, error) {
	return s.repo.DailyReport(ctx, orgID, date)
}

// IndividualReport returns a user's records, newest first.
func (s *Service) IndividualReport(ctx context.Context, userID string) ([]IndividualEntry, error) {
	return s.repo.IndividualReport(ctx, userID)
}

func imageContentType(ct string) string {
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}
