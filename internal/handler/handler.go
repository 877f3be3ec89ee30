// Package handler exposes the attendance service over HTTP.
package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
)

// Handler holds the gin handlers, one per operation.
type Handler struct {
	svc            *attendance.Service
	logger         *zap.Logger
	maxUploadBytes int64
}

// New creates the handlers. maxUploadBytes caps multipart request bodies;
// zero or less means no cap.
func New(svc *attendance.Service, logger *zap.Logger, maxUploadBytes int64) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger, maxUploadBytes: maxUploadBytes}
}

type signupRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Type     string `json:"type" binding:"required"`
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}
	orgID, err := h.svc.Signup(c.Request.Context(), req.Name, req.Email, req.Password, req.Type)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"org_id": orgID})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}
	org, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"org_id": org.ID, "name": org.Name, "type": org.Type})
}

type classRequest struct {
	OrgID string `json:"org_id" binding:"required"`
	Name  string `json:"name" binding:"required"`
}

func (h *Handler) CreateClass(c *gin.Context) {
	var req classRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}
	classID, err := h.svc.CreateClass(c.Request.Context(), req.OrgID, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"class_id": classID})
}

func (h *Handler) ListClasses(c *gin.Context) {
	classes, err := h.svc.ListClasses(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, classes)
}

func (h *Handler) DeleteClass(c *gin.Context) {
	if err := h.svc.DeleteClass(c.Request.Context(), c.Param("class_id")); err != nil {
		h.fail(c, err)
		return
	}
	success(c, nil)
}

// Pointer fields must be present but may be empty.
type registerUserForm struct {
	Name         string  `form:"name" binding:"required"`
	EnrollmentID *string `form:"enrollment_id" binding:"required"`
	RollNo       *string `form:"roll_no" binding:"required"`
	ClassID      *string `form:"class_id" binding:"required"`
	OrgID        string  `form:"org_id" binding:"required"`
}

func (h *Handler) RegisterUser(c *gin.Context) {
	h.limitBody(c)
	var form registerUserForm
	if err := c.ShouldBind(&form); err != nil {
		h.invalid(c, err)
		return
	}
	img, err := h.readImage(c, true)
	if err != nil {
		h.invalid(c, err)
		return
	}
	_, err = h.svc.RegisterUser(c.Request.Context(), attendance.User{
		OrgID:        form.OrgID,
		ClassID:      *form.ClassID,
		Name:         form.Name,
		EnrollmentID: *form.EnrollmentID,
		RollNo:       *form.RollNo,
	}, *img)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, nil)
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context(), c.Param("org_id"), c.Query("class_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.svc.DeleteUser(c.Request.Context(), c.Param("user_id")); err != nil {
		h.fail(c, err)
		return
	}
	success(c, nil)
}

type updateUserForm struct {
	UserID       string  `form:"user_id" binding:"required"`
	Name         string  `form:"name" binding:"required"`
	EnrollmentID *string `form:"enrollment_id" binding:"required"`
	RollNo       *string `form:"roll_no" binding:"required"`
	ClassID      *string `form:"class_id" binding:"required"`
}

func (h *Handler) UpdateUser(c *gin.Context) {
	h.limitBody(c)
	var form updateUserForm
	if err := c.ShouldBind(&form); err != nil {
		h.invalid(c, err)
		return
	}
	img, err := h.readImage(c, false)
	if err != nil {
		h.invalid(c, err)
		return
	}
	err = h.svc.UpdateUser(c.Request.Context(), attendance.UserUpdate{
		ID:           form.UserID,
		Name:         form.Name,
		EnrollmentID: *form.EnrollmentID,
		RollNo:       *form.RollNo,
		ClassID:      *form.ClassID,
	}, img)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, nil)
}

type attendanceRequest struct {
	UserID string  `json:"user_id" binding:"required"`
	OrgID  string  `json:"org_id" binding:"required"`
	Name   *string `json:"name" binding:"required"`
	Date   *string `json:"date" binding:"required"`
	Time   *string `json:"time" binding:"required"`
	Status *string `json:"status" binding:"required"`
}

func (h *Handler) MarkAttendance(c *gin.Context) {
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}
	err := h.svc.MarkAttendance(c.Request.Context(), attendance.Record{
		UserID: req.UserID,
		OrgID:  req.OrgID,
		Name:   *req.Name,
		Date:   *req.Date,
		Time:   *req.Time,
		Status: *req.Status,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, nil)
}

func (h *Handler) DailyReport(c *gin.Context) {
	date, ok := c.GetQuery("date")
	if !ok {
		h.invalid(c, errors.New("query parameter date is required"))
		return
	}
	entries, err := h.svc.DailyReport(c.Request.Context(), c.Param("org_id"), date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) IndividualReport(c *gin.Context) {
	entries, err := h.svc.IndividualReport(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) limitBody(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
}

// readImage reads the "image" multipart file. When required is false a
// missing file yields nil.
func (h *Handler) readImage(c *gin.Context, required bool) (*attendance.Image, error) {
	header, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) && !required {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := readPart(header)
	if err != nil {
		return nil, err
	}
	return &attendance.Image{Data: data, ContentType: header.Header.Get("Content-Type")}, nil
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
