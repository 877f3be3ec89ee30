package attendance

// UnassignedClass is shown for users whose class no longer exists.
const UnassignedClass = "Unassigned"

// Organization is the tenant.
type Organization struct {
	ID       string `json:"org_id"`
	Name     string `json:"name"`
	Email    string `json:"-"`
	Password string `json:"-"`
	Type     string `json:"type"`
}

// Class is a named group of users inside an organization.
type Class struct {
	ID    string `json:"id"`
	OrgID string `json:"-"`
	Name  string `json:"name"`
}

// User is an enrolled person with a reference photo.
type User struct {
	ID           string
	OrgID        string
	ClassID      string
	Name         string
	EnrollmentID string
	RollNo       string
	ImagePath    string
}

// UserView is a user as listed for an organization, with the class name resolved.
type UserView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	EnrollmentID string `json:"enrollment_id"`
	ClassName    string `json:"class_name"`
	Image        string `json:"image"`
	RollNo       string `json:"roll_no"`
}

// UserUpdate carries the editable user fields. ImagePath is nil when the
// stored image reference must stay untouched.
type UserUpdate struct {
	ID           string
	Name         string
	EnrollmentID string
	RollNo       string
	ClassID      string
	ImagePath    *string
}

// Record is one attendance event. Date and Time are caller-formatted and
// stored verbatim; the database stamps the insert time.
type Record struct {
	UserID string
	OrgID  string
	Name   string
	Date   string
	Time   string
	Status string
}

// DailyEntry is a row of the daily report.
type DailyEntry struct {
	Name   string `json:"name"`
	UserID string `json:"id"`
	Time   string `json:"time"`
	Status string `json:"status"`
}

// IndividualEntry is a row of a user's attendance history.
type IndividualEntry struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Status string `json:"status"`
}

// Image is an uploaded photo.
type Image struct {
	Data        []byte
	ContentType string
}
