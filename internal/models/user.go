package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type Role string

const (
	RoleStudent  Role = "STUDENT"
	RoleAdmin    Role = "ADMIN"
	RoleLecturer Role = "LECTURER"
	RoleTeacher  Role = "TEACHER"
	RoleBot      Role = "BOT"
)

// PrivilegedRoles may read every conversation and drive the lifecycle.
var PrivilegedRoles = []string{string(RoleAdmin), string(RoleLecturer), string(RoleTeacher)}

func (r Role) IsPrivileged() bool {
	for _, p := range PrivilegedRoles {
		if string(r) == p {
			return true
		}
	}
	return false
}

// IsAgent reports whether users with this role can be assigned to a conversation.
func (r Role) IsAgent() bool {
	return r.IsPrivileged() || r == RoleBot
}

type AcademicStatus string

const (
	AcademicActive  AcademicStatus = "ACTIVE"
	AcademicWarning AcademicStatus = "WARNING"
	AcademicDanger  AcademicStatus = "DANGER"
)

func (s AcademicStatus) Valid() bool {
	switch s {
	case AcademicActive, AcademicWarning, AcademicDanger:
		return true
	}
	return false
}

const (
	AgentOnline  = "ONLINE"
	AgentOffline = "OFFLINE"
	AgentBusy    = "BUSY"
)

type User struct {
	ID            string    `bson:"_id" json:"id"`
	Email         string    `bson:"email" json:"email"`
	Password      string    `bson:"password" json:"-"`
	FullName      string    `bson:"full_name" json:"full_name"`
	Role          Role      `bson:"role" json:"role"`
	IsActive      bool      `bson:"is_active" json:"is_active"`
	Avatar        string    `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Phone         string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Address       string    `bson:"address,omitempty" json:"address,omitempty"`
	ResetRequired bool      `bson:"reset_required" json:"reset_required"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}

func (u *User) HashPassword() error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashed)
	return nil
}

func (u *User) ComparePassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
}

// UserUpdate carries the optional fields of a partial user update.
type UserUpdate struct {
	Password      *string
	ResetRequired *bool
	Phone         *string
	Address       *string
	Avatar        *string
}

func (u UserUpdate) Empty() bool {
	return u.Password == nil && u.ResetRequired == nil && u.Phone == nil && u.Address == nil && u.Avatar == nil
}

type Student struct {
	UserID         string         `bson:"_id" json:"user_id"`
	StudentCode    string         `bson:"student_code" json:"student_code"`
	ClassName      string         `bson:"class_name,omitempty" json:"class_name,omitempty"`
	Faculty        string         `bson:"faculty,omitempty" json:"faculty,omitempty"`
	GPA            *float64       `bson:"gpa,omitempty" json:"gpa,omitempty"`
	AcademicStatus AcademicStatus `bson:"academic_status" json:"academic_status"`
	LastContact    *time.Time     `bson:"last_contact,omitempty" json:"last_contact,omitempty"`
}

type Agent struct {
	UserID     string `bson:"_id" json:"user_id"`
	Department string `bson:"department,omitempty" json:"department,omitempty"`
	Status     string `bson:"status" json:"status"`
}

// StudentProfile is a user joined with its student extension.
type StudentProfile struct {
	UserID         string         `bson:"_id" json:"user_id"`
	FullName       string         `bson:"full_name" json:"full_name"`
	Email          string         `bson:"email" json:"email"`
	Role           Role           `bson:"role" json:"role"`
	Avatar         string         `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Phone          string         `bson:"phone,omitempty" json:"phone,omitempty"`
	Address        string         `bson:"address,omitempty" json:"address,omitempty"`
	StudentCode    string         `bson:"student_code,omitempty" json:"student_code,omitempty"`
	ClassName      string         `bson:"class_name,omitempty" json:"class_name,omitempty"`
	Faculty        string         `bson:"faculty,omitempty" json:"faculty,omitempty"`
	GPA            *float64       `bson:"gpa,omitempty" json:"gpa,omitempty"`
	AcademicStatus AcademicStatus `bson:"academic_status,omitempty" json:"academic_status,omitempty"`
	LastContact    *time.Time     `bson:"last_contact,omitempty" json:"last_contact,omitempty"`
}

func NewStudentProfile(u *User, s *Student) *StudentProfile {
	p := &StudentProfile{
		UserID:   u.ID,
		FullName: u.FullName,
		Email:    u.Email,
		Role:     u.Role,
		Avatar:   u.Avatar,
		Phone:    u.Phone,
		Address:  u.Address,
	}
	if s != nil {
		p.StudentCode = s.StudentCode
		p.ClassName = s.ClassName
		p.Faculty = s.Faculty
		p.GPA = s.GPA
		p.AcademicStatus = s.AcademicStatus
		p.LastContact = s.LastContact
	}
	return p
}

type StudentFilter struct {
	Keyword string
	Status  AcademicStatus
	Page    int
	Size    int
}

type StudentPage struct {
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
	Items []StudentProfile `json:"items"`
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID string
	Role   Role
}
