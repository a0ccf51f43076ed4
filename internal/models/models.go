package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleAdmin        = "ADMIN"
	RoleLabAssistant = "LAB_ASSISTANT"
)

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleLabAssistant
}

const (
	OrderPending   = "PENDING"
	OrderCompleted = "COMPLETED"
	OrderCancelled = "CANCELLED"
)

const (
	TestPending   = "PENDING"
	TestCompleted = "COMPLETED"
)

const (
	PaymentPaid    = "PAID"
	PaymentUnpaid  = "UNPAID"
	PaymentPartial = "PARTIAL"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"     json:"id"`
	Username     string    `gorm:"uniqueIndex;not null"     json:"username"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	FullName     string    `gorm:"not null"                 json:"full_name"`
	Role         string    `gorm:"not null"                 json:"role"`
	IsActive     bool      `gorm:"not null;default:true"    json:"is_active"`

	// At most one outstanding refresh token per user; both fields are
	// set together on login and cleared together on logout.
	RefreshToken          *string    `json:"-"`
	RefreshTokenExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

type Patient struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName     string    `gorm:"not null"             json:"first_name"`
	LastName      string    `gorm:"not null"             json:"last_name"`
	Age           string    `gorm:"not null"             json:"age"`
	Gender        string    `gorm:"not null"             json:"gender"`
	ContactNumber string    `gorm:"not null"             json:"contact_number"`
	Address       string    `gorm:"not null"             json:"address"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (p *Patient) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type Consultant struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name                string    `gorm:"not null"             json:"name"`
	Specialization      string    `gorm:"not null"             json:"specialization"`
	ContactNumber       string    `gorm:"not null"             json:"contact_number"`
	HospitalAffiliation string    `json:"hospital_affiliation"`
	Address             string    `gorm:"not null"             json:"address"`
}

func (c *Consultant) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type LabTest struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string    `gorm:"not null"             json:"name"`
	Description    string    `json:"description"`
	Cost           float64   `gorm:"not null"             json:"cost"`
	SampleRequired string    `json:"sample_required"`
}

func (t *LabTest) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type Order struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"      json:"id"`
	PatientID    uuid.UUID  `gorm:"type:uuid;index;not null"  json:"patient_id"`
	ConsultantID *uuid.UUID `gorm:"type:uuid"                 json:"consultant_id"`
	OrderedAt    time.Time  `json:"ordered_at"`
	Status       string     `gorm:"not null;default:PENDING"  json:"status"`
	TotalAmount  float64    `gorm:"not null"                  json:"total_amount"`

	Tests []OrderTest `gorm:"foreignKey:OrderID" json:"tests,omitempty"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.OrderedAt.IsZero() {
		o.OrderedAt = time.Now()
	}
	return nil
}

type OrderTest struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"     json:"id"`
	OrderID           uuid.UUID  `gorm:"type:uuid;index;not null" json:"order_id"`
	TestID            uuid.UUID  `gorm:"type:uuid;not null"       json:"test_id"`
	Status            string     `gorm:"not null;default:PENDING" json:"status"`
	SampleCollectedAt *time.Time `json:"sample_collected_at"`
}

func (ot *OrderTest) BeforeCreate(tx *gorm.DB) error {
	if ot.ID == uuid.Nil {
		ot.ID = uuid.New()
	}
	return nil
}

type TestReport struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"     json:"id"`
	OrderTestID uuid.UUID `gorm:"type:uuid;index;not null" json:"order_test_id"`
	Result      string    `gorm:"not null"                 json:"result"`
	Comments    string    `json:"comments"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r *TestReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

type Billing struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"     json:"id"`
	OrderID        uuid.UUID  `gorm:"type:uuid;index;not null" json:"order_id"`
	TotalAmount    float64    `gorm:"not null"                 json:"total_amount"`
	DiscountAmount float64    `gorm:"default:0"                json:"discount_amount"`
	NetAmount      float64    `gorm:"not null"                 json:"net_amount"`
	PaidAmount     float64    `gorm:"default:0"                json:"paid_amount"`
	DueAmount      float64    `gorm:"default:0"                json:"due_amount"`
	DiscountBy     string     `json:"discount_by"`
	PaymentStatus  string     `gorm:"not null;default:UNPAID"  json:"payment_status"`
	PaymentMethod  string     `json:"payment_method"`
	PaidAt         *time.Time `json:"paid_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (b *Billing) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
