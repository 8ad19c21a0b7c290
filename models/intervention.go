package models

import "time"

// Intervention statuses
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

// Intervention priorities
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Statuses lists every intervention status in lifecycle order
var Statuses = []string{StatusPending, StatusInProgress, StatusDone, StatusCancelled}

// Priorities lists every intervention priority from lowest to highest
var Priorities = []string{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

// OpenStatuses are the statuses an intervention can still transition out of
var OpenStatuses = []string{StatusPending, StatusInProgress}

// Intervention represents a unit of field work performed by a technician for a client
type Intervention struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Title         string     `gorm:"not null" json:"title"`
	Description   string     `gorm:"type:text;not null" json:"description"`
	Status        string     `gorm:"not null;default:'pending';index" json:"status"` // pending, in_progress, done, cancelled
	Priority      string     `gorm:"not null;default:'normal'" json:"priority"`      // low, normal, high, urgent
	ScheduledAt   *time.Time `json:"scheduled_at"`
	StartedAt     *time.Time `json:"started_at"`  // set when the technician starts
	FinishedAt    *time.Time `json:"finished_at"` // set when the technician completes
	ProblemFound  *string    `gorm:"type:text" json:"problem_found"`
	WorkPerformed *string    `gorm:"type:text" json:"work_performed"`
	Comments      *string    `gorm:"type:text" json:"comments"`
	PhotoKey      *string    `json:"photo_key"`                                // storage key of the attached photo
	PhotoURL      string     `gorm:"-" json:"photo_url,omitempty"`             // computed, resolved by the image service
	ClientID      uint       `gorm:"not null;index" json:"client_id"`          // foreign key to clients table
	Client        Client     `gorm:"foreignKey:ClientID" json:"client"`
	TechnicianID  *uint      `gorm:"index" json:"technician_id"` // nullable, set on assignment
	Technician    *User      `gorm:"foreignKey:TechnicianID" json:"technician,omitempty"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name for the Intervention model
func (Intervention) TableName() string {
	return "interventions"
}

// IsTerminal reports whether the intervention is done or cancelled
func (i Intervention) IsTerminal() bool {
	return IsTerminalStatus(i.Status)
}

// IsTerminalStatus reports whether no transition can leave the given status
func IsTerminalStatus(status string) bool {
	return status == StatusDone || status == StatusCancelled
}

// ValidPriority reports whether p is a known priority
func ValidPriority(p string) bool {
	for _, known := range Priorities {
		if p == known {
			return true
		}
	}
	return false
}
