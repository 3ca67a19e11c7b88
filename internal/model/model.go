package model

import "time"

// Provider tags stored in SourceProvider.
const (
	ProviderCanvas = "canvas"
	ProviderGoogle = "google"
	ProviderManual = "manual"
)

// Event is a calendar-anchored occurrence owned by a user. Start and End are
// kept as the raw ISO-8601 strings the store hands back; calendar code
// depends on inspecting them before any parsing.
type Event struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"`

	Title       string `gorm:"not null" json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	Start  string `gorm:"not null" json:"start"`
	End    string `json:"end,omitempty"`
	AllDay bool   `json:"all_day"`

	EventType      string `json:"event_type"`
	SourceProvider string `gorm:"index" json:"source_provider,omitempty"`
	// ExternalID identifies the provider occurrence (UID + instance key) so
	// re-syncs update rows in place.
	ExternalID string `gorm:"index" json:"external_id,omitempty"`
	Completed  bool   `json:"completed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCanvas reports whether the event came from the Canvas provider.
func (e Event) IsCanvas() bool { return e.SourceProvider == ProviderCanvas }

// DueAt is the raw timestamp that decides whether the event is upcoming:
// End when present, Start otherwise.
func (e Event) DueAt() string {
	if e.End != "" {
		return e.End
	}
	return e.Start
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

// Task is a due-date-anchored to-do item.
type Task struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	UserID string `gorm:"index;not null" json:"user_id"`

	Title    string     `gorm:"not null" json:"title"`
	Due      string     `json:"due,omitempty"`
	Priority *float64   `json:"priority,omitempty"`
	Status   TaskStatus `gorm:"default:pending;not null" json:"status"`

	CourseName     string `json:"course_name,omitempty"`
	SourceProvider string `gorm:"index" json:"source_provider,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t Task) IsCanvas() bool { return t.SourceProvider == ProviderCanvas }

// IconID names a course icon; clients map it to a concrete asset.
type IconID string

const (
	IconGraduationCap IconID = "graduation-cap"
	IconBookOpen      IconID = "book-open"
	IconFlask         IconID = "flask"
	IconCalculator    IconID = "calculator"
	IconCode          IconID = "code"
	IconPalette       IconID = "palette"
	IconMusic         IconID = "music"
	IconGlobe         IconID = "globe"
	IconBrain         IconID = "brain"
	IconHeartPulse    IconID = "heart-pulse"
	IconLandmark      IconID = "landmark"
	IconBriefcase     IconID = "briefcase"
	IconPen           IconID = "pen"
	IconDumbbell      IconID = "dumbbell"
)

var knownIcons = map[IconID]bool{
	IconGraduationCap: true, IconBookOpen: true, IconFlask: true,
	IconCalculator: true, IconCode: true, IconPalette: true, IconMusic: true,
	IconGlobe: true, IconBrain: true, IconHeartPulse: true,
	IconLandmark: true, IconBriefcase: true, IconPen: true, IconDumbbell: true,
}

func (i IconID) Valid() bool { return knownIcons[i] }

// Course is derived from Canvas events/tasks on every load; it is never
// persisted.
type Course struct {
	Code  string `json:"code"`
	Term  string `json:"term,omitempty"`
	Color string `json:"color"`
	Icon  IconID `json:"icon"`

	Events []Event `json:"events"`
	Tasks  []Task  `json:"tasks"`

	TotalAssignments     int `json:"total_assignments"`
	CompletedAssignments int `json:"completed_assignments"`
	UpcomingAssignments  int `json:"upcoming_assignments"`
}

// Setting types stored in user_settings.
const (
	SettingCourseColors = "course_colors"
	SettingCourseIcons  = "course_icons"
	SettingCourseOrder  = "course_order"
	SettingPreferences  = "preferences"
)

// UserSetting is one JSON blob per (user, type).
type UserSetting struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	UserID       string    `gorm:"uniqueIndex:idx_user_setting;not null" json:"user_id"`
	SettingsType string    `gorm:"uniqueIndex:idx_user_setting;not null" json:"settings_type"`
	Value        string    `gorm:"type:text" json:"value"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Preferences is the SettingPreferences payload.
type Preferences struct {
	Timezone string `json:"timezone,omitempty"`
}

// CalendarConnection links a user to a provider feed. AccessToken is opaque;
// OAuth happens elsewhere.
type CalendarConnection struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	UserID       string     `gorm:"uniqueIndex:idx_user_provider;not null" json:"user_id"`
	Provider     string     `gorm:"uniqueIndex:idx_user_provider;not null" json:"provider"`
	FeedURL      string     `gorm:"not null" json:"feed_url"`
	AccessToken  string     `json:"-"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
