package store

import "time"

// VehicleRecord is the vehicles table.
type VehicleRecord struct {
	ID               string    `gorm:"primaryKey;size:64"`
	VIN              string    `gorm:"uniqueIndex;size:32"`
	Name             string    `gorm:"size:128"`
	ConnectionStatus string    `gorm:"size:16;default:disconnected"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

func (VehicleRecord) TableName() string { return "vehicles" }

// UserRecord is the users table.
type UserRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Username  string    `gorm:"uniqueIndex;size:64;not null"`
	Role      string    `gorm:"size:32"`
	IsActive  bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (UserRecord) TableName() string { return "users" }

// CommandRecord is the commands table.
type CommandRecord struct {
	ID            string     `gorm:"primaryKey;size:36"`
	VehicleID     string     `gorm:"index;size:64;not null"`
	UserID        string     `gorm:"index;size:64;not null"`
	CommandName   string     `gorm:"size:128;not null"`
	CommandParams string     `gorm:"type:text"`
	Status        string     `gorm:"index;size:16;not null"`
	ErrorMessage  *string    `gorm:"type:text"`
	SubmittedAt   time.Time  `gorm:"index;not null"`
	CompletedAt   *time.Time `gorm:""`
}

func (CommandRecord) TableName() string { return "commands" }

// ResponseRecord is the command_responses table. (command_id, sequence_number) is unique.
type ResponseRecord struct {
	ID              string    `gorm:"primaryKey;size:36"`
	CommandID       string    `gorm:"uniqueIndex:idx_command_sequence;size:36;not null"`
	SequenceNumber  int       `gorm:"uniqueIndex:idx_command_sequence;not null"`
	ResponsePayload string    `gorm:"type:text"`
	IsFinal         bool      `gorm:"not null;default:false"`
	ReceivedAt      time.Time `gorm:"not null"`
}

func (ResponseRecord) TableName() string { return "command_responses" }

// AllModels returns every record type for migration.
func AllModels() []any {
	return []any{
		&VehicleRecord{},
		&UserRecord{},
		&CommandRecord{},
		&ResponseRecord{},
	}
}
