// model.go defines the tables of the reference annotation store
package datastore

import "time"

// Project groups tasks that share one label taxonomy
type Project struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:255;not null"`
	ModelType string `gorm:"size:20;default:beats"`
	CreatedAt time.Time
	Labels    []Label `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	Tasks     []Task  `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

// Label is a top-level class of a project
type Label struct {
	ID         uint        `gorm:"primaryKey"`
	ProjectID  uint        `gorm:"index;not null"`
	Name       string      `gorm:"size:100;not null"`
	Attributes []Attribute `gorm:"foreignKey:LabelID;constraint:OnDelete:CASCADE"`
}

// Attribute belongs to one label
type Attribute struct {
	ID      uint             `gorm:"primaryKey"`
	LabelID uint             `gorm:"index;not null"`
	Name    string           `gorm:"size:100;not null"`
	Values  []AttributeValue `gorm:"foreignKey:AttributeID;constraint:OnDelete:CASCADE"`
}

// AttributeValue is one selectable value of an attribute
type AttributeValue struct {
	ID          uint   `gorm:"primaryKey"`
	AttributeID uint   `gorm:"index;not null"`
	Value       string `gorm:"size:100;not null"`
}

// Task is one audio file of a project
type Task struct {
	ID          uint   `gorm:"primaryKey"`
	ProjectID   uint   `gorm:"index;not null"`
	AudioFile   string `gorm:"size:255;not null"`
	Status      string `gorm:"size:20;default:New;index"`
	UpdatedAt   time.Time
	Annotations []Annotation `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

// Annotation is one stored region. LabelID is nil for model suggestions that
// nobody labeled yet.
type Annotation struct {
	ID              uint                       `gorm:"primaryKey"`
	TaskID          uint                       `gorm:"index;not null"`
	LabelID         *uint                      `gorm:"index"`
	StartTime       float64                    `gorm:"not null"`
	EndTime         float64                    `gorm:"not null"`
	ModelLabel      *string                    `gorm:"size:100"`
	ModelGenerated  bool                       `gorm:"not null;default:false"`
	AttributeValues []AnnotationAttributeValue `gorm:"foreignKey:AnnotationID;constraint:OnDelete:CASCADE"`
}

// AnnotationAttributeValue is one chosen value of an annotation
type AnnotationAttributeValue struct {
	ID           uint `gorm:"primaryKey"`
	AnnotationID uint `gorm:"index;not null"`
	AttributeID  uint `gorm:"not null"`
	ValueID      uint `gorm:"not null"`
}

// allModels lists tables in dependency order for migration
func allModels() []any {
	return []any{
		&Project{}, &Label{}, &Attribute{}, &AttributeValue{},
		&Task{}, &Annotation{}, &AnnotationAttributeValue{},
	}
}
