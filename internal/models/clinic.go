package models

// Clinic represents a clinic that owns patient records.
type Clinic struct {
	BaseModel
	Name        string `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Address     string `json:"address,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`

	// Relations (not always preloaded)
	Patients []Patient `gorm:"foreignKey:ClinicID" json:"-"`
}
