package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Profile struct {
	FullName     string   `bson:"full_name" json:"fullName" yaml:"fullName"`
	Address1     string   `bson:"address1" json:"address1" yaml:"address1"`
	Address2     string   `bson:"address2,omitempty" json:"address2,omitempty" yaml:"address2"`
	City         string   `bson:"city" json:"city" yaml:"city"`
	State        string   `bson:"state" json:"state" yaml:"state"`
	ZipCode      string   `bson:"zip_code" json:"zipCode" yaml:"zipCode"`
	Skills       []string `bson:"skills" json:"skills" yaml:"skills"`
	Preferences  string   `bson:"preferences,omitempty" json:"preferences,omitempty" yaml:"preferences"`
	Availability []string `bson:"availability" json:"availability" yaml:"availability"`
}

// User is the read model the matcher consumes. Accounts are created and
// edited by the authentication service; this module never writes profiles.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Email      string             `bson:"email" json:"email"`
	Role       UserRole           `bson:"user_type" json:"userType"`
	Profile    Profile            `bson:"profile" json:"profile"`
	IsComplete bool               `bson:"is_complete" json:"isComplete"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// DisplayName falls back to the email when the profile has no name.
func (u *User) DisplayName() string {
	if u.Profile.FullName != "" {
		return u.Profile.FullName
	}
	return u.Email
}

// IsMatchable reports whether the profile can take part in auto-matching.
func (u *User) IsMatchable() bool {
	return u.Role == RoleVolunteer && u.IsComplete && len(u.Profile.Skills) > 0
}

// CheckProfileComplete mirrors the completeness rule of the profile form.
func (p Profile) CheckProfileComplete() bool {
	return p.FullName != "" &&
		p.Address1 != "" &&
		p.City != "" &&
		p.State != "" &&
		p.ZipCode != "" &&
		len(p.Skills) > 0 &&
		len(p.Availability) > 0
}
