package users

import (
	"encoding/json"
	"fmt"

	"github.com/jrsteele09/go-habit-session/internal/utils"
)

// Profile holds the extended, user-editable settings attached to a User
type Profile struct {
	DarkMode           bool    `json:"dark_mode,omitempty"`
	EmailNotifications bool    `json:"email_notifications,omitempty"`
	PushNotifications  bool    `json:"push_notifications,omitempty"`
	Timezone           string  `json:"timezone,omitempty"`
	Language           string  `json:"language,omitempty"`
	DateJoined         string  `json:"date_joined,omitempty"`
	LastLoginIP        *string `json:"last_login_ip,omitempty"`
	StreakRecord       int     `json:"streak_record,omitempty"`
	Avatar             *string `json:"avatar,omitempty"`
	Bio                string  `json:"bio,omitempty"`
}

type User struct {
	ID        int64    `json:"id,omitempty"`         // Backend primary key, required for profile updates
	Username  string   `json:"username,omitempty"`   // Optional display handle
	Email     string   `json:"email"`                // Login identifier
	FirstName string   `json:"first_name,omitempty"` // First name of the user
	LastName  string   `json:"last_name,omitempty"`  // Last name of the user
	Profile   *Profile `json:"profile,omitempty"`    // Extended settings, absent until the backend sends one
}

// ProfileUpdate carries only the profile fields being changed
type ProfileUpdate struct {
	DarkMode           *bool   `json:"dark_mode,omitempty"`
	EmailNotifications *bool   `json:"email_notifications,omitempty"`
	PushNotifications  *bool   `json:"push_notifications,omitempty"`
	Timezone           *string `json:"timezone,omitempty"`
	Language           *string `json:"language,omitempty"`
	Avatar             *string `json:"avatar,omitempty"`
	Bio                *string `json:"bio,omitempty"`
}

// Update is a partial user record sent to the profile endpoint. Nil fields are not sent.
type Update struct {
	Username  *string        `json:"username,omitempty"`
	Email     *string        `json:"email,omitempty"`
	FirstName *string        `json:"first_name,omitempty"`
	LastName  *string        `json:"last_name,omitempty"`
	Profile   *ProfileUpdate `json:"profile,omitempty"`
}

// Patch is the raw user object returned by the profile endpoint, keyed by JSON field name
type Patch map[string]json.RawMessage

// Apply overlays the patch's top level fields on a copy of u. A patched profile
// replaces the whole profile rather than being merged field by field.
func (u User) Apply(patch Patch) (User, error) {
	if len(patch) == 0 {
		return u, nil
	}

	current, err := json.Marshal(u)
	if err != nil {
		return u, fmt.Errorf("[User.Apply] marshal user: %w", err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(current, &fields); err != nil {
		return u, fmt.Errorf("[User.Apply] unmarshal user: %w", err)
	}
	for k, v := range patch {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return u, fmt.Errorf("[User.Apply] marshal merged: %w", err)
	}

	var out User
	if err := json.Unmarshal(merged, &out); err != nil {
		return u, fmt.Errorf("[User.Apply] unmarshal merged: %w", err)
	}
	return out, nil
}

// DisplayName returns "First Last", falling back to the username then the email
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" || u.LastName != "":
		if u.FirstName == "" {
			return u.LastName
		}
		if u.LastName == "" {
			return u.FirstName
		}
		return u.FirstName + " " + u.LastName
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

// Clone returns a deep copy of u
func (u User) Clone() *User {
	out := u
	if u.Profile != nil {
		out.Profile = utils.ClonePtr(u.Profile)
		out.Profile.LastLoginIP = utils.ClonePtr(u.Profile.LastLoginIP)
		out.Profile.Avatar = utils.ClonePtr(u.Profile.Avatar)
	}
	return &out
}
