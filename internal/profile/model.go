package profile

import "strings"

// Profile is the read-only projection of a platform user joined into
// conversation views. Rows are owned by the wider platform; this subsystem
// only reads them, except for the caller's own row (see Repository.Ensure).
type Profile struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	ImageURL  string `json:"image_url"`
	Email     string `json:"email"`
}

// DisplayName degrades to "User" when the projection row is missing or empty
// so a dangling participant never breaks a conversation view.
func (p *Profile) DisplayName() string {
	if p == nil {
		return "User"
	}
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name != "" {
		return name
	}
	if p.Username != "" {
		return p.Username
	}
	return "User"
}

// AvatarInitial is the one-letter placeholder used when ImageURL is empty.
func (p *Profile) AvatarInitial() string {
	name := p.DisplayName()
	for _, r := range name {
		return strings.ToUpper(string(r))
	}
	return "U"
}
