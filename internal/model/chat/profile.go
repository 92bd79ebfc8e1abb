package chat

import "strings"

// AuthorProfile is the directory record for a user, fetched on demand.
type AuthorProfile struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// AuthorDisplay is the denormalized identity snapshot attached to a message at
// merge time. Ordering logic never looks at it.
type AuthorDisplay struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Display resolves the profile into a display snapshot using the fallback
// chain name, then email, then the raw id.
func (p AuthorProfile) Display() AuthorDisplay {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = strings.TrimSpace(p.Email)
	}
	if name == "" {
		name = p.ID
	}
	return AuthorDisplay{Name: name, AvatarURL: p.AvatarURL}
}

// FallbackDisplay is the display used when a profile lookup failed entirely.
func FallbackDisplay(userID string) AuthorDisplay {
	return AuthorDisplay{Name: userID}
}

// Initials derives up to two initials from the display name for avatar
// placeholders.
func (d AuthorDisplay) Initials() string {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return "U"
	}
	parts := strings.Fields(name)
	if len(parts) >= 2 {
		return strings.ToUpper(string([]rune(parts[0])[0]) + string([]rune(parts[1])[0]))
	}
	return strings.ToUpper(string([]rune(name)[0]))
}
