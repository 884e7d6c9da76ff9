package domain

const (
	IdentityUser = "user"
	IdentityAnon = "anon"
)

// Identity is the resolved caller. Subject is the rate-limiting key.
type Identity struct {
	Type    string
	Subject string
}

// Authenticated reports whether the caller is a signed-in user.
func (i Identity) Authenticated() bool {
	return i.Type == IdentityUser
}
