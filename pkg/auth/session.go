// Package auth implements the session probe, the interactive login
// handshake, and the facade the rest of the daemon routes on.
package auth

// UserInfo identifies the signed-in user. Picture carries the avatar URL
// the provider reports as "image".
type UserInfo struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Session is the observable slice of provider-held session state: either
// a user is present or there is no usable session. Credentials themselves
// never appear here; they ride along as cookies.
type Session struct {
	User *UserInfo `json:"user,omitempty"`
}

// sessionWire matches the provider's /auth/session response body.
type sessionWire struct {
	User *struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Image string `json:"image"`
	} `json:"user"`
}

func (w sessionWire) toSession() *Session {
	s := &Session{}
	if w.User != nil {
		s.User = &UserInfo{
			Email:   w.User.Email,
			Name:    w.User.Name,
			Picture: w.User.Image,
		}
	}
	return s
}
