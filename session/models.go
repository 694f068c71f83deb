package session

import "encoding/json"

// User is the identity record returned by the account service. It is
// constructed fresh from each response and never partially updated.
type User struct {
	ID    string
	Email string
	Token string
}

// Profile carries the extended per-user data fetched separately from the
// core identity. The collection entries are opaque to the SDK and replaced
// wholesale on every successful fetch or update.
type Profile struct {
	ID         string
	Favourites []json.RawMessage
	Playlist   []json.RawMessage
}

// ProfileUpdate names the profile fields a caller may replace. Nil slices
// are omitted from the request body.
type ProfileUpdate struct {
	Favourites []json.RawMessage `json:"favourite,omitempty"`
	Playlist   []json.RawMessage `json:"playlist,omitempty"`
}

// Wire shapes. The service wraps entities in a top-level "user" or
// "profile" object.

type wireProfile struct {
	ID         string            `json:"id"`
	Favourites []json.RawMessage `json:"favourite"`
	Playlist   []json.RawMessage `json:"playlist"`
}

type wireUser struct {
	ID      string       `json:"id"`
	Email   string       `json:"email"`
	Token   string       `json:"token"`
	Profile *wireProfile `json:"profile"`
}

type userEnvelope struct {
	User *wireUser `json:"user"`
}

type profileEnvelope struct {
	Profile *wireProfile `json:"profile"`
	User    *wireUser    `json:"user"`
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailBody struct {
	Email string `json:"email"`
}

type passwordBody struct {
	Password string `json:"password"`
}

type tokenBody struct {
	Token string `json:"token"`
}

func parseUser(body []byte) (*User, error) {
	var envelope userEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if envelope.User == nil {
		return nil, errMissingUser
	}
	return &User{
		ID:    envelope.User.ID,
		Email: envelope.User.Email,
		Token: envelope.User.Token,
	}, nil
}

// parseProfile accepts both envelope revisions: a top-level "profile" object
// and a "user" object nesting one.
func parseProfile(body []byte) (*Profile, error) {
	var envelope profileEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}

	wire := envelope.Profile
	if wire == nil && envelope.User != nil {
		wire = envelope.User.Profile
	}
	if wire == nil {
		return nil, errMissingProfile
	}

	return &Profile{
		ID:         wire.ID,
		Favourites: wire.Favourites,
		Playlist:   wire.Playlist,
	}, nil
}
