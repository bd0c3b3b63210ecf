package models

// SameSite is the cookie SameSite attribute accepted by the automation API.
type SameSite string

const (
	SameSiteStrict SameSite = "Strict"
	SameSiteLax    SameSite = "Lax"
	SameSiteNone   SameSite = "None"
)

// RawCookie is one entry of a browser-extension cookie export
// (Cookie-Editor, EditThisCookie). Optional fields are pointers so that
// absent values can be told apart from zero values.
type RawCookie struct {
	Name           string   `json:"name"`
	Value          string   `json:"value"`
	Domain         string   `json:"domain"`
	Path           *string  `json:"path,omitempty"`
	ExpirationDate *float64 `json:"expirationDate,omitempty"`
	HTTPOnly       *bool    `json:"httpOnly,omitempty"`
	Secure         *bool    `json:"secure,omitempty"`
	SameSite       *string  `json:"sameSite,omitempty"`
	HostOnly       *bool    `json:"hostOnly,omitempty"`
	Session        *bool    `json:"session,omitempty"`
	StoreID        *string  `json:"storeId,omitempty"`
}

// Cookie is a normalized cookie ready to be added to a browser context.
type Cookie struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain"`
	Path     string   `json:"path"`
	Expires  float64  `json:"expires"` // -1 for session cookies
	HTTPOnly bool     `json:"httpOnly"`
	Secure   bool     `json:"secure"`
	SameSite SameSite `json:"sameSite"`
}
