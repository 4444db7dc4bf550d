// Package response renders JSON bodies for the HTTP API.
package response

import (
	"encoding/json"
	"net/http"
)

// User facing messages.
const (
	MsgMissingFields       = "Please fill in all fields."
	MsgPasswordMismatch    = "Passwords do not match."
	MsgPasswordTooShort    = "Password must be at least %d characters long."
	MsgPasswordTooLong     = "Password must be at most %d characters long."
	MsgDuplicateAccount    = "User with this email already exists."
	MsgAccountNotFound     = "User not found."
	MsgAccountLocked       = "Your account is locked due to too many failed login attempts."
	MsgIncorrectPassword   = "Incorrect password."
	MsgInvalidOTP          = "Invalid two-factor code."
	MsgUnauthenticated     = "Please log in."
	MsgForbidden           = "You can only edit your own profile."
	MsgInvalidAvatar       = "Profile picture must be an image."
	MsgTwoFactorNotStarted = "Set up two-factor authentication first."
	MsgTwoFactorEnabled    = "Two-factor authentication is already enabled."
	MsgGenericLogin        = "Invalid email or password."
	MsgBadRequest          = "Invalid request."
	MsgNotFound            = "Not found."
	MsgInternal            = "Something went wrong. Please try again."
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes an ErrorBody with the given status code.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}
