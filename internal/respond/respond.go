// Package respond writes the JSON bodies shared by every HTTP handler.
package respond

import (
	"encoding/json"
	"net/http"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Msg writes {"msg": msg}, the body the admin UI reads for most outcomes.
func Msg(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"msg": msg})
}

// Message writes {"message": msg}. Login and a few register outcomes use this
// key instead of "msg".
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"message": msg})
}
