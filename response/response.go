package response

import (
	"encoding/json"
	"net/http"
)

const contentType = "application/json; charset=utf-8"

// WriteResponse encodes result as the JSON body with HTTP 200
func WriteResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	WriteStatus(w, r, http.StatusOK, result)
}

// WriteStatus encodes result as the JSON body with the given status code
func WriteStatus(w http.ResponseWriter, r *http.Request, status int, result interface{}) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}

// WriteError encodes the Error as the JSON body with its status code
func WriteError(w http.ResponseWriter, r *http.Request, e *Error) {
	if e == nil {
		e = ErrUnexpected()
	}
	WriteStatus(w, r, e.StatusCode, e)
}
