package handler

import "net/http"

// HandleHealth reports liveness. It does not touch the database.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
