package httpapi

import (
	"database/sql"
	"net/http"
)

// NewMux returns a mux serving the health check. Feature routes are
// registered on it by their packages and by the Register* helpers here.
func NewMux(db *sql.DB, broker BrokerStatus) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, broker)
	return mux
}
