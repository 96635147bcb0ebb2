package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

var historyRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

// samplesWindow is an inclusive window in unix seconds. Zero means open.
type samplesWindow struct {
	From  int64
	To    int64
	Limit int
}

// parseSamplesQuery reads from/to (RFC3339 or unix seconds), an optional
// range shortcut (1h, 6h, 24h, 7d) ending now, and limit.
func parseSamplesQuery(r *http.Request, now time.Time) (samplesWindow, error) {
	q := r.URL.Query()
	var w samplesWindow
	var err error

	if s := q.Get("range"); s != "" {
		if q.Get("from") != "" || q.Get("to") != "" {
			return samplesWindow{}, errors.New("'range' cannot be combined with 'from' or 'to'")
		}
		d, ok := historyRanges[s]
		if !ok {
			return samplesWindow{}, errors.New("invalid 'range' (allowed: 1h, 6h, 24h, 7d)")
		}
		w.To = now.Unix()
		w.From = now.Add(-d).Unix()
	}
	if s := q.Get("from"); s != "" {
		w.From, err = parseInstant(s)
		if err != nil {
			return samplesWindow{}, errors.New("invalid 'from' (expected RFC3339 or unix seconds)")
		}
	}
	if s := q.Get("to"); s != "" {
		w.To, err = parseInstant(s)
		if err != nil {
			return samplesWindow{}, errors.New("invalid 'to' (expected RFC3339 or unix seconds)")
		}
	}
	if w.From != 0 && w.To != 0 && w.From > w.To {
		return samplesWindow{}, errors.New("'from' must be <= 'to'")
	}

	w.Limit, err = parseLimit(r)
	if err != nil {
		return samplesWindow{}, err
	}
	return w, nil
}

func parseLatestQuery(r *http.Request) (limit int, err error) {
	return parseLimit(r)
}

func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, errors.New("'limit' must be > 0")
	}
	if n > maxLimit {
		return 0, errors.New("'limit' must be <= 1000")
	}
	return n, nil
}

func parseInstant(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, errors.New("negative time")
		}
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
