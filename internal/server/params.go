package server

import (
	"net/http"
	"time"

	"github.com/chatlens/chatlens/internal/timeutil"
)

// parseDate accepts RFC 3339 timestamps and bare dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// parseDateRange extracts and validates the required start/end
// query parameters. No datastore call happens on a rejected
// range. Equal start and end is allowed and yields an empty
// window.
func parseDateRange(w http.ResponseWriter, r *http.Request) (start, end time.Time, ok bool) {
	q := r.URL.Query()
	rawStart, rawEnd := q.Get("start"), q.Get("end")
	if rawStart == "" {
		writeError(w, http.StatusBadRequest, "start is required")
		return start, end, false
	}
	if rawEnd == "" {
		writeError(w, http.StatusBadRequest, "end is required")
		return start, end, false
	}

	start, err := parseDate(rawStart)
	if err != nil {
		writeError(w, http.StatusBadRequest,
			"invalid start: use RFC 3339 or YYYY-MM-DD")
		return start, end, false
	}
	end, err = parseDate(rawEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest,
			"invalid end: use RFC 3339 or YYYY-MM-DD")
		return start, end, false
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "start must not be after end")
		return start, end, false
	}
	return start, end, true
}

// parsePeriod parses the date range and derives the comparison
// window.
func parsePeriod(w http.ResponseWriter, r *http.Request) (timeutil.Period, bool) {
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return timeutil.Period{}, false
	}
	return timeutil.PreviousPeriod(start, end), true
}

// parseTimezone validates the optional timezone parameter
// against the IANA database. Empty means UTC.
func parseTimezone(w http.ResponseWriter, r *http.Request) (string, bool) {
	tz := r.URL.Query().Get("timezone")
	if tz == "" {
		return "UTC", true
	}
	if _, err := time.LoadLocation(tz); err != nil {
		writeError(w, http.StatusBadRequest, "invalid timezone: "+tz)
		return "", false
	}
	return tz, true
}

// parseChartGranularity returns the requested chart granularity,
// defaulting from the range span when the parameter is absent.
func parseChartGranularity(
	w http.ResponseWriter, r *http.Request, start, end time.Time,
) (timeutil.Granularity, bool) {
	raw := r.URL.Query().Get("granularity")
	if raw == "" {
		return timeutil.ResolveGranularity(start, end), true
	}
	g, err := timeutil.ParseGranularity(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return g, true
}

// requiredParam extracts a non-empty query parameter or rejects
// the request.
func requiredParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		writeError(w, http.StatusBadRequest, name+" is required")
		return "", false
	}
	return v, true
}
