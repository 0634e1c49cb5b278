package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/mcdev12/raidtimer/go/internal/events"
)

const maxBodyBytes = 64 << 10

// timeRequest is the body of start and stop.
type timeRequest struct {
	Time string `json:"time"`
}

// segmentRequest is the body of segment.
type segmentRequest struct {
	SegmentNum *int   `json:"segment_num"`
	Time       string `json:"time"`
	Name       string `json:"name"`
}

// statusRequest is the body of a long-poll status request. Time is the
// client's clock reading; it is logged at debug level and otherwise unused.
type statusRequest struct {
	Time       string  `json:"time"`
	UpdateID   *uint64 `json:"update_id"`
	UpdateTime string  `json:"update_time"`
}

// statusQuery is what the caller already knows about a group. With neither
// field set the request is answered immediately.
type statusQuery struct {
	updateID   *uint64
	updateTime *time.Time
}

func (q statusQuery) waits() bool {
	return q.updateID != nil || q.updateTime != nil
}

// decodeJSON decodes an optional JSON body. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func requiredTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("time is required")
	}
	return events.ParseTime(value)
}

func parseTimeRequest(r *http.Request) (time.Time, error) {
	var req timeRequest
	if err := decodeJSON(r, &req); err != nil {
		return time.Time{}, err
	}
	return requiredTime(req.Time)
}

func parseSegmentRequest(r *http.Request) (int, time.Time, string, error) {
	var req segmentRequest
	if err := decodeJSON(r, &req); err != nil {
		return 0, time.Time{}, "", err
	}
	if req.SegmentNum == nil {
		return 0, time.Time{}, "", errors.New("segment_num is required")
	}
	t, err := requiredTime(req.Time)
	if err != nil {
		return 0, time.Time{}, "", err
	}
	return *req.SegmentNum, t, req.Name, nil
}

// parseStatusRequest reads the known version from the JSON body of a POST or
// the query string of a GET. update_id wins over update_time.
func parseStatusRequest(r *http.Request) (statusQuery, error) {
	var req statusRequest
	if r.Method == http.MethodPost {
		if err := decodeJSON(r, &req); err != nil {
			return statusQuery{}, err
		}
	} else {
		q := r.URL.Query()
		if v := q.Get("update_id"); v != "" {
			id, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return statusQuery{}, fmt.Errorf("invalid update_id %q", v)
			}
			req.UpdateID = &id
		}
		req.UpdateTime = q.Get("update_time")
		req.Time = q.Get("time")
	}

	if req.Time != "" {
		zerolog.Ctx(r.Context()).Debug().
			Str("group_id", r.PathValue("id")).
			Str("client_time", req.Time).
			Msg("status request")
	}

	var query statusQuery
	if req.UpdateID != nil {
		query.updateID = req.UpdateID
		return query, nil
	}
	if req.UpdateTime != "" {
		t, err := events.ParseTime(req.UpdateTime)
		if err != nil {
			return statusQuery{}, err
		}
		query.updateTime = &t
	}
	return query, nil
}
