package httpsvc

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// queryReader накапливает первую ошибку разбора параметров запроса.
type queryReader struct {
	values url.Values
	err    error
}

func newQueryReader(r *http.Request) *queryReader {
	return &queryReader{values: r.URL.Query()}
}

func (q *queryReader) fail(name, expected string) {
	if q.err == nil {
		q.err = badRequest("Query parameter %s must be %s", name, expected)
	}
}

func (q *queryReader) String(name string) string {
	return strings.TrimSpace(q.values.Get(name))
}

func (q *queryReader) Int(name string) int {
	raw := q.String(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		q.fail(name, "an integer")
		return 0
	}
	return v
}

func (q *queryReader) Int64Ptr(name string) *int64 {
	raw := q.String(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		q.fail(name, "an integer")
		return nil
	}
	return &v
}

func (q *queryReader) BoolPtr(name string) *bool {
	raw := q.String(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		q.fail(name, "a boolean")
		return nil
	}
	return &v
}

func (q *queryReader) Bool(name string) bool {
	v := q.BoolPtr(name)
	return v != nil && *v
}

// TimePtr принимает RFC 3339 или дату YYYY-MM-DD. Для верхней границы дата
// расширяется до конца дня.
func (q *queryReader) TimePtr(name string, endOfDay bool) *time.Time {
	raw := q.String(name)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		q.fail(name, "a date (YYYY-MM-DD or RFC 3339)")
		return nil
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t
}

// Page читает page, limit, sortBy и sortOrder. Значения меньше 1 отклоняются.
func (q *queryReader) Page() domain.PageRequest {
	req := domain.PageRequest{
		SortBy:    q.String("sortBy"),
		SortOrder: domain.SortOrder(q.String("sortOrder")),
	}
	if q.String("page") != "" {
		req.Page = q.Int("page")
		if q.err == nil && req.Page < 1 {
			q.fail("page", "a positive integer")
		}
	}
	if q.String("limit") != "" {
		req.Limit = q.Int("limit")
		if q.err == nil && req.Limit < 1 {
			q.fail("limit", "a positive integer")
		}
	}
	return req
}

func (q *queryReader) Err() error {
	return q.err
}
