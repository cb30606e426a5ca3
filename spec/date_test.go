package spec

import (
	"encoding/json"
	"testing"
	"time"

	"gotest.tools/assert"
)

func TestDateArithmetic(t *testing.T) {
	d := MustParseDate("2024-03-01")
	assert.Equal(t, d.AddDays(15).String(), "2024-03-16")
	assert.Equal(t, d.AddDays(-1).String(), "2024-02-29")
	assert.Equal(t, d.DaysUntil(MustParseDate("2024-03-11")), 10)
	assert.Equal(t, MustParseDate("2024-03-11").DaysUntil(d), -10)
	assert.Assert(t, d.Before(d.AddDays(1)))
	assert.Assert(t, d.AddDays(1).After(d))
	assert.Assert(t, d.Equal(NewDate(2024, time.March, 1)))
}

func TestDateAcrossDST(t *testing.T) {
	// dates are held in UTC so clock changes elsewhere do not shift the count
	d := MustParseDate("2024-03-09")
	assert.Equal(t, d.DaysUntil(MustParseDate("2024-03-12")), 3)
}

func TestToday(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	now := time.Date(2024, time.January, 10, 3, 0, 0, 0, loc)
	assert.Equal(t, Today(now).String(), "2024-01-09")
}

func TestParseDateInvalid(t *testing.T) {
	_, err := ParseDate("2024/01/10")
	assert.ErrorContains(t, err, "expected YYYY-MM-DD")

	_, err = ParseDate("2024-02-30")
	assert.Assert(t, err != nil)
}

func TestDateJSON(t *testing.T) {
	type payload struct {
		Date Date `json:"date"`
	}

	b, err := json.Marshal(payload{Date: MustParseDate("2024-01-10")})
	assert.NilError(t, err)
	assert.Equal(t, string(b), `{"date":"2024-01-10"}`)

	b, err = json.Marshal(payload{})
	assert.NilError(t, err)
	assert.Equal(t, string(b), `{"date":null}`)

	var p payload
	assert.NilError(t, json.Unmarshal([]byte(`{"date":"2024-01-20"}`), &p))
	assert.Equal(t, p.Date.String(), "2024-01-20")

	assert.Assert(t, json.Unmarshal([]byte(`{"date":"January 20"}`), &p) != nil)
	assert.Assert(t, json.Unmarshal([]byte(`{"date":20}`), &p) != nil)
}

func TestDateScanValue(t *testing.T) {
	var d Date
	assert.NilError(t, d.Scan("2024-01-10"))
	assert.Equal(t, d.String(), "2024-01-10")

	assert.NilError(t, d.Scan([]byte("2024-01-11T00:00:00Z")))
	assert.Equal(t, d.String(), "2024-01-11")

	assert.NilError(t, d.Scan(time.Date(2024, time.January, 12, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, d.String(), "2024-01-12")

	assert.NilError(t, d.Scan(nil))
	assert.Assert(t, d.IsZero())

	assert.Assert(t, d.Scan(42) != nil)

	v, err := MustParseDate("2024-01-10").Value()
	assert.NilError(t, err)
	assert.Equal(t, v, "2024-01-10")

	v, err = Date{}.Value()
	assert.NilError(t, err)
	assert.Assert(t, v == nil)
}

func TestDateInRange(t *testing.T) {
	assert.Assert(t, MustParseDate("2024-01-10").InRange())
	assert.Assert(t, MaxDate.InRange())
	assert.Equal(t, MaxDate.String(), "9999-12-31")
	assert.Assert(t, !MaxDate.AddDays(1).InRange())
	assert.Assert(t, !Date{}.InRange())
}

func TestDaysUntilFarDates(t *testing.T) {
	d := MustParseDate("2024-01-01")
	assert.Equal(t, d.DaysUntil(MaxDate), 2913173)
}
