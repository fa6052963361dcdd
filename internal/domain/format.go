package domain

import (
	"strconv"
	"time"
)

// FormatCount печатает число с разделителями тысяч: 1234567 -> "1,234,567".
func FormatCount(n int) string {
	s := strconv.Itoa(n)
	neg := false
	if n < 0 {
		neg, s = true, s[1:]
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

// FormatDay переводит "2006-01-02" в "Jan 2, 2006". Нераспарсенная строка возвращается как есть.
func FormatDay(day string) string {
	t, err := time.Parse(DateLayout, day)
	if err != nil {
		return day
	}
	return t.Format("Jan 2, 2006")
}
