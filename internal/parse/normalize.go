package parse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/akolanti/BidExtract/internal/domain/recordModel"
)

var sentinels = setOf(
	"",
	"null",
	"none",
	"n/a",
	"na",
	"-",
	"[không tìm thấy]",
	"không tìm thấy",
	"[not found]",
	"not found",
	"không có",
	"không có thông tin",
)

func setOf(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// isAbsent reports values that mean "the model found nothing".
func isAbsent(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return sentinels[strings.ToLower(strings.TrimSpace(t))]
	case []any:
		for _, item := range t {
			if !isAbsent(item) {
				return false
			}
		}
		return true
	}
	return false
}

// normalize converts a raw JSON value into the canonical form for kind.
// ok is false when the value is present but cannot be read as that kind.
func normalize(kind recordModel.FieldKind, v any) (any, bool) {
	switch kind {
	case recordModel.KindNumber:
		return normalizeNumber(v)
	case recordModel.KindDate:
		return normalizeDate(v)
	case recordModel.KindList:
		return normalizeList(v)
	default:
		return normalizeText(v)
	}
}

func normalizeText(v any) (any, bool) {
	switch t := v.(type) {
	case string:
		s := cleanText(t)
		return s, s != ""
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case []any:
		items, ok := normalizeList(t)
		if !ok {
			return nil, false
		}
		return strings.Join(items.([]string), "; "), true
	}
	return nil, false
}

func cleanText(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 {
		r := []rune(s)
		first, last := r[0], r[len(r)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '“' && last == '”') {
			s = strings.TrimSpace(string(r[1 : len(r)-1]))
			continue
		}
		break
	}
	return s
}

var (
	numberToken   = regexp.MustCompile(`-?\d[\d.,]*`)
	currencyWords = []string{"vnđ", "vnd", "đồng", "usd", "đ", "$", "₫"}
)

func normalizeNumber(v any) (any, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		return parseNumber(t)
	}
	return nil, false
}

// parseNumber reads "1.234.567", "1,234,567.5", "1.250.000.000 đồng" and
// similar. Text holding more than one number is rejected.
func parseNumber(s string) (any, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, w := range currencyWords {
		s = strings.ReplaceAll(s, w, "")
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")

	tokens := numberToken.FindAllString(s, -1)
	if len(tokens) != 1 {
		return nil, false
	}
	tok := strings.TrimRight(tokens[0], ".,")

	dots, commas := strings.Count(tok, "."), strings.Count(tok, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(tok, ".") > strings.LastIndex(tok, ",") {
			tok = strings.ReplaceAll(tok, ",", "")
		} else {
			tok = strings.ReplaceAll(tok, ".", "")
			tok = strings.ReplaceAll(tok, ",", ".")
		}
	case dots > 1:
		tok = strings.ReplaceAll(tok, ".", "")
	case commas > 1:
		tok = strings.ReplaceAll(tok, ",", "")
	case dots == 1:
		if groupedThousands(tok, ".") {
			tok = strings.ReplaceAll(tok, ".", "")
		}
	case commas == 1:
		if groupedThousands(tok, ",") {
			tok = strings.ReplaceAll(tok, ",", "")
		} else {
			tok = strings.ReplaceAll(tok, ",", ".")
		}
	}

	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return nil, false
	}
	return f, true
}

// groupedThousands treats a single separator followed by exactly three
// digits as a thousands separator, the Vietnamese convention.
func groupedThousands(tok, sep string) bool {
	i := strings.Index(tok, sep)
	return len(tok)-i-1 == 3
}

var (
	reISODate  = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})`)
	reDMYDate  = regexp.MustCompile(`^(\d{1,2})\s*[/.\-]\s*(\d{1,2})\s*[/.\-]\s*(\d{4})$`)
	reVietDate = regexp.MustCompile(`(?i)ngày\s*(\d{1,2})\s*tháng\s*(\d{1,2})\s*năm\s*(\d{4})`)
)

func normalizeDate(v any) (any, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	s = cleanText(s)

	var y, m, d string
	if g := reISODate.FindStringSubmatch(s); g != nil {
		y, m, d = g[1], g[2], g[3]
	} else if g := reDMYDate.FindStringSubmatch(s); g != nil {
		d, m, y = g[1], g[2], g[3]
	} else if g := reVietDate.FindStringSubmatch(s); g != nil {
		d, m, y = g[1], g[2], g[3]
	} else {
		return nil, false
	}

	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	day, _ := strconv.Atoi(d)
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return nil, false
	}
	return t.Format(time.DateOnly), true
}

func normalizeList(v any) (any, bool) {
	var raw []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			s, ok := normalizeText(item)
			if !ok {
				continue
			}
			raw = append(raw, s.(string))
		}
	case string:
		raw = strings.FieldsFunc(t, func(r rune) bool { return r == '\n' || r == ';' })
	default:
		return nil, false
	}

	items := make([]string, 0, len(raw))
	for _, s := range raw {
		s = stripBullet(cleanText(s))
		if s == "" || sentinels[strings.ToLower(s)] {
			continue
		}
		items = append(items, s)
	}
	if len(items) == 0 {
		return nil, false
	}
	return items, true
}

// stripBullet removes list markers such as "-", "•", "1.", "a)".
func stripBullet(s string) string {
	s = strings.TrimLeft(s, "-•*–+ \t")
	r := []rune(s)
	i := 0
	for i < len(r) && unicode.IsDigit(r[i]) {
		i++
	}
	if i == 0 && len(r) > 1 && unicode.IsLetter(r[0]) && r[1] == ')' {
		i = 1
	}
	if i > 0 && i < len(r) && (r[i] == '.' || r[i] == ')') && i+1 < len(r) && unicode.IsSpace(r[i+1]) {
		return strings.TrimSpace(string(r[i+1:]))
	}
	return s
}

// display renders a raw value for a malformed field.
func display(v any) string {
	switch t := v.(type) {
	case string:
		return cleanText(t)
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
