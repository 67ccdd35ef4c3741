package codec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is ISO-8601 in UTC with microsecond precision.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in the wire layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}

// ValidationError reports a request that cannot be built from incomplete
// domain data. Nothing is sent when one is returned.
type ValidationError struct {
	Operation string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid request: %s", e.Operation, e.Reason)
}

func invalid(op, format string, args ...any) error {
	return &ValidationError{Operation: op, Reason: fmt.Sprintf(format, args...)}
}

// ExcludedVersion is one "number@version" entry of an exclusion list.
type ExcludedVersion struct {
	Number  int64
	Version int
}

// ParseExcludedIDs parses an admin exclusion list such as "123, 456@2".
// Bare numbers exclude every version of an exercise; "n@v" excludes one.
// Results are sorted and de-duplicated.
func ParseExcludedIDs(s string) (numbers []int64, versions []ExcludedVersion, err error) {
	seenN := map[int64]bool{}
	seenV := map[ExcludedVersion]bool{}
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' || r == '\t' }) {
		num, ver, hasVer := strings.Cut(field, "@")
		n, perr := strconv.ParseInt(num, 10, 64)
		if perr != nil || n <= 0 {
			return nil, nil, fmt.Errorf("bad exercise number %q", field)
		}
		if !hasVer {
			if !seenN[n] {
				seenN[n] = true
				numbers = append(numbers, n)
			}
			continue
		}
		v, perr := strconv.Atoi(ver)
		if perr != nil || v <= 0 {
			return nil, nil, fmt.Errorf("bad exercise version %q", field)
		}
		ev := ExcludedVersion{Number: n, Version: v}
		if !seenV[ev] {
			seenV[ev] = true
			versions = append(versions, ev)
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	sort.Slice(versions, func(i, j int) bool {
		if versions[i].Number != versions[j].Number {
			return versions[i].Number < versions[j].Number
		}
		return versions[i].Version < versions[j].Version
	})
	return numbers, versions, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
