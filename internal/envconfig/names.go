package envconfig

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"craftfleet/internal/fleet"
)

var envNamePattern = regexp.MustCompile(`^env([1-9][0-9]*)$`)

// ParseName returns the numeric id of an environment name such as "env3".
func ParseName(name string) (int, error) {
	m := envNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, &fleet.ValidationError{
			Field:   "env",
			Message: fmt.Sprintf("environment name %q must look like env<N> with N >= 1", name),
		}
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, &fleet.ValidationError{Field: "env", Message: err.Error()}
	}
	return id, nil
}

// NameFor returns the environment name for id.
func NameFor(id int) string {
	return "env" + strconv.Itoa(id)
}

// NextID returns the smallest id >= 1 not present in existing.
func NextID(existing []int) int {
	ids := append([]int(nil), existing...)
	sort.Ints(ids)
	next := 1
	for _, id := range ids {
		if id < next {
			continue
		}
		if id > next {
			break
		}
		next++
	}
	return next
}

var reservedWorldGroups = map[string]struct{}{
	"enabled_groups": {},
	"defaultconfigs": {},
	"velocity":       {},
	"certs":          {},
	"archive":        {},
	"gen":            {},
	"env":            {},
}

// IsReservedWorldGroup reports whether name is a path or key that can never
// be a world group.
func IsReservedWorldGroup(name string) bool {
	_, ok := reservedWorldGroups[name]
	return ok
}
