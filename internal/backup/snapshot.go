package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"craftfleet/internal/fleet"
)

// Snapshot is one record of `restic snapshots --json`.
type Snapshot struct {
	ID             string    `json:"id" validate:"required"`
	ShortID        string    `json:"short_id" validate:"required"`
	Hostname       string    `json:"hostname" validate:"required"`
	Paths          []string  `json:"paths" validate:"required"`
	Tags           []string  `json:"tags" validate:"required"`
	Time           time.Time `json:"time" validate:"required"`
	Tree           string    `json:"tree" validate:"required"`
	Parent         string    `json:"parent,omitempty"`
	Username       string    `json:"username,omitempty"`
	ProgramVersion string    `json:"program_version,omitempty"`
	Excludes       []string  `json:"excludes,omitempty"`
}

// HasTags reports whether s carries every tag in tags.
func (s Snapshot) HasTags(tags []string) bool {
	for _, tag := range tags {
		if !slices.Contains(s.Tags, tag) {
			return false
		}
	}
	return true
}

var snapshotValidator = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}()

// ParseSnapshots decodes restic's JSON listing. Any record missing a
// required field fails the whole listing with a SchemaError carrying the
// raw output.
func ParseSnapshots(raw []byte) ([]Snapshot, error) {
	var snaps []Snapshot
	if err := json.Unmarshal(raw, &snaps); err != nil {
		return nil, &fleet.SchemaError{Raw: string(raw), Err: fmt.Errorf("decode snapshots: %w", err)}
	}
	for i := range snaps {
		if err := snapshotValidator.Struct(snaps[i]); err != nil {
			field := ""
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				field = fmt.Sprintf("snapshots[%d].%s", i, verrs[0].Field())
			}
			return nil, &fleet.SchemaError{Field: field, Raw: string(raw), Err: err}
		}
	}
	return snaps, nil
}

// FilterSnapshots keeps the snapshots carrying every tag, oldest first.
func FilterSnapshots(snaps []Snapshot, tags []string) []Snapshot {
	out := make([]Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.HasTags(tags) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// ValidateTags rejects tags restic would misinterpret.
func ValidateTags(tags []string) error {
	for _, tag := range tags {
		if tag == "" {
			return &fleet.ValidationError{Field: "tags", Message: "empty tag"}
		}
		if strings.IndexFunc(tag, isSpaceOrComma) >= 0 {
			return &fleet.ValidationError{Field: "tags", Message: fmt.Sprintf("tag %q contains a comma or whitespace", tag)}
		}
	}
	return nil
}

func isSpaceOrComma(r rune) bool {
	return r == ',' || unicode.IsSpace(r)
}
