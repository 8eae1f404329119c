package connect

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/staffcore/internal/models"
)

// fields flattens one satellite record to its JSON field names. A nil
// record yields an empty map.
func fields(v any) (map[string]string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// changed returns the fields of theirs that differ from ours after
// trimming. Absent and empty compare equal.
func changed(ours, theirs any) (map[string]string, error) {
	a, err := fields(ours)
	if err != nil {
		return nil, fmt.Errorf("flatten agency record: %w", err)
	}
	b, err := fields(theirs)
	if err != nil {
		return nil, fmt.Errorf("flatten reported record: %w", err)
	}
	diff := map[string]string{}
	for k, v := range b {
		if strings.TrimSpace(v) != strings.TrimSpace(a[k]) {
			diff[k] = strings.TrimSpace(v)
		}
	}
	for k, v := range a {
		if _, ok := b[k]; !ok && strings.TrimSpace(v) != "" {
			diff[k] = ""
		}
	}
	return diff, nil
}

type axis struct {
	kind         models.RequestKind
	ours, theirs any
}

func axes(ours, theirs *models.StaffSatellites) []axis {
	return []axis{
		{models.RequestProfile, ours.Profile, theirs.Profile},
		{models.RequestMynumber, ours.Mynumber, theirs.Mynumber},
		{models.RequestBank, ours.Bank, theirs.Bank},
		{models.RequestInternational, ours.International, theirs.International},
		{models.RequestDisability, ours.Disability, theirs.Disability},
	}
}

// Diff lists a pending request for every axis where the reported data
// differs from the agency's record. The payload holds the differing
// fields with the reported values.
func Diff(ours, theirs *models.StaffSatellites) ([]models.DerivedRequest, error) {
	if ours == nil {
		ours = &models.StaffSatellites{}
	}
	if theirs == nil {
		theirs = &models.StaffSatellites{}
	}
	var out []models.DerivedRequest
	for _, ax := range axes(ours, theirs) {
		d, err := changed(ax.ours, ax.theirs)
		if err != nil {
			return nil, fmt.Errorf("diff %s: %w", ax.kind, err)
		}
		if len(d) == 0 {
			continue
		}
		payload, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", ax.kind, err)
		}
		out = append(out, models.DerivedRequest{Kind: ax.kind, Status: RequestPending, Payload: payload})
	}
	return out, nil
}
