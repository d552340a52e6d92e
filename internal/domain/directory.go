package domain

import (
	"encoding/json"
	"fmt"
)

type School struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Category string `json:"category"`
}

type TransferSchool struct {
	School
	Majors []string `json:"majors"`
}

// CollegeEntry and TransferEntry decode the [id, school] tuples of data.json.
type CollegeEntry struct {
	ID     int
	School School
}

type TransferEntry struct {
	ID     int
	School TransferSchool
}

func (e *CollegeEntry) UnmarshalJSON(data []byte) error {
	return decodeTuple(data, &e.ID, &e.School)
}

func (e CollegeEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.ID, e.School})
}

func (e *TransferEntry) UnmarshalJSON(data []byte) error {
	return decodeTuple(data, &e.ID, &e.School)
}

func (e TransferEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.ID, e.School})
}

func decodeTuple(data []byte, id *int, school any) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("directory entry: expected [id, school], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], id); err != nil {
		return fmt.Errorf("directory entry id: %w", err)
	}
	if err := json.Unmarshal(raw[1], school); err != nil {
		return fmt.Errorf("directory entry %d: %w", *id, err)
	}
	return nil
}

// Directory is the static college reference data.
type Directory struct {
	CommunityColleges []CollegeEntry  `json:"communityColleges"`
	TransferColleges  []TransferEntry `json:"transferColleges"`
}

func (d Directory) CommunityCollege(id int) (School, bool) {
	for _, e := range d.CommunityColleges {
		if e.ID == id {
			return e.School, true
		}
	}
	return School{}, false
}

func (d Directory) TransferCollege(id int) (TransferSchool, bool) {
	for _, e := range d.TransferColleges {
		if e.ID == id {
			return e.School, true
		}
	}
	return TransferSchool{}, false
}

// HasMajor reports whether the transfer college publishes the major.
func (s TransferSchool) HasMajor(major string) bool {
	for _, m := range s.Majors {
		if m == major {
			return true
		}
	}
	return false
}
