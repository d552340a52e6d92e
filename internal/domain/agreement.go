package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Course is a course as it appears in agreement payloads, on either the
// sending or the receiving side.
type Course struct {
	ID           int         `json:"courseIdentifierParentId"`
	Prefix       string      `json:"prefix"`
	CourseNumber string      `json:"courseNumber"`
	CourseTitle  string      `json:"courseTitle"`
	MinUnits     float64     `json:"minUnits"`
	MaxUnits     float64     `json:"maxUnits"`
	Attributes   []Attribute `json:"attributes,omitempty"`
	Department   string      `json:"department,omitempty"`
	Begin        string      `json:"begin,omitempty"`
	End          string      `json:"end,omitempty"`
}

type Attribute struct {
	Content string `json:"content"`
}

const reuseLimitedMarker = "can only apply to one"

// Code is the short display code, e.g. "MATH1A".
func (c Course) Code() string {
	return c.Prefix + c.CourseNumber
}

// ReuseLimited reports whether the course may satisfy only one requirement
// per major.
func (c Course) ReuseLimited() bool {
	for _, a := range c.Attributes {
		if strings.Contains(strings.ToLower(a.Content), reuseLimitedMarker) {
			return true
		}
	}
	return false
}

// UnitsLabel renders the unit range, "4" or "3-5".
func (c Course) UnitsLabel() string {
	if c.MinUnits == 0 || c.MinUnits == c.MaxUnits {
		return formatUnits(c.MaxUnits)
	}
	return formatUnits(c.MinUnits) + "-" + formatUnits(c.MaxUnits)
}

func formatUnits(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

type PickOneGroup struct {
	FromClasses []Course `json:"fromClasses"`
}

type SendingArticulation struct {
	PickOneGroup []PickOneGroup `json:"pickOneGroup"`
}

type Articulation struct {
	SendingArticulation SendingArticulation `json:"sendingArticulation"`
	GeneralAttributes   []string            `json:"generalAttributes,omitempty"`
	CourseAttributes    []string            `json:"courseAttributes,omitempty"`
	SeriesAttributes    []string            `json:"seriesAttributes,omitempty"`
}

// Agreement is the articulation for one receiving-side template cell.
type Agreement struct {
	TemplateCellID string       `json:"templateCellId"`
	Articulation   Articulation `json:"articulation"`
}

type CellKind string

const (
	CellCourse           CellKind = "Course"
	CellSeries           CellKind = "Series"
	CellGeneralEducation CellKind = "GeneralEducation"
)

type GeneralEducationArea struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// RawCell is one receiving-side requirement line.
type RawCell struct {
	TemplateCellID       string                `json:"templateCellId"`
	Type                 CellKind              `json:"type"`
	Courses              []Course              `json:"courses,omitempty"`
	CourseAttributes     []string              `json:"courseAttributes,omitempty"`
	SeriesAttributes     []string              `json:"seriesAttributes,omitempty"`
	GeneralEducationArea *GeneralEducationArea `json:"generalEducationArea,omitempty"`
}

type RawRow struct {
	Courses []RawCell `json:"courses"`
}

type Advisement struct {
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	AmountUnitType string  `json:"amountUnitType"`
	AreaCount      int     `json:"areaCount,omitempty"`
}

type RawSection struct {
	SectionAdvisements []Advisement `json:"sectionAdvisements,omitempty"`
	Agreements         []RawRow     `json:"agreements"`
}

type GroupInstruction struct {
	Type           string  `json:"type"`
	Amount         float64 `json:"amount,omitempty"`
	AmountUnitType string  `json:"amountUnitType,omitempty"`
	Conjunction    string  `json:"conjunction,omitempty"`
}

type RawGroup struct {
	Sections         []RawSection      `json:"sections"`
	GroupInstruction *GroupInstruction `json:"groupInstruction,omitempty"`
	GroupAdvisements []Advisement      `json:"groupAdvisements,omitempty"`
	GroupAttributes  []string          `json:"groupAttributes,omitempty"`
}

// NamedGroups holds every raw group published under one group name.
type NamedGroups struct {
	Name   string
	Groups []RawGroup
}

// OrderedGroups decodes a JSON object of group name -> groups while keeping
// the key order of the payload.
type OrderedGroups []NamedGroups

func (o *OrderedGroups) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("groups: expected object, got %v", tok)
	}

	var out OrderedGroups
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("groups: expected key, got %v", keyTok)
		}
		var groups []RawGroup
		if err := dec.Decode(&groups); err != nil {
			return fmt.Errorf("groups %q: %w", name, err)
		}
		out = append(out, NamedGroups{Name: name, Groups: groups})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = out
	return nil
}

func (o OrderedGroups) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ng := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ng.Name)
		if err != nil {
			return nil, err
		}
		groups := ng.Groups
		if groups == nil {
			groups = []RawGroup{}
		}
		val, err := json.Marshal(groups)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MajorAgreement is the per (sending, receiving, major) payload.
type MajorAgreement struct {
	Agreements []Agreement   `json:"agreements"`
	Groups     OrderedGroups `json:"groups"`
}

// EscapeForFilename maps a major name to the file name used by the data CDN.
func EscapeForFilename(s string) string {
	r := strings.NewReplacer(" ", "_", "/", "-", ".", "+", ":", ";")
	return r.Replace(s)
}
