package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/LehuyH/transfer-helper/internal/domain"
	"github.com/LehuyH/transfer-helper/internal/plan"
	"github.com/LehuyH/transfer-helper/internal/storage/sqlite"
)

func check(ok bool) string {
	if ok {
		return "[x]"
	}
	return "[ ]"
}

func renderDirectory(w io.Writer, dir domain.Directory, transfer bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if transfer {
		fmt.Fprintln(tw, "ID\tNAME\tCODE\tMAJORS")
		for _, e := range dir.TransferColleges {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", e.ID, e.School.Name, e.School.Code, len(e.School.Majors))
		}
	} else {
		fmt.Fprintln(tw, "ID\tNAME\tCODE")
		for _, e := range dir.CommunityColleges {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", e.ID, e.School.Name, e.School.Code)
		}
	}
	return tw.Flush()
}

func renderPlanList(w io.Writer, plans []sqlite.Plan) error {
	if len(plans) == 0 {
		_, err := fmt.Fprintln(w, "No plans yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFROM\tUPDATED")
	for _, p := range plans {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.FromName, p.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

// renderReport prints the evaluation tree followed by the course lists.
func renderReport(w io.Writer, r plan.Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan %s from %s\n", r.PlanID, r.FromName)
	if r.Complete() {
		b.WriteString("Status: complete\n")
	} else {
		fmt.Fprintf(&b, "Status: %d group(s) outstanding\n", r.Outstanding())
	}

	for _, m := range r.Majors {
		fmt.Fprintf(&b, "\n== %s ==\n", plan.MajorLabel(m.SchoolName, m.Major))
		if m.Unavailable != "" {
			fmt.Fprintf(&b, "unavailable: %s\n", m.Unavailable)
			continue
		}
		for _, g := range m.Groups {
			kind := "optional"
			if g.Required {
				kind = "required"
			}
			fmt.Fprintf(&b, "%s %s (%s)\n", check(g.Fulfilled), g.Name, kind)
			for _, line := range strings.Split(g.Description, "\n") {
				fmt.Fprintf(&b, "    %s\n", line)
			}
			for _, msg := range g.Messages {
				fmt.Fprintf(&b, "    ! %s\n", msg)
			}
			for _, s := range g.Sections {
				fmt.Fprintf(&b, "  %s %s: %s\n", check(s.Fulfilled), s.Letter, s.Description)
				for _, c := range s.Cells {
					fmt.Fprintf(&b, "      %s %s [%s]\n", check(c.Fulfilled), c.Label, c.TemplateCellID)
					for _, o := range c.Options {
						marker := " "
						if o.Selected {
							marker = "*"
						}
						fmt.Fprintf(&b, "          %s %d: %s\n", marker, o.Index, o.Label)
					}
					for _, warn := range c.Warnings {
						fmt.Fprintf(&b, "          ! %s\n", warn)
					}
				}
			}
		}
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	if err := renderCourses(w, "Hard requirements", r.Required); err != nil {
		return err
	}
	return renderCourses(w, "Selected", r.Selected)
}

func renderCourses(w io.Writer, title string, lines []plan.CourseLine) error {
	fmt.Fprintf(w, "\n%s:\n", title)
	if len(lines) == 0 {
		_, err := fmt.Fprintln(w, "  none")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, l := range lines {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", l.Code(), l.Course.CourseTitle, l.Course.UnitsLabel(), strings.Join(l.RequiredBy, "; "))
	}
	return tw.Flush()
}
