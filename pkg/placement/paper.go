package placement

import (
	"fmt"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
)

// Paper is an ISO sheet in landscape orientation.
type Paper struct {
	Name   string
	Width  float64
	Height float64
}

var (
	PaperA4 = Paper{Name: "A4", Width: 297, Height: 210}
	PaperA3 = Paper{Name: "A3", Width: 420, Height: 297}
	PaperA2 = Paper{Name: "A2", Width: 594, Height: 420}
	PaperA1 = Paper{Name: "A1", Width: 841, Height: 594}
	PaperA0 = Paper{Name: "A0", Width: 1189, Height: 841}
)

// Papers lists the sizes in growth order.
var Papers = []Paper{PaperA4, PaperA3, PaperA2, PaperA1, PaperA0}

// fixedPapers are the other KiCad sizes. They are never grown.
var fixedPapers = []Paper{
	{Name: "A5", Width: 210, Height: 148},
	{Name: "A", Width: 279.4, Height: 215.9},
	{Name: "B", Width: 431.8, Height: 279.4},
	{Name: "C", Width: 558.8, Height: 431.8},
	{Name: "D", Width: 863.6, Height: 558.8},
	{Name: "E", Width: 1117.6, Height: 863.6},
	{Name: "USLetter", Width: 279.4, Height: 215.9},
	{Name: "USLegal", Width: 355.6, Height: 215.9},
	{Name: "USLedger", Width: 431.8, Height: 279.4},
}

// UserPaper is KiCad's name for a sheet with explicit dimensions.
const UserPaper = "User"

// SheetPaper resolves a (paper ...) declaration to its dimensions. width
// and height are only read for User paper; portrait swaps a named size.
func SheetPaper(name string, width, height float64, portrait bool) (Paper, bool) {
	if name == UserPaper {
		if width <= 0 || height <= 0 {
			return Paper{}, false
		}
		return Paper{Name: name, Width: width, Height: height}, true
	}
	p, ok := LookupPaper(name)
	if !ok {
		for _, f := range fixedPapers {
			if f.Name == name {
				p, ok = f, true
				break
			}
		}
	}
	if !ok {
		return Paper{}, false
	}
	if portrait {
		p.Width, p.Height = p.Height, p.Width
	}
	return p, true
}

// PaperMargin is the frame KiCad draws inside the sheet edge. The title
// block sits in the bottom right corner of that frame.
const (
	PaperMargin      = 10.0
	titleBlockHeight = 40.0
)

// LookupPaper finds a paper size by name.
func LookupPaper(name string) (Paper, bool) {
	for _, p := range Papers {
		if p.Name == name {
			return p, true
		}
	}
	return Paper{}, false
}

// Usable returns the drawable area of p, inside the frame and above the
// title block.
func Usable(p Paper) sexp.BoundingBox {
	return sexp.BoundingBox{
		Min: sexp.Position{X: PaperMargin + 15, Y: PaperMargin + 15},
		Max: sexp.Position{X: p.Width - PaperMargin, Y: p.Height - PaperMargin - titleBlockHeight},
	}
}

// OverflowError reports that the layout does not fit the largest paper a
// caller allows.
type OverflowError struct {
	Need sexp.BoundingBox
	Max  Paper
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("placement overflow: content extends to (%.2f, %.2f), larger than %s (%gx%g mm)",
		e.Need.Max.X, e.Need.Max.Y, e.Max.Name, e.Max.Width, e.Max.Height)
}

// FitPaper returns the smallest paper, starting at current and growing no
// further than max, whose usable area holds extent. Unknown current sizes
// (custom papers) are returned unchanged.
func FitPaper(extent sexp.BoundingBox, current, max string) (Paper, error) {
	start := -1
	limit := len(Papers) - 1
	for i, p := range Papers {
		if p.Name == current {
			start = i
		}
		if p.Name == max {
			limit = i
		}
	}
	if start < 0 {
		return Paper{Name: current}, nil
	}
	if extent.IsEmpty() {
		return Papers[start], nil
	}

	for i := start; i <= limit && i < len(Papers); i++ {
		area := Usable(Papers[i])
		if extent.Max.X <= area.Max.X && extent.Max.Y <= area.Max.Y {
			return Papers[i], nil
		}
	}
	if start > limit {
		limit = start
	}
	return Paper{}, &OverflowError{Need: extent, Max: Papers[limit]}
}
