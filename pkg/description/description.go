// Package description loads declared circuits. A description is either the
// canonical JSON of a design (or of a single document) or an HCL file, and
// may live on disk or behind any URL the afs file service understands.
package description

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/viant/afs"

	"github.com/OpenTraceLab/kisync/internal/ctxlog"
	"github.com/OpenTraceLab/kisync/pkg/model"
)

// DefaultRoot names the root file of a description that does not say.
const DefaultRoot = "top.kicad_sch"

// Format is the syntax of a description.
type Format int

const (
	JSON Format = iota
	HCL
)

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case HCL:
		return "hcl"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// FormatOf picks the format from the file extension.
func FormatOf(location string) Format {
	if strings.EqualFold(path.Ext(location), ".hcl") {
		return HCL
	}
	return JSON
}

// IsURL reports whether location names a URL rather than a local path.
func IsURL(location string) bool {
	return strings.Contains(location, "://")
}

// Options configures decoding.
type Options struct {
	// Project is visible to HCL expressions as the variable project.
	Project string
	// Root is the root file of descriptions that do not name one.
	Root string
}

func (o Options) root() string {
	if o.Root == "" {
		return DefaultRoot
	}
	return o.Root
}

// Load reads and decodes the description at location, a path or URL.
func Load(ctx context.Context, location string, opts Options) (*model.Design, error) {
	log := ctxlog.FromContext(ctx)

	url := location
	if !IsURL(location) {
		abs, err := filepath.Abs(location)
		if err != nil {
			return nil, err
		}
		url = abs
	}

	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to read description %s: %w", location, err)
	}

	format := FormatOf(location)
	log.Debug("loading description", "location", location, "format", format.String(), "bytes", len(data))
	d, err := Decode(data, location, format, opts)
	if err != nil {
		return nil, err
	}
	log.Debug("description loaded", "location", location, "files", len(d.Documents))
	return d, nil
}

// Decode parses data in the given format. name is used in errors.
func Decode(data []byte, name string, format Format, opts Options) (*model.Design, error) {
	switch format {
	case JSON:
		d, err := model.ParseDesign(data, opts.root())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return d, nil
	case HCL:
		return decodeHCL(data, name, opts)
	}
	return nil, fmt.Errorf("%s: unknown description format %s", name, format)
}
