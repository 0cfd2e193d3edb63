// Package classify derives archive placement metadata for source files
// from %(facet)s templates in project configuration.
package classify

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"ncvault/internal/config"
	"ncvault/internal/domain"
)

// facetRef matches one %(name)s reference inside a template
var facetRef = regexp.MustCompile(`%\(([A-Za-z_][A-Za-z0-9_]*)\)s`)

// Context carries the classification outcome for one file. It is
// produced fresh per file and never reused across records.
type Context struct {
	// Project is the project the file was classified under
	Project string

	// Path is the source path that was classified
	Path string

	// Facets maps facet names to resolved values
	Facets map[string]string
}

// Facet returns a facet value and whether it is set
func (c *Context) Facet(name string) (string, bool) {
	v, ok := c.Facets[name]
	return v, ok
}

// AttrReader reads global attributes from a file's internal metadata
type AttrReader interface {
	ReadAttributes(path string) (map[string]string, error)
}

// Classifier produces placement metadata for source files
type Classifier interface {
	Classify(ctx context.Context, path string) (*Context, error)
	DeriveDatasetID(c *Context) (string, error)
	DerivePath(c *Context, format string) (string, error)
}

// TemplateClassifier implements Classifier using the %(facet)s
// templates of one project
type TemplateClassifier struct {
	project string
	cfg     *config.Project
	reader  AttrReader
	scan    *scanPattern
	forced  map[string]string
}

// NewTemplateClassifier creates a classifier for one project. The
// reader may be nil to disable attribute extraction regardless of the
// project's read_attributes setting.
func NewTemplateClassifier(project string, cfg *config.Project, reader AttrReader) (*TemplateClassifier, error) {
	c := &TemplateClassifier{
		project: project,
		cfg:     cfg,
		reader:  reader,
		forced:  make(map[string]string),
	}

	if cfg.ScanFormat != "" {
		scan, err := compileScanFormat(cfg.ScanFormat)
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", project, err)
		}
		c.scan = scan
	}

	return c, nil
}

// ForceFacet pins a facet to a fixed value that overrides every other
// source, such as product under replica mode
func (c *TemplateClassifier) ForceFacet(name, value string) {
	c.forced[name] = value
}

// Classify resolves the facet map for one source path. Facet sources
// layer in increasing precedence: the project name, configured
// defaults, global attributes read from the file, values extracted
// from the path, and forced overrides.
func (c *TemplateClassifier) Classify(ctx context.Context, path string) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	facets := map[string]string{"project": c.project}
	for name, value := range c.cfg.Defaults {
		facets[name] = value
	}

	if c.cfg.ReadAttributes && c.reader != nil {
		attrs, err := c.reader.ReadAttributes(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrUnclassifiable, path, err)
		}
		for name, value := range attrs {
			if value != "" {
				facets[name] = value
			}
		}
	}

	if c.scan != nil {
		for name, value := range c.scan.extract(path) {
			facets[name] = value
		}
	}

	for name, value := range c.forced {
		facets[name] = value
	}

	return &Context{Project: c.project, Path: path, Facets: facets}, nil
}

// DeriveDatasetID renders the project's dataset_id template
func (c *TemplateClassifier) DeriveDatasetID(cc *Context) (string, error) {
	id, err := render(c.cfg.DatasetID, cc.Facets)
	if err != nil {
		return "", fmt.Errorf("dataset id for %s: %w", cc.Path, err)
	}
	return id, nil
}

// DerivePath renders the named directory-format template into a
// destination root. An empty name selects directory_format_for_copy.
func (c *TemplateClassifier) DerivePath(cc *Context, format string) (string, error) {
	if format == "" {
		format = config.FormatCopy
	}
	tmpl, err := c.cfg.DirectoryFormat(format)
	if err != nil {
		return "", err
	}

	path, err := render(tmpl, cc.Facets)
	if err != nil {
		return "", fmt.Errorf("destination for %s: %w", cc.Path, err)
	}
	return filepath.Clean(path), nil
}

// render substitutes %(name)s references with facet values. Every
// reference must resolve to a non-empty value.
func render(tmpl string, facets map[string]string) (string, error) {
	var missing []string
	out := facetRef.ReplaceAllStringFunc(tmpl, func(ref string) string {
		name := ref[2 : len(ref)-2]
		if value, ok := facets[name]; ok && value != "" {
			return value
		}
		missing = append(missing, name)
		return ref
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", domain.ErrFacetUnresolved, strings.Join(missing, ", "))
	}
	return out, nil
}

// scanPattern is a scan_format template compiled for extraction
type scanPattern struct {
	re *regexp.Regexp
}

// compileScanFormat turns a %(facet)s template into an anchored regex
// with one named group per facet. A facet repeated in the template
// captures only its first occurrence.
func compileScanFormat(tmpl string) (*scanPattern, error) {
	var b strings.Builder
	seen := make(map[string]bool)
	last := 0
	for _, loc := range facetRef.FindAllStringSubmatchIndex(tmpl, -1) {
		b.WriteString(regexp.QuoteMeta(tmpl[last:loc[0]]))
		name := tmpl[loc[2]:loc[3]]
		if seen[name] {
			b.WriteString(`[^/]+`)
		} else {
			seen[name] = true
			fmt.Fprintf(&b, `(?P<%s>[^/]+)`, name)
		}
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(tmpl[last:]))

	// absolute templates anchor at the path start, relative ones at
	// any segment boundary
	expr := "(?:^|/)" + b.String() + "$"
	if strings.HasPrefix(tmpl, "/") {
		expr = "^" + b.String() + "$"
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: scan_format %q: %v", domain.ErrConfigInvalid, tmpl, err)
	}
	return &scanPattern{re: re}, nil
}

// extract matches a source path against the pattern and returns the
// captured facets, or nil when the path does not match. The format may
// describe the directory layout alone or include the file component,
// so both the directory and the full path are tried.
func (p *scanPattern) extract(path string) map[string]string {
	m := p.re.FindStringSubmatch(filepath.Dir(path))
	if m == nil {
		m = p.re.FindStringSubmatch(path)
	}
	if m == nil {
		return nil
	}

	facets := make(map[string]string)
	for i, name := range p.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		facets[name] = m[i]
	}
	return facets
}
