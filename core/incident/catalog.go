package incident

import (
	"io"
	"io/fs"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	SeverityMinor = "minor"
	SeverityMajor = "major"
)

type Offense struct {
	Code        string `json:"code" yaml:"code"`
	Title       string `json:"title" yaml:"title"`
	Severity    string `json:"severity" yaml:"severity"`
	Description string `json:"description" yaml:"description"`
}

// Catalog is the school's list of punishable offenses, indexed by code.
type Catalog struct {
	offenses []Offense
	byCode   map[string]Offense
}

type catalogFile struct {
	Offenses []Offense `yaml:"offenses"`
}

// ParseCatalog reads a YAML offense catalog.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "decoding offense catalog")
	}
	return NewCatalog(f.Offenses...)
}

// LoadCatalog reads the YAML offense catalog at name in fsys.
func LoadCatalog(fsys fs.FS, name string) (*Catalog, error) {
	file, err := fsys.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "opening offense catalog")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()
	return ParseCatalog(file)
}

func NewCatalog(offenses ...Offense) (*Catalog, error) {
	c := &Catalog{
		offenses: make([]Offense, 0, len(offenses)),
		byCode:   make(map[string]Offense, len(offenses)),
	}
	for _, o := range offenses {
		o.Code = strings.ToUpper(strings.TrimSpace(o.Code))
		o.Severity = strings.ToLower(strings.TrimSpace(o.Severity))
		if o.Code == "" {
			return nil, errors.New("offense without code")
		}
		if o.Severity != SeverityMinor && o.Severity != SeverityMajor {
			return nil, errors.Errorf("offense %s: invalid severity %q", o.Code, o.Severity)
		}
		if _, dup := c.byCode[o.Code]; dup {
			return nil, errors.Errorf("offense %s: duplicate code", o.Code)
		}
		c.byCode[o.Code] = o
		c.offenses = append(c.offenses, o)
	}
	sort.Slice(c.offenses, func(i, j int) bool { return c.offenses[i].Code < c.offenses[j].Code })
	return c, nil
}

func (c *Catalog) Get(code string) (Offense, bool) {
	o, ok := c.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return o, ok
}

// All returns the offenses sorted by code.
func (c *Catalog) All() []Offense {
	all := make([]Offense, len(c.offenses))
	copy(all, c.offenses)
	return all
}

// BySeverity returns the offenses of the given severity sorted by code.
func (c *Catalog) BySeverity(severity string) []Offense {
	var res []Offense
	for _, o := range c.offenses {
		if o.Severity == severity {
			res = append(res, o)
		}
	}
	return res
}
