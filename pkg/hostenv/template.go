package hostenv

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
)

// Template placeholders.
const (
	// PlaceholderIf is replaced by the interface name.
	PlaceholderIf = "{if}"
	// PlaceholderDev is replaced by the sysctl device node of the
	// interface, e.g. ix0 becomes ix.0.
	PlaceholderDev = "{dev}"
	// PlaceholderQueues is replaced by the ring/queue count.
	PlaceholderQueues = "{queues}"
)

var placeholderRe = regexp.MustCompile(`\{[^{}]*\}`)

// Template is a shell command with named placeholders. A template always
// names the interface and may additionally take a queue count, in which case
// its arity is 2.
type Template struct {
	text   string
	queues bool
}

func ParseTemplate(text string) (Template, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Template{}, breverrors.NewValidationError("empty command template")
	}
	var hasIface, hasQueues bool
	for _, p := range placeholderRe.FindAllString(text, -1) {
		switch p {
		case PlaceholderIf, PlaceholderDev:
			hasIface = true
		case PlaceholderQueues:
			hasQueues = true
		default:
			return Template{}, breverrors.NewValidationError(fmt.Sprintf("template %q: unknown placeholder %s", text, p))
		}
	}
	if !hasIface {
		return Template{}, breverrors.NewValidationError(fmt.Sprintf("template %q: missing %s", text, PlaceholderIf))
	}
	return Template{text: text, queues: hasQueues}, nil
}

// MustTemplate is ParseTemplate for the built-in catalogs.
func MustTemplate(text string) Template {
	t, err := ParseTemplate(text)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Template) String() string {
	return t.text
}

// NeedsQueues reports whether the template takes a queue count.
func (t Template) NeedsQueues() bool {
	return t.queues
}

// Expand renders the command for iface. queues is only consulted by
// templates that need it and must then be positive.
func (t Template) Expand(iface string, queues int) (string, error) {
	if iface == "" {
		return "", breverrors.NewValidationError(fmt.Sprintf("template %q: empty interface name", t.text))
	}
	if t.queues && queues <= 0 {
		return "", breverrors.NewValidationError(fmt.Sprintf("template %q: queue count must be positive, got %d", t.text, queues))
	}
	r := strings.NewReplacer(
		PlaceholderIf, iface,
		PlaceholderDev, SysctlDevice(iface),
		PlaceholderQueues, strconv.Itoa(queues),
	)
	return r.Replace(t.text), nil
}

func (t Template) MarshalYAML() (interface{}, error) {
	return t.text, nil
}

// SysctlDevice converts a FreeBSD interface name to its dev.* sysctl node,
// splitting the trailing unit number: ix0 -> ix.0, ixl12 -> ixl.12.
func SysctlDevice(iface string) string {
	i := len(iface)
	for i > 0 && iface[i-1] >= '0' && iface[i-1] <= '9' {
		i--
	}
	if i == 0 || i == len(iface) {
		return iface
	}
	return iface[:i] + "." + iface[i:]
}

// Catalog maps profile names to ordered command templates. Iteration follows
// insertion order.
type Catalog struct {
	profiles *orderedmap.OrderedMap[string, []Template]
}

func NewCatalog() *Catalog {
	return &Catalog{profiles: orderedmap.New[string, []Template]()}
}

// catalogOf builds a catalog from raw template text; it panics on malformed
// templates.
func catalogOf(entries ...profileEntry) *Catalog {
	c := NewCatalog()
	for _, e := range entries {
		templates := make([]Template, 0, len(e.commands))
		for _, cmd := range e.commands {
			templates = append(templates, MustTemplate(cmd))
		}
		c.Set(e.name, templates...)
	}
	return c
}

type profileEntry struct {
	name     string
	commands []string
}

func profile(name string, commands ...string) profileEntry {
	return profileEntry{name: name, commands: commands}
}

func (c *Catalog) Set(name string, templates ...Template) {
	c.profiles.Set(name, templates)
}

func (c *Catalog) Lookup(name string) ([]Template, bool) {
	if c == nil {
		return nil, false
	}
	return c.profiles.Get(name)
}

func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, c.profiles.Len())
	for pair := c.profiles.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return c.profiles.Len()
}

func (c *Catalog) Clone() *Catalog {
	out := NewCatalog()
	if c == nil {
		return out
	}
	for pair := c.profiles.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, append([]Template(nil), pair.Value...)...)
	}
	return out
}

func (c *Catalog) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	if c == nil {
		return node, nil
	}
	for pair := c.profiles.Oldest(); pair != nil; pair = pair.Next() {
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, t := range pair.Value {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: t.String()})
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: pair.Key}, seq)
	}
	return node, nil
}
