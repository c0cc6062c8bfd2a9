package render

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Report templates are markdown with three kinds of tag:
//
//	{{name}}                       the value of Vars[name]
//	{{#if name}}...{{/if}}         kept when Vars[name] is non-empty
//	{{#unless name}}...{{/unless}} kept when Vars[name] is empty or absent
//
// Sections nest. Values are inserted verbatim and never re-scanned for tags.
var tagRe = regexp.MustCompile(`\{\{(?:(#if|#unless)\s+([A-Za-z_]\w*)\s*|/(if|unless)|([A-Za-z_]\w*))\}\}`)

// Vars maps report fields to their rendered text.
type Vars map[string]string

type nodeKind int

const (
	textNode nodeKind = iota
	fieldNode
	sectionNode
)

type node struct {
	kind     nodeKind
	value    string // literal text, field name, or section condition
	tag      string // "if" or "unless"
	children []node
}

func (n *node) add(c node) { n.children = append(n.children, c) }

// parse builds the section tree for tmpl.
func parse(tmpl string) ([]node, error) {
	root := &node{kind: sectionNode}
	stack := []*node{root}
	pos := 0
	for _, m := range tagRe.FindAllStringSubmatchIndex(tmpl, -1) {
		top := stack[len(stack)-1]
		if m[0] > pos {
			top.add(node{kind: textNode, value: tmpl[pos:m[0]]})
		}
		pos = m[1]

		switch {
		case m[2] >= 0:
			stack = append(stack, &node{
				kind:  sectionNode,
				tag:   tmpl[m[2]+1 : m[3]],
				value: tmpl[m[4]:m[5]],
			})
		case m[6] >= 0:
			closing := tmpl[m[6]:m[7]]
			if len(stack) == 1 {
				return nil, fmt.Errorf("dangling {{/%s}} at offset %d", closing, m[0])
			}
			if top.tag != closing {
				return nil, fmt.Errorf("{{/%s}} at offset %d closes {{#%s %s}}", closing, m[0], top.tag, top.value)
			}
			stack = stack[:len(stack)-1]
			stack[len(stack)-1].add(*top)
		default:
			top.add(node{kind: fieldNode, value: tmpl[m[8]:m[9]]})
		}
	}
	if len(stack) > 1 {
		top := stack[len(stack)-1]
		return nil, fmt.Errorf("unclosed {{#%s %s}} section", top.tag, top.value)
	}
	if pos < len(tmpl) {
		root.add(node{kind: textNode, value: tmpl[pos:]})
	}
	return root.children, nil
}

func execute(b *strings.Builder, nodes []node, vars Vars, missing map[string]bool) {
	for _, n := range nodes {
		switch n.kind {
		case textNode:
			b.WriteString(n.value)
		case fieldNode:
			v, ok := vars[n.value]
			if !ok {
				missing[n.value] = true
				continue
			}
			b.WriteString(v)
		case sectionNode:
			if (vars[n.value] != "") == (n.tag == "if") {
				execute(b, n.children, vars, missing)
			}
		}
	}
}

// Render expands tmpl with vars. A field referenced from a section that is
// kept but absent from vars is an error; fields inside dropped sections are
// not required.
func Render(tmpl string, vars Vars) (string, error) {
	nodes, err := parse(tmpl)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	missing := map[string]bool{}
	execute(&b, nodes, vars, missing)
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", fmt.Errorf("missing template variables: %s", strings.Join(names, ", "))
	}
	return b.String(), nil
}

// Load returns the template named name from dir when an override file exists
// there, otherwise the builtin of that name. An override that does not parse
// is an error rather than a silent fallback.
func Load(dir, name string) (string, error) {
	if strings.ContainsAny(name, `/\`) || name == ".." {
		return "", fmt.Errorf("template name %q must be a bare file name", name)
	}
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		switch {
		case err == nil:
			if _, perr := parse(string(data)); perr != nil {
				return "", fmt.Errorf("template %q in %s: %w", name, dir, perr)
			}
			return string(data), nil
		case !os.IsNotExist(err):
			return "", fmt.Errorf("read template %q: %w", name, err)
		}
	}
	tmpl, ok := builtins[name]
	if !ok {
		return "", fmt.Errorf("template %q not found in %q and no builtin exists", name, dir)
	}
	return tmpl, nil
}

// Install writes the builtin templates into dir, leaving edited copies alone.
func Install(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create templates dir: %w", err)
	}
	for name, content := range builtins {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write template %q: %w", name, err)
		}
	}
	return nil
}
