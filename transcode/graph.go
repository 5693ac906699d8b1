package transcode

import (
	"fmt"
	"strconv"
	"strings"
)

// filter is a single filter invocation of a filtergraph, e.g. scale=320:-1:flags=lanczos.
type filter struct {
	name       string
	positional []string
	named      map[string]string
}

// arg returns the named option key, or the positional option at index pos
// when the option is not named, or def.
func (f filter) arg(key string, pos int, def string) string {
	if v, ok := f.named[key]; ok {
		return v
	}
	if pos >= 0 && pos < len(f.positional) {
		return f.positional[pos]
	}
	return def
}

func (f filter) intArg(key string, pos int, def int) (int, error) {
	v := f.arg(key, pos, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid value %q for option %s", f.name, v, key)
	}
	return n, nil
}

// chain is a linear sequence of filters with labeled inputs and output.
type chain struct {
	inputs  []string
	filters []filter
	output  string
}

// parseGraph parses a filtergraph description: chains separated by ';',
// filters separated by ',', optional [label] pads before and after a chain.
func parseGraph(desc string) ([]chain, error) {
	var chains []chain
	for _, part := range strings.Split(desc, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var c chain
		for strings.HasPrefix(part, "[") {
			end := strings.IndexByte(part, ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated pad label in %q", part)
			}
			c.inputs = append(c.inputs, part[1:end])
			part = strings.TrimSpace(part[end+1:])
		}
		if strings.HasSuffix(part, "]") {
			start := strings.LastIndexByte(part, '[')
			if start < 0 {
				return nil, fmt.Errorf("invalid pad label in %q", part)
			}
			c.output = part[start+1 : len(part)-1]
			part = strings.TrimSpace(part[:start])
		}
		for _, desc := range strings.Split(part, ",") {
			f, err := parseFilter(desc)
			if err != nil {
				return nil, err
			}
			c.filters = append(c.filters, f)
		}
		chains = append(chains, c)
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("empty filtergraph")
	}
	return chains, nil
}

func parseFilter(desc string) (filter, error) {
	desc = strings.TrimSpace(desc)
	name, opts, _ := strings.Cut(desc, "=")
	if name == "" {
		return filter{}, fmt.Errorf("missing filter name in %q", desc)
	}
	f := filter{name: name, named: make(map[string]string)}
	if opts == "" {
		return f, nil
	}
	for _, opt := range strings.Split(opts, ":") {
		if k, v, ok := strings.Cut(opt, "="); ok {
			f.named[k] = v
			continue
		}
		f.positional = append(f.positional, opt)
	}
	return f, nil
}
