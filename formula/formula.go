// Package formula parses Wilkinson-style model formulas of the form
//
//	y ~ x1 + sex + s(age) + s(bmi, 8)
//
// with linear terms and s() smooth terms. A Template is a formula whose
// response side is substituted later, which is how one model formula per
// cluster is produced from a single user-supplied string.
package formula

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/neurogo/clustergam/pkg/errors"
)

// DefaultBasisDim is the basis dimension of a smooth term when s(x) is
// written without an explicit k.
const DefaultBasisDim = 10

// Smooth is an s(name, k) term.
type Smooth struct {
	Name string

	// K is the number of basis functions for the smooth.
	K int
}

// Formula is a parsed model formula.
type Formula struct {
	// Response is the name of the response variable.
	Response string

	// Linear holds the names of unpenalized linear terms, in source order.
	Linear []string

	// Smooths holds the smooth terms, in source order.
	Smooths []Smooth

	// Intercept reports whether the model includes an intercept.
	Intercept bool
}

// String reassembles the formula in canonical form.
func (f Formula) String() string {
	var sb strings.Builder
	sb.WriteString(f.Response)
	sb.WriteString(" ~ ")

	var terms []string
	if !f.Intercept {
		terms = append(terms, "0")
	}
	terms = append(terms, f.Linear...)
	for _, s := range f.Smooths {
		terms = append(terms, fmt.Sprintf("s(%s, %d)", s.Name, s.K))
	}
	if len(terms) == 0 {
		terms = []string{"1"}
	}
	sb.WriteString(strings.Join(terms, " + "))
	return sb.String()
}

// Covariates returns the names of all covariates the formula references.
func (f Formula) Covariates() []string {
	names := make([]string, 0, len(f.Linear)+len(f.Smooths))
	names = append(names, f.Linear...)
	for _, s := range f.Smooths {
		names = append(names, s.Name)
	}
	return names
}

// Parse parses a full formula with response and right-hand side.
func Parse(src string) (Formula, error) {
	lhs, rhs, ok := strings.Cut(src, "~")
	if !ok {
		return Formula{}, errors.NewValueError("formula.Parse", fmt.Sprintf("missing '~' in %q", src))
	}

	resp := strings.TrimSpace(lhs)
	if resp == "" {
		return Formula{}, errors.NewValueError("formula.Parse", fmt.Sprintf("empty response in %q", src))
	}
	if err := checkName(resp); err != nil {
		return Formula{}, err
	}

	f, err := parseRHS(rhs)
	if err != nil {
		return Formula{}, err
	}
	f.Response = resp
	return f, nil
}

// Template is a formula right-hand side whose response is filled in per
// cluster.
type Template struct {
	rhs Formula
	src string
}

// NewTemplate parses a template. The input may be a bare right-hand side
// ("s(age) + sex") or a full formula whose response acts as a placeholder
// ("y ~ s(age) + sex"); either way the response side is discarded and
// replaced by WithResponse.
func NewTemplate(src string) (Template, error) {
	rhs := src
	if _, after, ok := strings.Cut(src, "~"); ok {
		rhs = after
	}

	f, err := parseRHS(rhs)
	if err != nil {
		return Template{}, err
	}
	return Template{rhs: f, src: strings.TrimSpace(rhs)}, nil
}

// WithResponse produces a concrete Formula with the given response column
// name substituted in.
func (t Template) WithResponse(name string) Formula {
	f := t.rhs
	f.Response = name
	return f
}

// String returns the template's right-hand side as written.
func (t Template) String() string { return t.src }

// Covariates returns the names of all covariates the template references.
func (t Template) Covariates() []string { return t.rhs.Covariates() }

func parseRHS(rhs string) (Formula, error) {
	f := Formula{Intercept: true}

	rhs = strings.TrimSpace(rhs)
	if rhs == "" {
		return f, errors.NewValueError("formula.Parse", "empty right-hand side")
	}

	seen := make(map[string]bool)
	for _, raw := range strings.Split(rhs, "+") {
		term := strings.TrimSpace(raw)
		switch {
		case term == "":
			return f, errors.NewValueError("formula.Parse", fmt.Sprintf("empty term in %q", rhs))

		case term == "1":
			// explicit intercept, the default

		case term == "0" || term == "-1":
			f.Intercept = false

		case strings.HasSuffix(term, ")"):
			s, err := parseSmooth(term)
			if err != nil {
				return f, err
			}
			if seen["s("+s.Name+")"] {
				return f, errors.NewValueError("formula.Parse", fmt.Sprintf("duplicate smooth s(%s)", s.Name))
			}
			seen["s("+s.Name+")"] = true
			f.Smooths = append(f.Smooths, s)

		default:
			if err := checkName(term); err != nil {
				return f, err
			}
			if seen[term] {
				return f, errors.NewValueError("formula.Parse", fmt.Sprintf("duplicate term %q", term))
			}
			seen[term] = true
			f.Linear = append(f.Linear, term)
		}
	}

	if len(f.Linear) == 0 && len(f.Smooths) == 0 && !f.Intercept {
		return f, errors.NewValueError("formula.Parse", "formula has no terms")
	}

	return f, nil
}

func parseSmooth(term string) (Smooth, error) {
	fn, rest, ok := strings.Cut(term, "(")
	if !ok || !strings.HasSuffix(rest, ")") {
		return Smooth{}, errors.NewValueError("formula.Parse", fmt.Sprintf("malformed term %q", term))
	}
	if strings.TrimSpace(fn) != "s" {
		return Smooth{}, errors.NewValueError("formula.Parse",
			fmt.Sprintf("unknown smooth constructor %q (only s() is supported)", strings.TrimSpace(fn)))
	}

	args := strings.Split(strings.TrimSuffix(rest, ")"), ",")
	if len(args) < 1 || len(args) > 2 {
		return Smooth{}, errors.NewValueError("formula.Parse", fmt.Sprintf("s() takes 1 or 2 arguments, got %d", len(args)))
	}

	name := strings.TrimSpace(args[0])
	if err := checkName(name); err != nil {
		return Smooth{}, err
	}

	k := DefaultBasisDim
	if len(args) == 2 {
		var err error
		k, err = strconv.Atoi(strings.TrimSpace(args[1]))
		if err != nil {
			return Smooth{}, errors.NewValueError("formula.Parse", fmt.Sprintf("basis dimension in %q is not an integer", term))
		}
	}
	// A cubic basis needs at least degree+1 functions.
	if k < 4 {
		return Smooth{}, errors.NewValidationError("k", "basis dimension must be at least 4 for a cubic basis", k)
	}

	return Smooth{Name: name, K: k}, nil
}

func checkName(name string) error {
	if name == "" {
		return errors.NewValueError("formula.Parse", "empty variable name")
	}
	for i, r := range name {
		ok := r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || (i > 0 && r >= '0' && r <= '9')
		if !ok {
			return errors.NewValueError("formula.Parse", fmt.Sprintf("invalid variable name %q", name))
		}
	}
	return nil
}
