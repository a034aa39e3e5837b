package document

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/loog-project/nmldiff/pkg/diffmap"
)

// Namelist reads and writes Fortran namelist files. Each group becomes a
// subtree, group and variable names are folded to lower case.
//
//	&grid
//	    nx = 100, ny = 50   ! points
//	    dx = 1.d3
//	    levels = 3*0.5, 1.
//	/
//
// A list with a single element reads back as a scalar.
type Namelist struct{}

func (Namelist) Name() string { return "namelist" }

func (Namelist) Decode(data []byte) (diffmap.Tree, error) {
	doc, err := parseNamelist(data)
	if err != nil {
		return nil, err
	}
	return doc.tree, nil
}

func (Namelist) Encode(tree diffmap.Tree) ([]byte, error) {
	var buf bytes.Buffer
	for i, group := range sortedKeys(tree) {
		values, ok := tree[group].(diffmap.Tree)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a namelist group", diffmap.ErrUnsupportedValue, group)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		if err := writeGroup(&buf, group, values); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

type nmlEdit struct {
	start, end int
	text       string
}

// Patch rewrites the value text of changed variables only. New variables are
// added before the group terminator, new groups at the end of the file.
func (Namelist) Patch(original []byte, tree diffmap.Tree) ([]byte, error) {
	doc, err := parseNamelist(original)
	if err != nil {
		return nil, err
	}
	for group := range doc.tree {
		if _, ok := tree[group]; !ok {
			return nil, fmt.Errorf("%w: group %q was removed", ErrPreserveUnsupported, group)
		}
	}

	var (
		edits    []nmlEdit
		appendix bytes.Buffer
	)
	for _, group := range sortedKeys(tree) {
		values, ok := tree[group].(diffmap.Tree)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a namelist group", diffmap.ErrUnsupportedValue, group)
		}
		layout, exists := doc.groups[group]
		if !exists {
			appendix.WriteByte('\n')
			if err := writeGroup(&appendix, group, values); err != nil {
				return nil, err
			}
			continue
		}

		old := doc.tree[group].(diffmap.Tree)
		for key := range old {
			if _, ok := values[key]; !ok {
				return nil, fmt.Errorf("%w: %s.%s was removed", ErrPreserveUnsupported, group, key)
			}
		}

		var added strings.Builder
		for _, key := range sortedKeys(values) {
			prev, exists := old[key]
			if !exists {
				line, err := formatAssignment(key, values[key])
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", group, key, err)
				}
				added.WriteString(line)
				continue
			}
			eq, err := diffmap.Equal(prev, values[key])
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", group, key, err)
			}
			if eq {
				continue
			}
			span := layout.vars[key]
			if span.fixed {
				return nil, fmt.Errorf("%w: %s.%s is assigned piecewise", ErrPreserveUnsupported, group, key)
			}
			text, err := formatNamelistValue(values[key])
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", group, key, err)
			}
			if span.start == span.end && text != "" && original[span.start-1] == '=' {
				text = " " + text
			}
			edits = append(edits, nmlEdit{start: span.start, end: span.end, text: text})
		}

		if added.Len() > 0 {
			at, text := lineStart(original, layout.end), added.String()
			if at < 0 {
				at, text = layout.end, "\n"+text
			}
			edits = append(edits, nmlEdit{start: at, end: at, text: text})
		}
	}

	// back to front, so earlier offsets stay valid
	order := make([]int, len(edits))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := edits[order[i]], edits[order[j]]
		if a.start != b.start {
			return a.start > b.start
		}
		return order[i] > order[j]
	})
	out := append([]byte(nil), original...)
	for _, i := range order {
		e := edits[i]
		patched := make([]byte, 0, len(out)+len(e.text))
		patched = append(patched, out[:e.start]...)
		patched = append(patched, e.text...)
		out = append(patched, out[e.end:]...)
	}

	if appendix.Len() > 0 {
		if len(out) > 0 && out[len(out)-1] != '\n' {
			out = append(out, '\n')
		}
		out = append(out, appendix.Bytes()...)
	}
	return out, nil
}

// lineStart returns the start of the line holding offset when only blanks
// precede offset on that line, -1 otherwise.
func lineStart(src []byte, offset int) int {
	i := offset
	for i > 0 && (src[i-1] == ' ' || src[i-1] == '\t') {
		i--
	}
	if i == 0 || src[i-1] == '\n' {
		return i
	}
	return -1
}

func writeGroup(buf *bytes.Buffer, name string, values diffmap.Tree) error {
	fmt.Fprintf(buf, "&%s\n", name)
	for _, key := range sortedKeys(values) {
		line, err := formatAssignment(key, values[key])
		if err != nil {
			return fmt.Errorf("%s.%s: %w", name, key, err)
		}
		buf.WriteString(line)
	}
	buf.WriteString("/\n")
	return nil
}

func formatAssignment(key string, v any) (string, error) {
	text, err := formatNamelistValue(v)
	if err != nil {
		return "", err
	}
	return "    " + key + " = " + text + "\n", nil
}

func formatNamelistValue(v any) (string, error) {
	seq, ok := v.([]any)
	if !ok {
		return formatNamelistScalar(v)
	}
	parts := make([]string, len(seq))
	for i, item := range seq {
		if item == nil {
			// a null value inside a list
			parts[i] = "1*"
			continue
		}
		s, err := formatNamelistScalar(item)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}

func formatNamelistScalar(v any) (string, error) {
	n, err := diffmap.Normalize(v)
	if err != nil {
		return "", err
	}
	switch x := n.(type) {
	case nil:
		return "", nil
	case bool:
		if x {
			return ".true.", nil
		}
		return ".false.", nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		switch {
		case math.IsNaN(x):
			return "NaN", nil
		case math.IsInf(x, 1):
			return "Infinity", nil
		case math.IsInf(x, -1):
			return "-Infinity", nil
		}
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return s, nil
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	default:
		return "", fmt.Errorf("%w: %T in a namelist", diffmap.ErrUnsupportedValue, n)
	}
}

// nmlVariable is the byte span of a variable's value list.
type nmlVariable struct {
	start, end int
	// fixed is set for variables assigned by index or more than once.
	fixed bool
}

type nmlGroup struct {
	vars map[string]*nmlVariable
	// end is the offset of the group terminator.
	end int
}

type nmlDocument struct {
	tree   diffmap.Tree
	groups map[string]*nmlGroup
}

func parseNamelist(src []byte) (*nmlDocument, error) {
	s := &nmlScanner{src: src}
	doc := &nmlDocument{tree: diffmap.Tree{}, groups: map[string]*nmlGroup{}}
	for {
		s.skipSpace()
		if s.eof() {
			return doc, nil
		}
		if c := s.peek(); c != '&' && c != '$' {
			// text outside of groups is ignored
			s.skipLine()
			continue
		}
		if err := s.group(doc); err != nil {
			return nil, err
		}
	}
}

type nmlScanner struct {
	src []byte
	pos int
}

func (s *nmlScanner) errorf(format string, args ...any) error {
	return &ParseError{
		Line: bytes.Count(s.src[:s.pos], []byte{'\n'}) + 1,
		Err:  fmt.Errorf(format, args...),
	}
}

func (s *nmlScanner) eof() bool { return s.pos >= len(s.src) }

func (s *nmlScanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.src[s.pos]
}

// skipSpace skips blanks, line breaks and ! comments.
func (s *nmlScanner) skipSpace() {
	for !s.eof() {
		switch s.src[s.pos] {
		case '!':
			s.skipLine()
		case ' ', '\t', '\r', '\n':
			s.pos++
		default:
			return
		}
	}
}

func (s *nmlScanner) skipLine() {
	for !s.eof() && s.src[s.pos] != '\n' {
		s.pos++
	}
}

func (s *nmlScanner) ident() string {
	start := s.pos
	if !isIdentStart(s.peek()) {
		return ""
	}
	for !s.eof() && isIdentChar(s.src[s.pos]) {
		s.pos++
	}
	return strings.ToLower(string(s.src[start:s.pos]))
}

// atEnd reports whether the scanner sits on "&end" or "$end".
func (s *nmlScanner) atEnd() bool {
	rest := s.src[s.pos:]
	if len(rest) < 4 || !strings.EqualFold(string(rest[1:4]), "end") {
		return false
	}
	return len(rest) == 4 || !isIdentChar(rest[4])
}

func (s *nmlScanner) group(doc *nmlDocument) error {
	s.pos++
	name := s.ident()
	switch {
	case name == "":
		return s.errorf("expected a group name")
	case name == "end":
		return s.errorf("group terminator outside of a group")
	}
	if _, dup := doc.groups[name]; dup {
		return s.errorf("duplicate group %q", name)
	}

	values := diffmap.Tree{}
	layout := &nmlGroup{vars: map[string]*nmlVariable{}}
	for {
		s.skipSpace()
		c := s.peek()
		switch {
		case s.eof():
			return s.errorf("group %q is not terminated", name)
		case c == '/':
			layout.end = s.pos
			s.pos++
		case c == '&' || c == '$':
			if !s.atEnd() {
				return s.errorf("group %q is not terminated", name)
			}
			layout.end = s.pos
			s.pos += 4
		case c == ',':
			s.pos++
			continue
		default:
			if err := s.assignment(values, layout); err != nil {
				return err
			}
			continue
		}
		doc.tree[name] = values
		doc.groups[name] = layout
		return nil
	}
}

func (s *nmlScanner) assignment(values diffmap.Tree, layout *nmlGroup) error {
	key := s.ident()
	if key == "" {
		return s.errorf("unexpected %q", s.peek())
	}
	s.skipSpace()
	index := 0
	if s.peek() == '(' {
		i, err := s.index()
		if err != nil {
			return err
		}
		index = i
		s.skipSpace()
	}
	if s.peek() != '=' {
		return s.errorf("expected '=' after %q", key)
	}
	s.pos++

	list, start, end, err := s.valueList()
	if err != nil {
		return err
	}

	v, seen := layout.vars[key]
	if !seen {
		v = &nmlVariable{}
		layout.vars[key] = v
	}
	v.start, v.end = start, end
	v.fixed = seen || index > 0

	if index > 0 {
		values[key] = assignIndexed(values[key], index, list)
		return nil
	}
	switch len(list) {
	case 0:
		values[key] = nil
	case 1:
		values[key] = list[0]
	default:
		values[key] = list
	}
	return nil
}

// index reads a one-based "(n)" subscript.
func (s *nmlScanner) index() (int, error) {
	s.pos++
	s.skipSpace()
	start := s.pos
	for !s.eof() && isDigit(s.src[s.pos]) {
		s.pos++
	}
	digits := string(s.src[start:s.pos])
	s.skipSpace()
	if digits == "" || s.peek() != ')' {
		return 0, s.errorf("unsupported subscript")
	}
	s.pos++
	i, err := strconv.Atoi(digits)
	if err != nil || i < 1 {
		return 0, s.errorf("invalid subscript %q", digits)
	}
	return i, nil
}

func assignIndexed(existing any, index int, list []any) []any {
	var seq []any
	switch x := existing.(type) {
	case nil:
	case []any:
		seq = x
	default:
		seq = []any{x}
	}
	for len(seq) < index-1+len(list) {
		seq = append(seq, nil)
	}
	copy(seq[index-1:], list)
	return seq
}

// valueList reads values up to the next assignment or the group terminator.
// start and end delimit the text of the list.
func (s *nmlScanner) valueList() (list []any, start, end int, err error) {
	start, end = -1, s.pos
	sawValue := false
	for {
		s.skipSpace()
		if s.eof() || s.atListEnd() {
			if start < 0 {
				start = end
			}
			if end < start {
				end = start
			}
			return list, start, end, nil
		}
		if start < 0 {
			start = s.pos
		}
		if s.peek() == ',' {
			if !sawValue {
				list = append(list, nil)
			}
			sawValue = false
			s.pos++
			continue
		}
		items, err := s.value()
		if err != nil {
			return nil, 0, 0, err
		}
		list = append(list, items...)
		end = s.pos
		sawValue = true
	}
}

func (s *nmlScanner) atListEnd() bool {
	switch c := s.peek(); {
	case c == '/' || c == '&' || c == '$':
		return true
	case !isIdentStart(c):
		return false
	}
	// an identifier followed by '=' or '(' starts the next assignment
	save := s.pos
	s.ident()
	s.skipSpace()
	next := s.peek()
	s.pos = save
	return next == '=' || next == '('
}

// value reads one value, expanding a repeat count "n*value" or "n*".
func (s *nmlScanner) value() ([]any, error) {
	repeat := 1
	j := s.pos
	for j < len(s.src) && isDigit(s.src[j]) {
		j++
	}
	if j > s.pos && j < len(s.src) && s.src[j] == '*' {
		n, err := strconv.Atoi(string(s.src[s.pos:j]))
		if err != nil || n < 1 {
			return nil, s.errorf("invalid repeat count %q", s.src[s.pos:j])
		}
		repeat = n
		s.pos = j + 1
		if s.eof() || isValueEnd(s.peek()) {
			return make([]any, n), nil
		}
	}

	var (
		v   any
		err error
	)
	if c := s.peek(); c == '\'' || c == '"' {
		v, err = s.quoted()
	} else {
		v, err = s.bare()
	}
	if err != nil {
		return nil, err
	}
	out := make([]any, repeat)
	for i := range out {
		out[i] = v
	}
	return out, nil
}

func (s *nmlScanner) quoted() (string, error) {
	quote := s.src[s.pos]
	s.pos++
	var sb strings.Builder
	for {
		if s.eof() {
			return "", s.errorf("unterminated string")
		}
		c := s.src[s.pos]
		s.pos++
		if c == quote {
			if s.peek() == quote {
				sb.WriteByte(quote)
				s.pos++
				continue
			}
			return sb.String(), nil
		}
		sb.WriteByte(c)
	}
}

func (s *nmlScanner) bare() (any, error) {
	start := s.pos
	for !s.eof() && !isValueEnd(s.src[s.pos]) {
		s.pos++
	}
	token := string(s.src[start:s.pos])
	v, ok := parseNamelistScalar(token)
	if !ok {
		s.pos = start
		return nil, s.errorf("invalid value %q", token)
	}
	return v, nil
}

func parseNamelistScalar(token string) (any, bool) {
	lower := strings.ToLower(token)
	switch {
	case lower == "t" || lower == "true" || strings.HasPrefix(lower, ".t"):
		return true, true
	case lower == "f" || lower == "false" || strings.HasPrefix(lower, ".f"):
		return false, true
	}
	if i, err := strconv.ParseInt(token, 10, 64); err == nil {
		return i, true
	}
	// Fortran writes double precision exponents with d
	if f, err := strconv.ParseFloat(strings.Replace(lower, "d", "e", 1), 64); err == nil {
		return f, true
	}
	return nil, false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) || c == '%' }

func isValueEnd(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', ',', '/', '!':
		return true
	}
	return false
}

func sortedKeys(t diffmap.Tree) []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
