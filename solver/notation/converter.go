// Package notation converts between typeset markup (LaTeX-like) and the plain-text
// algebra notation consumed by the solving backends.
//
// Conversion is pattern-substitution based. Sequences that are not recognized pass
// through unchanged rather than failing the request.
package notation

import (
	"log/slog"
	"regexp"
	"strings"
)

// limitRewrite turns a standard indeterminate-form limit into the lim(...) marker form.
type limitRewrite struct {
	pattern     *regexp.Regexp
	replacement string
}

// Pre-compiled patterns for the conversion pipeline.
var (
	limitRewrites = []limitRewrite{
		{
			pattern:     regexp.MustCompile(`\\lim_\{[^}]*\\to\s*0\s*\}\s*\\frac\{\s*\\sin\s*[({]([^)}]+)[)}]\s*\}\{\s*([^}\s]+)\s*\}`),
			replacement: "lim(sin(${1})/${2})",
		},
		{
			pattern:     regexp.MustCompile(`\\lim_\{[^}]*\\to\s*0\s*\}\s*\\frac\{\s*1\s*-\s*\\cos\s*[({]([^)}]+)[)}]\s*\}\{\s*([^}\s]+)\s*\}`),
			replacement: "lim((1-cos(${1}))/${2})",
		},
		{
			pattern:     regexp.MustCompile(`\\lim_\{[^}]*\\to\s*0\s*\}\s*\\frac\{\s*\\tan\s*[({]([^)}]+)[)}]\s*\}\{\s*([^}\s]+)\s*\}`),
			replacement: "lim(tan(${1})/${2})",
		},
		{
			pattern:     regexp.MustCompile(`\\lim_\{[^}]*\\to\s*0\s*\}\s*\\frac\{\s*\\ln\s*[({]\s*1\s*\+\s*([^)}]+)[)}]\s*\}\{\s*([^}\s]+)\s*\}`),
			replacement: "lim(ln(1+${1})/${2})",
		},
	}

	scriptGroup      = regexp.MustCompile(`([\^_])\{([^{}]*)\}`)
	simpleScript     = regexp.MustCompile(`^(-?[0-9]+(\.[0-9]+)?|[A-Za-z]|\\[A-Za-z]+)$`)
	whitespace       = regexp.MustCompile(`\s+`)
	operatorSpacing  = regexp.MustCompile(`\s*([-+*/^=<>!~,()∫_])\s*`)
	internalFraction = regexp.MustCompile(`\(([^()]+)\)/\(([^()]+)\)`)
	internalRadical  = regexp.MustCompile(`sqrt\(([^()]+)\)`)
	numericExponent  = regexp.MustCompile(`\^([0-9]+(?:\.[0-9]+)?)`)
	spacedCommands   = regexp.MustCompile(`\s*(\\(?:cdot|div|leq|geq|neq|approx|pm|mp|to))\s*`)
	spacedOperators  = regexp.MustCompile(`\s*([+=<>])\s*`)
)

// ToInternal converts typeset markup into internal algebra notation.
func ToInternal(markup string) string {
	if markup == "" {
		return ""
	}

	out := markup
	if strings.Contains(out, `\lim`) {
		out = rewriteKnownLimits(out)
	}
	out = unwrapStructures(out)
	out = flattenScripts(out)
	out = substituteCommands(out)
	out = unicodeSymbols.Replace(out)
	out = strings.NewReplacer("{", "(", "}", ")").Replace(out)
	out = collapseSpacing(out)

	slog.Debug("converted markup to internal notation", "markup", markup, "internal", out)
	return out
}

// ToMarkup converts internal algebra notation back into typeset markup.
func ToMarkup(internal string) string {
	if internal == "" {
		return ""
	}

	out := internalFraction.ReplaceAllString(internal, `\frac{${1}}{${2}}`)
	out = internalRadical.ReplaceAllString(out, `\sqrt{${1}}`)
	out = restoreNames(out)
	out = restoreOperators(out)
	out = numericExponent.ReplaceAllString(out, `^{${1}}`)
	out = spaceOperators(out)

	slog.Debug("converted internal notation to markup", "internal", internal, "markup", out)
	return out
}

func rewriteKnownLimits(s string) string {
	for _, rw := range limitRewrites {
		if rw.pattern.MatchString(s) {
			return rw.pattern.ReplaceAllString(s, rw.replacement)
		}
	}
	return s
}

// unwrapStructures replaces \frac{a}{b} with (a)/(b) and \sqrt{a} with sqrt(a),
// scanning balanced braces so nested groups survive.
func unwrapStructures(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '\\' {
			if out, next, ok := unwrapFraction(s, i); ok {
				b.WriteString(out)
				i = next
				continue
			}
			if out, next, ok := unwrapRadical(s, i); ok {
				b.WriteString(out)
				i = next
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func unwrapFraction(s string, i int) (string, int, bool) {
	var j int
	switch {
	case hasCommandAt(s, i, "frac"):
		j = i + len(`\frac`)
	case hasCommandAt(s, i, "dfrac"), hasCommandAt(s, i, "tfrac"):
		j = i + len(`\dfrac`)
	default:
		return "", i, false
	}
	num, j, ok := readGroup(s, skipSpaces(s, j), '{', '}')
	if !ok {
		return "", i, false
	}
	den, j, ok := readGroup(s, skipSpaces(s, j), '{', '}')
	if !ok {
		return "", i, false
	}
	return "(" + unwrapStructures(num) + ")/(" + unwrapStructures(den) + ")", j, true
}

func unwrapRadical(s string, i int) (string, int, bool) {
	if !hasCommandAt(s, i, "sqrt") {
		return "", i, false
	}
	j := skipSpaces(s, i+len(`\sqrt`))
	index, next, hasIndex := readGroup(s, j, '[', ']')
	if hasIndex {
		j = skipSpaces(s, next)
	}
	radicand, j, ok := readGroup(s, j, '{', '}')
	if !ok {
		return "", i, false
	}
	radicand = unwrapStructures(radicand)
	if hasIndex && strings.TrimSpace(index) != "" {
		return "(" + radicand + ")^(1/" + strings.TrimSpace(index) + ")", j, true
	}
	return "sqrt(" + radicand + ")", j, true
}

// readGroup returns the content of the balanced group opening at s[i].
func readGroup(s string, i int, open, closing byte) (string, int, bool) {
	if i >= len(s) || s[i] != open {
		return "", i, false
	}
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[i+1 : j], j + 1, true
			}
		}
	}
	return "", i, false
}

func hasCommandAt(s string, i int, name string) bool {
	cmd := `\` + name
	if !strings.HasPrefix(s[i:], cmd) {
		return false
	}
	end := i + len(cmd)
	return end == len(s) || !isLetter(s[end])
}

func skipSpaces(s string, i int) int {
	for i < len(s) && s[i] == ' ' {
		i++
	}
	return i
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// flattenScripts removes the braces of ^{...} and _{...}, innermost first.
func flattenScripts(s string) string {
	for {
		next := scriptGroup.ReplaceAllStringFunc(s, func(m string) string {
			parts := scriptGroup.FindStringSubmatch(m)
			marker, content := parts[1], strings.TrimSpace(parts[2])
			switch {
			case content == "":
				return marker
			case simpleScript.MatchString(content):
				return marker + content
			default:
				return marker + "(" + content + ")"
			}
		})
		if next == s {
			return s
		}
		s = next
	}
}

func substituteCommands(s string) string {
	return commandPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := m[1:]
		if v, ok := commandTable[name]; ok {
			return v
		}
		if v, ok := punctuationCommands[name]; ok {
			return v
		}
		slog.Debug("unrecognized markup command passed through", "command", m)
		return m
	})
}

func collapseSpacing(s string) string {
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	return operatorSpacing.ReplaceAllString(s, "${1}")
}

// restoreNames maps bare function, constant and Greek names back to commands.
func restoreNames(s string) string {
	locs := letterRun.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		run := s[loc[0]:loc[1]]
		b.WriteString(s[last:loc[0]])
		last = loc[1]
		if strings.HasPrefix(run, `\`) {
			b.WriteString(run)
			continue
		}
		cmd, ok := nameCommands[run]
		if !ok {
			b.WriteString(run)
			continue
		}
		b.WriteString(cmd)
		if loc[1] < len(s) && isLetter(s[loc[1]]) {
			b.WriteByte(' ')
		}
	}
	b.WriteString(s[last:])
	return b.String()
}

func restoreOperators(s string) string {
	locs := operatorPattern.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		b.WriteString(s[last:loc[0]])
		last = loc[1]
		op := s[loc[0]:loc[1]]
		for _, oc := range operatorCommands {
			if oc.internal == op {
				b.WriteString(oc.command)
				break
			}
		}
		if loc[1] < len(s) && isLetter(s[loc[1]]) {
			b.WriteByte(' ')
		}
	}
	b.WriteString(s[last:])
	return b.String()
}

// spaceOperators puts single spaces around binary operators; a minus is binary
// only when it follows an operand.
func spaceOperators(s string) string {
	s = spacedCommands.ReplaceAllString(s, " ${1} ")
	s = spacedOperators.ReplaceAllString(s, " ${1} ")

	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			b.WriteByte(s[i])
			continue
		}
		if isOperandEnd(lastNonSpace(b.String())) {
			trimTrailingSpace(&b)
			b.WriteString(" - ")
			for i+1 < len(s) && s[i+1] == ' ' {
				i++
			}
			continue
		}
		b.WriteByte('-')
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(b.String(), " "))
}

func lastNonSpace(s string) byte {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != ' ' {
			return s[i]
		}
	}
	return 0
}

func isOperandEnd(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == ')' || c == '}' || c == '.'
}

func trimTrailingSpace(b *strings.Builder) {
	s := strings.TrimRight(b.String(), " ")
	b.Reset()
	b.WriteString(s)
}
