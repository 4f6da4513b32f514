package pattern

// hasNestedQuantifiers scans a pattern for a quantified group that is itself
// quantified, the shape behind catastrophic backtracking: (a+)+, ([a-z]*)+,
// (x{2,}){3}. The scan tracks group nesting, character classes and escapes
// directly; it does not need a full regex parse.
func hasNestedQuantifiers(pattern string) bool {
	type groupState struct {
		hasQuantifier bool
	}

	stack := make([]groupState, 0, 8)
	inClass := false
	escaped := false
	lastClosedGroupHadQuantifier := false

	for i := 0; i < len(pattern); {
		ch := pattern[i]

		if escaped {
			escaped = false
			lastClosedGroupHadQuantifier = false
			i++
			continue
		}
		if ch == '\\' {
			escaped = true
			lastClosedGroupHadQuantifier = false
			i++
			continue
		}

		if inClass {
			if ch == ']' {
				inClass = false
			}
			lastClosedGroupHadQuantifier = false
			i++
			continue
		}
		if ch == '[' {
			inClass = true
			lastClosedGroupHadQuantifier = false
			i++
			continue
		}

		if width, ok := quantifierWidth(pattern, i); ok {
			if lastClosedGroupHadQuantifier {
				return true
			}
			if len(stack) > 0 {
				stack[len(stack)-1].hasQuantifier = true
			}
			lastClosedGroupHadQuantifier = false
			i += width
			continue
		}

		switch ch {
		case '(':
			stack = append(stack, groupState{})
			lastClosedGroupHadQuantifier = false
		case ')':
			if len(stack) == 0 {
				lastClosedGroupHadQuantifier = false
				i++
				continue
			}
			group := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if group.hasQuantifier && len(stack) > 0 {
				stack[len(stack)-1].hasQuantifier = true
			}
			lastClosedGroupHadQuantifier = group.hasQuantifier
		default:
			lastClosedGroupHadQuantifier = false
		}

		i++
	}

	return false
}

// quantifierWidth reports whether a quantifier starts at position i and how
// many bytes it spans. Recognizes *, +, ? and bounded repetitions {n},
// {n,}, {n,m}. A '{' that does not form a valid bound is a literal.
func quantifierWidth(pattern string, i int) (int, bool) {
	if i >= len(pattern) {
		return 0, false
	}

	switch pattern[i] {
	case '*', '+', '?':
		return 1, true
	case '{':
		j := i + 1
		digits := 0
		for j < len(pattern) && pattern[j] >= '0' && pattern[j] <= '9' {
			j++
			digits++
		}
		if j < len(pattern) && pattern[j] == ',' {
			j++
			for j < len(pattern) && pattern[j] >= '0' && pattern[j] <= '9' {
				j++
				digits++
			}
		}
		if digits == 0 || j >= len(pattern) || pattern[j] != '}' {
			return 0, false
		}
		return j - i + 1, true
	default:
		return 0, false
	}
}
