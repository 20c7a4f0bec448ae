package converge

import "strings"

// normalize rewrites the word connectives `and`, `or` and `not` into HCL's
// `&&`, `||` and `!` so either spelling parses. Replacement happens only on
// whole identifiers outside string literals, so field names such as
// "operand" or a quoted "and" stay untouched.
func normalize(expr string) string {
	var sb strings.Builder
	sb.Grow(len(expr))

	inString := false
	for i := 0; i < len(expr); {
		c := expr[i]

		if inString {
			sb.WriteByte(c)
			if c == '\\' && i+1 < len(expr) {
				sb.WriteByte(expr[i+1])
				i += 2
				continue
			}
			if c == '"' {
				inString = false
			}
			i++
			continue
		}

		if c == '"' {
			inString = true
			sb.WriteByte(c)
			i++
			continue
		}

		if isIdentStart(c) {
			j := i
			for j < len(expr) && isIdentPart(expr[j]) {
				j++
			}
			switch word := expr[i:j]; word {
			case "and":
				sb.WriteString("&&")
			case "or":
				sb.WriteString("||")
			case "not":
				sb.WriteString("!")
			default:
				sb.WriteString(word)
			}
			i = j
			continue
		}

		sb.WriteByte(c)
		i++
	}
	return sb.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '-'
}
