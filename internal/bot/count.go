package bot

import "fmt"

// countNoun formats a count with its noun, as in "1 item" or "3 items".
func countNoun(n int, singular, plural string) string {
	if n == 1 {
		return "1 " + singular
	}
	return fmt.Sprintf("%d %s", n, plural)
}
