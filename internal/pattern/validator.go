package pattern

import "fmt"

// Silence and NoChange are the two pattern sentinels that always validate
// ok without being parsed as DSL expressions.
const (
	Silence  = "silence"
	NoChange = "no_change"
)

// Validate checks that a candidate pattern string is well-formed enough to
// broadcast. The two sentinels are always ok; otherwise the whole
// string must be a single expression of balanced method calls whose
// mini-notation source-method arguments use properly nested, matching
// delimiters from the closed set []<>{}().
func Validate(p string) error {
	if p == Silence || p == NoChange {
		return nil
	}
	if err := checkBalance(p); err != nil {
		return err
	}
	if _, err := parseLayers(p); err != nil {
		return err
	}
	return nil
}

// checkBalance walks the whole string verifying that every opener from the
// closed delimiter set is closed by its matching closer, in nesting order,
// regardless of which method call it appears inside.
func checkBalance(p string) error {
	var stack []byte
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case isOpener(c):
			stack = append(stack, c)
		case isCloser(c):
			if len(stack) == 0 {
				return fmt.Errorf("unmatched closing delimiter %q at position %d", string(c), i)
			}
			top := stack[len(stack)-1]
			if closingFor(top) != c {
				return fmt.Errorf("mismatched delimiter: expected %q to close %q, found %q at position %d",
					string(closingFor(top)), string(top), string(c), i)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) != 0 {
		return fmt.Errorf("unclosed delimiter %q", string(stack[len(stack)-1]))
	}
	return nil
}
