// Package cli provides the table and color helpers shared by the
// driftwatch subcommands.
package cli

import "os"

// colorEnabled is false when NO_COLOR is set (per no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Green wraps s in ANSI green. Returns s unchanged when NO_COLOR is set.
func Green(s string) string { return paint("32", s) }

// Yellow wraps s in ANSI yellow. Returns s unchanged when NO_COLOR is set.
func Yellow(s string) string { return paint("33", s) }

// Red wraps s in ANSI red. Returns s unchanged when NO_COLOR is set.
func Red(s string) string { return paint("31", s) }

// Dim wraps s in ANSI dim. Returns s unchanged when NO_COLOR is set.
func Dim(s string) string { return paint("2", s) }

// Severity colors a severity label: CRITICAL and HIGH red, MEDIUM and
// WARNING yellow, COMPLIANT green. Unknown labels pass through.
func Severity(label string) string {
	switch label {
	case "CRITICAL", "HIGH":
		return Red(label)
	case "MEDIUM", "WARNING":
		return Yellow(label)
	case "COMPLIANT":
		return Green(label)
	}
	return label
}
