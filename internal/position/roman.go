package position

import "strings"

var romanValues = map[byte]int{
	'i': 1,
	'v': 5,
	'x': 10,
	'l': 50,
	'c': 100,
	'd': 500,
	'm': 1000,
}

// Deromanize converts a roman numeral to an integer using subtractive notation:
// a numeral is subtracted when the numeral to its right is strictly larger.
// Non-canonical input ("iiiiv", "vx") yields an arithmetic result, not an error,
// and unknown characters count as zero.
func Deromanize(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	total := 0
	for i := 0; i < len(s); i++ {
		cur := romanValues[s[i]]
		if i+1 < len(s) && romanValues[s[i+1]] > cur {
			total -= cur
			continue
		}
		total += cur
	}
	return total
}

var romanTable = []struct {
	value  int
	symbol string
}{
	{1000, "m"}, {900, "cm"}, {500, "d"}, {400, "cd"},
	{100, "c"}, {90, "xc"}, {50, "l"}, {40, "xl"},
	{10, "x"}, {9, "ix"}, {5, "v"}, {4, "iv"}, {1, "i"},
}

// toLowerRoman renders n in canonical lowercase roman notation. Used for display only.
func toLowerRoman(n int) string {
	if n <= 0 {
		return "0"
	}
	var sb strings.Builder
	for _, r := range romanTable {
		for n >= r.value {
			sb.WriteString(r.symbol)
			n -= r.value
		}
	}
	return sb.String()
}
