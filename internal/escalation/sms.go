package escalation

import (
	"strconv"
	"strings"
)

const mapLinkBase = "https://maps.google.com/?q="

// MapLink returns a link showing the given position on a map
func MapLink(latitude, longitude float64) string {
	return mapLinkBase + strconv.FormatFloat(latitude, 'f', -1, 64) + "," + strconv.FormatFloat(longitude, 'f', -1, 64)
}

// BuildMessage appends a map link for the position to the crash message
func BuildMessage(crashMessage string, latitude, longitude float64) string {
	link := MapLink(latitude, longitude)
	if crashMessage == "" {
		return link
	}
	return crashMessage + " " + link
}

// SplitNumbers splits a comma separated phone number list. Numbers are not
// validated; empty entries are kept and passed to the transport as-is.
func SplitNumbers(phoneNumbers string) []string {
	numbers := strings.Split(phoneNumbers, ",")
	for i, n := range numbers {
		numbers[i] = strings.TrimSpace(n)
	}
	return numbers
}
