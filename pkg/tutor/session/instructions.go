package session

import (
	"fmt"
	"strings"
)

const socraticDirective = "Use Socratic teaching - guide them to discover answers through questions rather than giving direct answers."

// Instructions builds the tutor persona for one learner. Topic is optional.
func Instructions(name string, age int, topic string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "a learner"
	}

	var b strings.Builder
	b.WriteString("You are a helpful AI tutor. ")
	if age > 0 {
		fmt.Fprintf(&b, "You're talking with %s, who is %d years old. ", name, age)
	} else {
		fmt.Fprintf(&b, "You're talking with %s. ", name)
	}
	b.WriteString(socraticDirective)
	if topic = strings.TrimSpace(topic); topic != "" {
		fmt.Fprintf(&b, " The learner wants to work on %s.", topic)
	}
	return b.String()
}
