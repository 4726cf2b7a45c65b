package cmd

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// printMarkdown renders a markdown report to the terminal. When rendering
// fails (no usable terminal profile) the raw markdown is printed instead.
func printMarkdown(source string) {
	out, err := glamour.Render(source, "auto")
	if err != nil {
		fmt.Println(source)
		return
	}
	fmt.Print(out)
}
