package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Colors for consistent UI
const (
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorReset  = "\033[0m"
)

// Console reads answers and prints coloured messages.
type Console struct {
	in  *bufio.Reader
	out io.Writer
	eof bool
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// PrintWarning displays a warning message with consistent formatting
func (c *Console) PrintWarning(message string) {
	fmt.Fprintf(c.out, "%s\nWarning:%s\n", ColorYellow, ColorReset)
	fmt.Fprintf(c.out, "%s%s%s\n", ColorYellow, message, ColorReset)
}

// PrintError displays an error message with consistent formatting
func (c *Console) PrintError(message string) {
	fmt.Fprintf(c.out, "\n%sError: %s%s\n", ColorRed, message, ColorReset)
}

// PrintSuccess displays a success message with consistent formatting
func (c *Console) PrintSuccess(message string) {
	fmt.Fprintf(c.out, "\n%s%s%s\n", ColorGreen, message, ColorReset)
}

// PrintInfo displays an info message with consistent formatting
func (c *Console) PrintInfo(message string) {
	fmt.Fprintf(c.out, "%s%s%s", ColorBlue, message, ColorReset)
}

func (c *Console) PrintItem(message string) {
	fmt.Fprintf(c.out, "%s- %s%s\n", ColorGreen, message, ColorReset)
}

// ReadString reads a line with trimming. Closed input reads as empty and
// is remembered by Closed.
func (c *Console) ReadString(prompt string) string {
	c.PrintInfo(prompt)
	input, err := c.in.ReadString('\n')
	if err != nil {
		c.eof = true
	}
	return strings.TrimSpace(input)
}

// Closed reports whether the input has been exhausted.
func (c *Console) Closed() bool {
	return c.eof
}

// ReadInt reads an integer with validation
func (c *Console) ReadInt(prompt string, min, max int) (int, error) {
	input := c.ReadString(prompt)

	value, err := strconv.Atoi(input)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", input)
	}

	if value < min || value > max {
		return 0, fmt.Errorf("value must be between %d and %d", min, max)
	}

	return value, nil
}

// ReadDate reads an optional YYYY-MM-DD date. An empty answer returns "".
func (c *Console) ReadDate(prompt string) (string, error) {
	input := c.ReadString(prompt)
	if input == "" {
		return "", nil
	}
	if input == "today" {
		return time.Now().Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", input); err != nil {
		return "", fmt.Errorf("invalid date format: %s. Please use YYYY-MM-DD", input)
	}
	return input, nil
}

// SelectFile lists the files of dir ending in one of exts and returns the
// path of the chosen one.
func (c *Console) SelectFile(dir, label string, exts ...string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("error reading %s folder: %s", label, err.Error())
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range exts {
			if ext == want {
				files = append(files, e.Name())
				break
			}
		}
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no %s found in %s", label, dir)
	}

	fmt.Fprintf(c.out, "%s\nAvailable %s:%s\n", ColorGreen, label, ColorReset)
	for i, name := range files {
		fmt.Fprintf(c.out, "%s%d. %s%s\n", ColorGreen, i+1, name, ColorReset)
	}

	choice, err := c.ReadInt(fmt.Sprintf("Enter the number of the %s you want to use: ", strings.TrimSuffix(label, "s")), 1, len(files))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, files[choice-1]), nil
}

// Choose lists options and returns the chosen one.
func (c *Console) Choose(label string, options []string) (string, error) {
	fmt.Fprintf(c.out, "%s\nAvailable %s:%s\n", ColorGreen, label, ColorReset)
	for i, o := range options {
		fmt.Fprintf(c.out, "%s%d. %s%s\n", ColorGreen, i+1, o, ColorReset)
	}
	choice, err := c.ReadInt("Enter your choice: ", 1, len(options))
	if err != nil {
		return "", err
	}
	return options[choice-1], nil
}
