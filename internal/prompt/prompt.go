// Package prompt asks the user which route to search.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"busfinder.onibus.dev/internal/routes"
)

var (
	// ErrNoSelection means the user chose to exit, or input ended.
	ErrNoSelection = errors.New("no route selected")
	// ErrInvalidSelection means the input was not a listed option.
	ErrInvalidSelection = errors.New("invalid selection")
)

// Menu writes the numbered route list followed by the exit option.
func Menu(out io.Writer, rs []routes.ScheduledRoute) error {
	for i, r := range rs {
		line := fmt.Sprintf("%d) %s", i+1, r.DisplayName)
		if len(r.Dates) > 0 {
			line += fmt.Sprintf(" [%s]", strings.Join(r.Dates, ", "))
		} else {
			line += " [sem datas]"
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(out, "0) Sair")
	return err
}

// Select shows the menu and reads one line from in. It returns the zero-based
// index of the chosen route.
func Select(in io.Reader, out io.Writer, rs []routes.ScheduledRoute) (int, error) {
	if err := Menu(out, rs); err != nil {
		return 0, err
	}
	if _, err := fmt.Fprint(out, "Escolha uma rota: "); err != nil {
		return 0, err
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read selection: %w", err)
	}
	if errors.Is(err, io.EOF) && strings.TrimSpace(line) == "" {
		return 0, ErrNoSelection
	}
	return ParseSelection(line, len(rs))
}

// ParseSelection validates a menu answer against n routes. "0" is
// ErrNoSelection; anything that is not 1..n wraps ErrInvalidSelection.
func ParseSelection(input string, n int) (int, error) {
	s := strings.TrimSpace(input)
	choice, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidSelection, s)
	}
	if choice == 0 {
		return 0, ErrNoSelection
	}
	if choice < 0 || choice > n {
		return 0, fmt.Errorf("%w: %d is not between 1 and %d", ErrInvalidSelection, choice, n)
	}
	return choice - 1, nil
}
