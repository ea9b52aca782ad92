package console

import (
	"fmt"
	"strings"

	"github.com/chzyer/readline"
)

// Confirm asks a yes or no question; no is the default.
func Confirm(question string) (bool, error) {
	answer, err := Choose(question, "n", "y")
	if err != nil {
		return false, err
	}
	return answer == "y", nil
}

// Step shows a calibration instruction and waits for enter.
func Step(instruction string) error {
	_, err := readLine(fmt.Sprintf("%s %s (press enter) ", PictoPin, instruction))
	return err
}

// Choose returns one of options, the first one when the answer matches none
// of them.
func Choose(question string, options ...string) (string, error) {
	if len(options) == 0 {
		return readLine(question)
	}
	shown := append([]string{strings.ToUpper(options[0])}, options[1:]...)
	answer, err := readLine(fmt.Sprintf("%s [%s]: ", question, strings.Join(shown, "/")))
	if err != nil {
		return "", err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	for _, o := range options {
		if answer == o {
			return o, nil
		}
	}
	return options[0], nil
}

func readLine(prompt string) (string, error) {
	rl, err := readline.New(prompt)
	if err != nil {
		return "", err
	}
	defer func() { _ = rl.Close() }()
	return rl.Readline()
}
