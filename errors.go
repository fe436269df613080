package jsc

import "fmt"

type (
	// TodoError is raised for constructs the generator does not
	// support. It always halts compilation.
	TodoError struct {
		Msg string
	}
)

func (e TodoError) Error() string {
	return "todo: " + e.Msg
}

func todo(f string, args ...interface{}) error {
	return TodoError{Msg: fmt.Sprintf(f, args...)}
}
