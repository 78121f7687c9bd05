package pickle

import (
	"fmt"
	"strings"
)

// PythonException represents an exception object from Python.
//
// Its message is prefixed with the Python type, e.g.
//
//	[builtins.ValueError] invalid literal for int()
type PythonException struct {
	Module, Name string

	// Message is the formatted message including the type prefix.
	Message string

	// Args are the exception constructor arguments.
	Args Tuple

	// Attributes hold instance state restored by BUILD.
	Attributes map[string]any

	// Traceback is the remote traceback sent by Pyro in _pyroTraceback, if any.
	Traceback string
}

func (e *PythonException) Error() string {
	return e.Message
}

// PythonType returns the qualified name of the Python exception class.
func (e *PythonException) PythonType() string {
	return qualname(e.Module, e.Name)
}

// SetState restores exception attributes.
func (e *PythonException) SetState(state any) error {
	attrs := ClassDict{}
	if err := attrs.update(state); err != nil {
		return err
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]any, len(attrs))
	}
	for k, v := range attrs {
		e.Attributes[k] = v
	}

	// the traceback is sent either as one string or as list of lines
	switch tb := attrs["_pyroTraceback"].(type) {
	case string:
		e.Traceback = tb
	case *List:
		var sb strings.Builder
		for _, line := range *tb {
			fmt.Fprint(&sb, line)
		}
		e.Traceback = sb.String()
	}
	return nil
}

// NewPythonException returns exception of Python class module.name with message msg.
func NewPythonException(module, name, msg string) *PythonException {
	e := &PythonException{Module: module, Name: name}
	if msg == "" {
		e.Message = "[" + e.PythonType() + "]"
	} else {
		e.Message = "[" + e.PythonType() + "] " + msg
		e.Args = Tuple{msg}
	}
	return e
}

// isExceptionName tells whether unregistered class module.name is treated as exception.
func isExceptionName(module, name string) bool {
	switch module {
	case "exceptions": // py2
		return true
	case "builtins", "__builtin__":
	default:
		return false
	}

	switch name {
	case "GeneratorExit", "KeyboardInterrupt", "StopIteration", "SystemExit":
		return true
	}
	return strings.HasSuffix(name, "Error") ||
		strings.HasSuffix(name, "Warning") ||
		strings.HasSuffix(name, "Exception")
}

// ExceptionConstructor builds PythonException for class Module.Name.
//
// It can be registered for exception classes outside of builtins, e.g. errors
// of an application's own module.
type ExceptionConstructor struct {
	Module, Name string
}

func (c ExceptionConstructor) Construct(args Tuple) (any, error) {
	msg := ""
	if len(args) > 0 {
		msg = fmt.Sprint(args[0])
	}
	e := NewPythonException(c.Module, c.Name, msg)
	e.Args = args
	return e, nil
}
