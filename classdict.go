package pickle

import (
	"fmt"
)

// ClassDict represents an instance of a Python class that has no registered
// constructor.
//
// It holds the instance attributes, plus "__class__" with the qualified
// class name.
type ClassDict map[string]any

// NewClassDict returns empty instance of class module.name.
func NewClassDict(module, name string) ClassDict {
	return ClassDict{"__class__": qualname(module, name)}
}

// ClassName returns qualified name of the instance class.
func (cd ClassDict) ClassName() string {
	s, _ := cd["__class__"].(string)
	return s
}

// SetState replaces instance attributes with state.
//
// state is what the object's __getstate__ returned: a dict of attributes,
// or, for classes with __slots__, a (dict, slots) pair where either part may
// be None.
func (cd ClassDict) SetState(state any) error {
	class := cd.ClassName()
	clear(cd)
	cd["__class__"] = class
	return cd.update(state)
}

func (cd ClassDict) update(state any) error {
	switch state := state.(type) {
	case None, nil:
		return nil

	case Dict:
		var err error
		state.Iter()(func(k, v any) bool {
			key, ok := k.(string)
			if !ok {
				err = fmt.Errorf("attribute name must be str, not %T", k)
				return false
			}
			cd[key] = v
			return true
		})
		return err

	case map[string]any:
		for k, v := range state {
			cd[k] = v
		}
		return nil

	case ClassDict:
		for k, v := range state {
			if k != "__class__" {
				cd[k] = v
			}
		}
		return nil

	case Tuple:
		if len(state) == 2 {
			if err := cd.update(state[0]); err != nil {
				return err
			}
			return cd.update(state[1])
		}
	}

	return fmt.Errorf("unexpected state %T", state)
}

// classDictConstructor creates ClassDict for classes without registered constructor.
type classDictConstructor struct {
	module, name string
}

func (c classDictConstructor) Construct(args Tuple) (any, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("expected zero arguments for construction of ClassDict, got %d", len(args))
	}
	return NewClassDict(c.module, c.name), nil
}
