package worker

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// LoadError adds the spec file path to a load error whose message does not say
// which file failed.
type LoadError struct {
	Path string
	Kind string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("While loading %s: %s: %s", e.Path, e.Kind, e.Err.Error())
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Stack returns the stack of the wrapped error when it has one.
func (e *LoadError) Stack() string {
	var st interface{ Stack() string }
	if errors.As(e.Err, &st) {
		return e.Error() + "\n" + st.Stack()
	}
	return e.Error()
}

// wrapLoadError returns err unchanged if it already mentions path, and a LoadError otherwise.
func wrapLoadError(path string, err error) error {
	if err == nil || mentionsPath(err, path) {
		return err
	}
	return &LoadError{Path: path, Kind: errorKind(err), Err: err}
}

func mentionsPath(err error, path string) bool {
	text := err.Error()
	var st interface{ Stack() string }
	if errors.As(err, &st) {
		text += "\n" + st.Stack()
	}
	base := []string{path}
	if abs, err := filepath.Abs(path); err == nil {
		base = append(base, abs)
	}
	var candidates []string
	for _, c := range base {
		candidates = append(candidates, c,
			strings.ReplaceAll(c, `\`, "/"),
			strings.ReplaceAll(c, "/", `\`),
		)
	}
	for _, c := range candidates {
		if c != "" && strings.Contains(text, c) {
			return true
		}
	}
	return false
}

// errorKind names the dynamic type of err, e.g. "PathError" for *fs.PathError.
// Errors from errors.New and fmt.Errorf are just "Error".
func errorKind(err error) string {
	if k, ok := err.(interface{ Kind() string }); ok {
		return k.Kind()
	}
	name := fmt.Sprintf("%T", err)
	name = strings.TrimLeft(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	switch name {
	case "", "errorString", "wrapError", "wrapErrors", "joinError":
		return "Error"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
