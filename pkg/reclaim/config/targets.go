package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/jamesainslie/reclaim/pkg/reclaim/pipeline"
)

// ErrUndefinedVariable is returned when a targets file references an
// environment variable that is not set.
var ErrUndefinedVariable = errors.New("undefined environment variable")

// LoadTargets reads a targets file into a pipeline definition. Environment
// references and a leading ~ are expanded in every path, directory and
// fallback; an unset ${VAR} is an error.
func LoadTargets(path string) (pipeline.Definition, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return pipeline.Definition{}, fmt.Errorf("failed to read targets file: %w", err)
	}

	var def pipeline.Definition
	if err := v.Unmarshal(&def); err != nil {
		return pipeline.Definition{}, fmt.Errorf("failed to unmarshal targets file: %w", err)
	}

	// viper folds map keys to lower case.
	for i := range def.Sets {
		def.Sets[i].Base = strings.ToLower(def.Sets[i].Base)
	}

	x := expander{}
	for name, b := range def.Bases {
		b.Fallbacks = x.all(b.Fallbacks)
		def.Bases[name] = b
	}
	for i := range def.Sets {
		def.Sets[i].Paths = x.all(def.Sets[i].Paths)
	}
	for i := range def.Stages {
		def.Stages[i].Dirs = x.all(def.Stages[i].Dirs)
	}
	if err := x.err(); err != nil {
		return pipeline.Definition{}, fmt.Errorf("targets file %s: %w", path, err)
	}

	if err := def.Validate(); err != nil {
		return pipeline.Definition{}, fmt.Errorf("targets file %s: %w", path, err)
	}
	return def, nil
}

// expander expands environment references and collects the names of unset
// variables.
type expander struct {
	missing map[string]bool
}

func (x *expander) all(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = x.one(s)
	}
	return out
}

// one expands s. ${NAME} must be set. $NAME is replaced only when NAME is
// set and kept as written otherwise, so Windows names such as $Recycle.Bin
// survive. $$ is a literal $.
func (x *expander) one(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '$' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		switch next := s[i+1]; {
		case next == '$':
			b.WriteByte('$')
			i++
		case next == '{':
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				b.WriteString(s[i:])
				i = len(s)
				continue
			}
			name := s[i+2 : i+2+end]
			v, ok := os.LookupEnv(name)
			if !ok {
				x.miss(name)
			}
			b.WriteString(v)
			i += 2 + end
		case isNameStart(next):
			j := i + 2
			for j < len(s) && isNameChar(s[j]) {
				j++
			}
			if v, ok := os.LookupEnv(s[i+1 : j]); ok {
				b.WriteString(v)
			} else {
				b.WriteString(s[i:j])
			}
			i = j - 1
		default:
			b.WriteByte('$')
		}
	}

	out := b.String()
	if expanded, err := ExpandPath(out); err == nil {
		out = expanded
	}
	return out
}

func (x *expander) miss(name string) {
	if x.missing == nil {
		x.missing = make(map[string]bool)
	}
	x.missing[name] = true
}

func isNameStart(c byte) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func isNameChar(c byte) bool {
	return isNameStart(c) || '0' <= c && c <= '9'
}

func (x *expander) err() error {
	if len(x.missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(x.missing))
	for n := range x.missing {
		names = append(names, n)
	}
	sort.Strings(names)
	return fmt.Errorf("%w: %s", ErrUndefinedVariable, strings.Join(names, ", "))
}
