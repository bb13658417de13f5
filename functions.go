package gridline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// FunctionDef is a formula function written in the formula language itself.
// Body is an expression over Params; it may call the built-in functions and
// any function defined before it.
//
//	functions:
//	  - name: TAX
//	    params: [amount, rate]
//	    body: ROUND(amount * rate, 2)
type FunctionDef struct {
	Name   string   `yaml:"name"`
	Params []string `yaml:"params"`
	Body   string   `yaml:"body"`
	Doc    string   `yaml:"doc,omitempty"`
}

type functionFile struct {
	Functions []FunctionDef `yaml:"functions"`
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ReadFunctions decodes a YAML functions file.
func ReadFunctions(r io.Reader) ([]FunctionDef, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file functionFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read functions: %w", err)
	}
	seen := make(map[string]bool, len(file.Functions))
	for i, def := range file.Functions {
		if err := def.validate(); err != nil {
			return nil, fmt.Errorf("read functions: entry %d: %w", i+1, err)
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("read functions: %s defined twice", def.Name)
		}
		seen[def.Name] = true
	}
	return file.Functions, nil
}

func (def FunctionDef) validate() error {
	if !identRe.MatchString(def.Name) {
		return fmt.Errorf("invalid function name %q", def.Name)
	}
	for i, p := range def.Params {
		if !identRe.MatchString(p) {
			return fmt.Errorf("%s: invalid parameter name %q", def.Name, p)
		}
		if slices.Contains(def.Params[:i], p) {
			return fmt.Errorf("%s: parameter %s repeated", def.Name, p)
		}
	}
	if def.Body == "" {
		return fmt.Errorf("%s: empty body", def.Name)
	}
	return nil
}

// compile builds the native function for def. known holds the functions the
// body may call besides the built-ins.
func (def FunctionDef) compile(known map[string]any) (func(args ...any) (any, error), error) {
	env := make(map[string]any, len(builtins)+len(known)+len(def.Params))
	for name, fn := range builtins {
		env[name] = fn
	}
	for name, fn := range known {
		env[name] = fn
	}
	for _, p := range def.Params {
		env[p] = nil
	}
	program, err := expr.Compile(def.Body, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", def.Name, err)
	}
	return def.bind(program, env), nil
}

func (def FunctionDef) bind(program *vm.Program, base map[string]any) func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		if len(args) != len(def.Params) {
			return nil, fmt.Errorf("%s expects %d argument(s), got %d", def.Name, len(def.Params), len(args))
		}
		env := make(map[string]any, len(base))
		for name, v := range base {
			env[name] = v
		}
		for i, p := range def.Params {
			env[p] = args[i]
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", def.Name, err)
		}
		return out, nil
	}
}

// DefineFunctions compiles defs and registers them with the document's
// evaluator, then recomputes every formula so existing cells pick them up.
// Nothing is registered when any definition fails to compile.
func (d *Document) DefineFunctions(defs []FunctionDef) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.unlock()
	if err := d.defineLocked(defs); err != nil {
		return err
	}
	d.sh.recompute(d.sh.formulas())
	return nil
}

func (d *Document) defineLocked(defs []FunctionDef) error {
	if d.funcs == nil {
		return errors.New("define functions: evaluator does not accept functions")
	}
	known := make(map[string]any, len(d.userFuncs)+len(defs))
	for name, fn := range d.userFuncs {
		known[name] = fn
	}
	compiled := make(map[string]any, len(defs))
	for _, def := range defs {
		if err := def.validate(); err != nil {
			return fmt.Errorf("define functions: %w", err)
		}
		fn, err := def.compile(known)
		if err != nil {
			return fmt.Errorf("define functions: %w", err)
		}
		known[def.Name] = fn
		compiled[def.Name] = fn
	}
	for _, def := range defs {
		if err := d.funcs.RegisterFunction(def.Name, compiled[def.Name]); err != nil {
			return err
		}
	}
	for name, fn := range compiled {
		d.userFuncs[name] = fn
	}
	return nil
}

// LoadFunctions reads a functions file, defines its functions and remembers
// the path for ReloadFunctions. It returns the number of functions defined.
func (d *Document) LoadFunctions(path string) (int, error) {
	defs, err := readFunctionsFile(path)
	if err != nil {
		return 0, err
	}
	if err := d.lock(); err != nil {
		return 0, err
	}
	defer d.unlock()
	if err := d.defineLocked(defs); err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if !slices.Contains(d.funcFiles, path) {
		d.funcFiles = append(d.funcFiles, path)
	}
	d.sh.recompute(d.sh.formulas())
	return len(defs), nil
}

// ReloadFunctions re-reads every file given to LoadFunctions, in load order,
// and returns how many files were read.
func (d *Document) ReloadFunctions() (int, error) {
	if err := d.lock(); err != nil {
		return 0, err
	}
	defer d.unlock()
	if len(d.funcFiles) == 0 {
		return 0, ErrNoFunctionFiles
	}
	for _, path := range d.funcFiles {
		defs, err := readFunctionsFile(path)
		if err != nil {
			return 0, err
		}
		if err := d.defineLocked(defs); err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
	}
	d.sh.recompute(d.sh.formulas())
	return len(d.funcFiles), nil
}

// FunctionFiles returns the paths given to LoadFunctions.
func (d *Document) FunctionFiles() []string {
	defer d.rlock()()
	return slices.Clone(d.funcFiles)
}

func readFunctionsFile(path string) ([]FunctionDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load functions: %w", err)
	}
	defs, err := ReadFunctions(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}
