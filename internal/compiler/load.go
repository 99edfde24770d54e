package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/latch/internal/ir"
	"github.com/roach88/latch/internal/lifecycle"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes (E001-E099).
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeRule        = "E010" // Rule failed to compile
	ErrCodeLifecycle   = "E011" // Lifecycle block failed to compile
)

// LoadResult is a compiled rules directory.
type LoadResult struct {
	// Rules in declaration order. When the directory declares no rule
	// block, these are the canonical six built from Config.
	Rules []ir.RuleSpec

	// Config is ir.DefaultConfig overlaid with the lifecycle block.
	Config ir.Config

	// Canonical is true when Rules were generated rather than declared.
	Canonical bool

	FileCount int
}

// LoadError represents an error that occurred during loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDir loads and compiles every CUE file in dir.
//
// The lifecycle block is compiled first so rules that omit thresholds
// inherit its conf_high and conf_low.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result, errs := CompileValue(value, mode)
	if result != nil {
		result.FileCount = len(cueFiles)
	}
	return result, errs
}

// CompileValue compiles an already built CUE value holding rule and
// lifecycle blocks.
func CompileValue(value cue.Value, mode LoadMode) (*LoadResult, []error) {
	var errs []error
	result := &LoadResult{Config: ir.DefaultConfig()}

	if lv := value.LookupPath(cue.ParsePath("lifecycle")); lv.Exists() {
		cfg, err := CompileConfig(lv, result.Config)
		if err != nil {
			errs = append(errs, convertCompileError(err, ErrCodeLifecycle, "lifecycle"))
			if mode == LoadModeFailFast {
				return result, errs
			}
		} else {
			result.Config = cfg
		}
	}

	rulesVal := value.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		result.Rules = lifecycle.CanonicalRules(result.Config)
		result.Canonical = true
		return result, errs
	}

	iter, err := rulesVal.Fields()
	if err != nil {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating rules: %v", err)})
		return result, errs
	}
	for iter.Next() {
		spec, err := CompileRuleWith(iter.Value(), result.Config)
		if err != nil {
			errs = append(errs, convertCompileError(err, ErrCodeRule, "rule."+iter.Label()))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Rules = append(result.Rules, *spec)
	}

	if len(result.Rules) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "rule block declares no rules"})
	}
	return result, errs
}

// FindCUEFiles returns the .cue files directly inside dir, sorted.
// Subdirectories are separate CUE packages and are not descended into.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, code, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    code,
			Message: fmt.Sprintf("%s: %s: %s", context, compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    code,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Load compiles dir and validates its rules and lifecycle config. Every
// problem is joined into the returned error; a non-nil result has passed
// all checks.
func Load(dir string) (*LoadResult, error) {
	result, loadErrs := LoadDir(dir, LoadModeCollectAll)
	if len(loadErrs) > 0 {
		return nil, errors.Join(loadErrs...)
	}

	var errs []error
	for _, ve := range ValidateConfig(result.Config) {
		errs = append(errs, ve)
	}
	for _, ve := range Validate(result.Rules) {
		errs = append(errs, ve)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}
