package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/dyneval/internal/compiler"
	"github.com/roach88/dyneval/internal/ir"
)

// Error code constants shared by all CLI commands. Validation codes
// (E2xx) come from the compiler package.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // CUE load or build failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeNoRecords     = "E006" // Package declares no records
	ErrCodeCompileFailed = "E101" // Record does not compile
	ErrCodeUnknownRecord = "E102" // Named record not declared
)

// LoadResult contains the records loaded from a directory.
type LoadResult struct {
	Records   []compiler.NamedRecord
	FileCount int
}

// Find returns the record declared as name.
func (r *LoadResult) Find(name string) (*ir.Record, bool) {
	for _, nr := range r.Records {
		if nr.Name == name {
			return nr.Record, true
		}
	}
	return nil, false
}

// Names lists the declared record names in order.
func (r *LoadResult) Names() []string {
	out := make([]string, len(r.Records))
	for i, nr := range r.Records {
		out[i] = nr.Name
	}
	return out
}

// LoadError represents an error that occurred while loading records.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadRecords builds the CUE package in dir and compiles its records.
func LoadRecords(dir string) (*LoadResult, *LoadError) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("records directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing records directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := compiler.FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	value, err := compiler.BuildDir(dir)
	if err != nil {
		return nil, convertCompileError(err, ErrCodeLoadFailed)
	}

	records, err := compiler.CompileRecords(value)
	if err != nil {
		return nil, convertCompileError(err, ErrCodeCompileFailed)
	}
	if len(records) == 0 {
		return nil, &LoadError{Code: ErrCodeNoRecords, Message: fmt.Sprintf("no records declared in %s", dir)}
	}

	return &LoadResult{Records: records, FileCount: len(files)}, nil
}

// convertCompileError converts a compiler error to a LoadError with
// position info.
func convertCompileError(err error, code string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    code,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: code, Message: err.Error()}
}
