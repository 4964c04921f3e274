package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/atk4/report/internal/compiler"
)

// LoadError represents an error that occurred while loading a definition.
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

// Error code constants shared by all commands. Definition validation codes
// (E2xx) come from the compiler package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeDecode      = "E008" // Definition could not be decoded
	ErrCodeDatabase    = "E009" // Database open, seed or query failure
)

// LoadDefinition reads a definition from a .cue or .yaml file, or from a
// directory whose .cue files form one CUE package.
func LoadDefinition(path string) (*compiler.Definition, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definition not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing definition: %v", err)}
	}

	if !info.IsDir() {
		def, err := compiler.LoadFile(path)
		if err != nil {
			return nil, convertCompileError(err, path)
		}
		return def, nil
	}

	cueFiles, err := FindCUEFiles(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	def, err := compiler.Decode(value)
	if err != nil {
		return nil, convertCompileError(err, path)
	}
	return def, nil
}

// LoadCatalog loads and validates a definition. A definition that decodes
// but fails validation is returned as compiler.ValidationErrors; every other
// failure is a *LoadError.
func LoadCatalog(path string) (*compiler.Catalog, error) {
	def, err := LoadDefinition(path)
	if err != nil {
		return nil, err
	}
	return compiler.NewCatalog(def)
}

// FindCUEFiles returns the .cue files directly inside dir. Subdirectories
// are separate packages and are not searched.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".cue") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeDecode,
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	if errors.Is(err, os.ErrNotExist) {
		return &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
	}
	return &LoadError{
		Code:    ErrCodeDecode,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// openCatalog loads a catalog and reports any failure through f. The
// returned error carries the exit code.
func openCatalog(f *OutputFormatter, path string) (*compiler.Catalog, error) {
	catalog, err := LoadCatalog(path)
	if err == nil {
		return catalog, nil
	}

	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		return nil, outputValidationErrors(f, verrs)
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = f.Error(loadErr.Code, loadErr.Message, nil)
		return nil, NewExitError(ExitCommandError, loadErr.Error())
	}
	_ = f.Error(ErrCodeGeneric, err.Error(), nil)
	return nil, WrapExitError(ExitCommandError, "failed to load definition", err)
}
