package manifest

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// Load reads a market manifest from path, which names either a single
// CUE file or a directory forming a CUE package. Shape errors stop the
// load; validation errors are collected, so the returned slice reports
// every rule violation at once. The market is returned alongside its
// validation errors to let callers print what did compile.
func Load(path string) (*Market, []error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, []error{fmt.Errorf("manifest %s: %w", path, err)}
	}

	cuectx := cuecontext.New()
	var value cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, []error{fmt.Errorf("manifest %s: no CUE instances loaded", path)}
		}
		inst := instances[0]
		if inst.Err != nil {
			return nil, []error{fmt.Errorf("manifest %s: %w", path, inst.Err)}
		}
		value = cuectx.BuildInstance(inst)
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, []error{fmt.Errorf("manifest %s: %w", path, err)}
		}
		value = cuectx.CompileBytes(data, cue.Filename(path))
	}
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	marketVal := value.LookupPath(cue.ParsePath("market"))
	if !marketVal.Exists() {
		return nil, []error{&CompileError{
			Field:   "market",
			Message: "no market declaration found",
			Pos:     value.Pos(),
		}}
	}

	m, err := Compile(marketVal)
	if err != nil {
		return nil, []error{err}
	}

	var errs []error
	for _, verr := range Validate(m) {
		errs = append(errs, verr)
	}
	if len(errs) > 0 {
		return m, errs
	}
	return m, nil
}
