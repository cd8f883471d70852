package coding

import "errors"

var (
	ErrParentCodeGeneration    = errors.New("parent code generation failed")
	ErrSpecifiedCodeGeneration = errors.New("specified code generation failed")
	ErrProcedureCodeGeneration = errors.New("procedure code generation failed")
)
