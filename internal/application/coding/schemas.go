package coding

import "github.com/sashabaranov/go-openai/jsonschema"

var codeSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"code":        {Type: jsonschema.String},
		"description": {Type: jsonschema.String},
	},
	Required:             []string{"code", "description"},
	AdditionalProperties: false,
}

// SpecifiedCodesSchema is {"icd10_codes":[{"code","description"}]}.
var SpecifiedCodesSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"icd10_codes": {Type: jsonschema.Array, Items: &codeSchema},
	},
	Required:             []string{"icd10_codes"},
	AdditionalProperties: false,
}

var procedureSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"code":                 {Type: jsonschema.String},
		"description":          {Type: jsonschema.String},
		"modifier":             {Type: jsonschema.String, Description: "empty when no modifier applies"},
		"description_modifier": {Type: jsonschema.String, Description: "description of the modifier"},
	},
	Required:             []string{"code", "description", "modifier", "description_modifier"},
	AdditionalProperties: false,
}

// ProcedureCodesSchema is {"cpt_codes":[...], "hcpcs_codes":[...]}. It is the
// schema sent to the model; strict output modes need every property listed as
// required.
var ProcedureCodesSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"cpt_codes":   {Type: jsonschema.Array, Items: &procedureSchema},
		"hcpcs_codes": {Type: jsonschema.Array, Items: &codeSchema},
	},
	Required:             []string{"cpt_codes", "hcpcs_codes"},
	AdditionalProperties: false,
}

// procedureResponseSchema checks what comes back. Modifier fields are left
// unchecked: they may be missing or null when no modifier applies.
var procedureResponseSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"cpt_codes":   {Type: jsonschema.Array, Items: &codeSchema},
		"hcpcs_codes": {Type: jsonschema.Array, Items: &codeSchema},
	},
	Required: []string{"cpt_codes", "hcpcs_codes"},
}
