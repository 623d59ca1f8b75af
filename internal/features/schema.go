package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// FieldOrder lists the wire keys of a RequestRecord in their canonical order.
var FieldOrder = []string{
	"Age", "SleepDuration", "PhysicalActivityLevel", "StressLevel", "HeartRate",
	"DailySteps", "BP", "gender", "BMICategory", "SleepDisorderStatus",
}

const payloadSchemaJSON = `{
	"type": "object",
	"required": ["Age", "SleepDuration", "PhysicalActivityLevel", "StressLevel", "HeartRate",
		"DailySteps", "BP", "gender", "BMICategory", "SleepDisorderStatus"],
	"properties": {
		"Age": {"type": "integer", "minimum": 1},
		"SleepDuration": {"type": "integer"},
		"PhysicalActivityLevel": {"type": "integer"},
		"StressLevel": {"type": "integer"},
		"HeartRate": {"type": "integer"},
		"DailySteps": {"type": "integer"},
		"BP": {"type": "string"},
		"gender": {"type": "string"},
		"BMICategory": {"type": "integer"},
		"SleepDisorderStatus": {"type": "integer"}
	}
}`

var payloadSchema = mustCompileSchema(payloadSchemaJSON)

func mustCompileSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("features: invalid payload schema: %v", err))
	}
	return s
}

// Decode parses a JSON payload into a RequestRecord. Absent keys produce a
// *MissingFieldError; wrongly typed values and malformed JSON produce a
// *ValidationError. Only structure is checked here, Validate handles the
// semantic rules.
func Decode(data []byte) (RequestRecord, error) {
	result, err := payloadSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return RequestRecord{}, &ValidationError{Field: "body", Reason: fmt.Sprintf("Invalid JSON: %v", err)}
	}
	if !result.Valid() {
		return RequestRecord{}, firstSchemaError(result.Errors())
	}

	var rec RequestRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return RequestRecord{}, typeError(typeErr.Field)
		}
		return RequestRecord{}, &ValidationError{Field: "body", Reason: fmt.Sprintf("Invalid JSON: %v", err)}
	}
	return rec, nil
}

// firstSchemaError picks one error deterministically: missing keys win over
// type errors, and ties are broken by FieldOrder.
func firstSchemaError(errs []gojsonschema.ResultError) error {
	var missing, invalid []string
	for _, e := range errs {
		if e.Type() == "required" {
			if prop, ok := e.Details()["property"].(string); ok {
				missing = append(missing, prop)
			}
			continue
		}
		if e.Field() == "(root)" {
			return &ValidationError{Field: "body", Reason: "Request body must be a JSON object."}
		}
		invalid = append(invalid, e.Field())
	}

	if len(missing) > 0 {
		sortByFieldOrder(missing)
		return &MissingFieldError{Field: missing[0]}
	}
	if len(invalid) > 0 {
		sortByFieldOrder(invalid)
		if invalid[0] == "Age" {
			return &ValidationError{Field: "Age", Reason: "Age must be a positive integer."}
		}
		return typeError(invalid[0])
	}
	return &ValidationError{Field: "body", Reason: "Invalid request payload."}
}

func typeError(field string) *ValidationError {
	kind := "an integer"
	if field == "BP" || field == "gender" {
		kind = "a string"
	}
	return &ValidationError{Field: field, Reason: fmt.Sprintf("%s must be %s.", field, kind)}
}

func sortByFieldOrder(fields []string) {
	rank := func(f string) int {
		for i, name := range FieldOrder {
			if name == f {
				return i
			}
		}
		return len(FieldOrder)
	}
	sort.SliceStable(fields, func(i, j int) bool {
		return rank(fields[i]) < rank(fields[j])
	})
}
