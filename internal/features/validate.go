package features

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	reasonGender = "Gender must be 'male' or 'female'."
	reasonBMI    = "BMICategory must be 0 (Normal) or 1 (Obesity)."
	reasonBP     = "BP should be in the format 'systolic/diastolic' (e.g., '120/80')"
)

var bloodPressurePattern = regexp.MustCompile(`^([0-9]+)/([0-9]+)$`)

// Validate checks the categorical and composite fields of rec and returns
// its normalized form. Rules run in a fixed order (gender, BMI category,
// blood pressure) and the first failure is returned as a *ValidationError.
func Validate(rec RequestRecord) (Normalized, error) {
	n := Normalized{Record: rec}

	switch strings.ToLower(rec.Gender) {
	case "male":
		n.Gender = Male
	case "female":
		n.Gender = Female
	default:
		return Normalized{}, &ValidationError{Field: "gender", Reason: reasonGender}
	}

	switch rec.BMICategory {
	case BMIObesity:
		n.Overweight = true
	case BMINormal:
		n.Overweight = false
	default:
		return Normalized{}, &ValidationError{Field: "BMICategory", Reason: reasonBMI}
	}

	systolic, diastolic, err := ParseBloodPressure(rec.BloodPressure)
	if err != nil {
		return Normalized{}, err
	}
	n.Systolic = systolic
	n.Diastolic = diastolic

	return n, nil
}

// ParseBloodPressure splits a "systolic/diastolic" reading into its two
// integer parts.
func ParseBloodPressure(bp string) (systolic, diastolic int, err error) {
	m := bloodPressurePattern.FindStringSubmatch(bp)
	if m == nil {
		return 0, 0, &ValidationError{Field: "BP", Reason: reasonBP}
	}
	// Digit runs can still overflow int.
	if systolic, err = strconv.Atoi(m[1]); err != nil {
		return 0, 0, &ValidationError{Field: "BP", Reason: reasonBP}
	}
	if diastolic, err = strconv.Atoi(m[2]); err != nil {
		return 0, 0, &ValidationError{Field: "BP", Reason: reasonBP}
	}
	return systolic, diastolic, nil
}
