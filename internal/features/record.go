package features

// RequestRecord is one submitted set of health and lifestyle measurements.
// JSON keys follow the public API contract, including the lower-case "gender".
type RequestRecord struct {
	Age                   int    `json:"Age"`
	SleepDuration         int    `json:"SleepDuration"`
	PhysicalActivityLevel int    `json:"PhysicalActivityLevel"`
	StressLevel           int    `json:"StressLevel"`
	HeartRate             int    `json:"HeartRate"`
	DailySteps            int    `json:"DailySteps"`
	BloodPressure         string `json:"BP"`
	Gender                string `json:"gender"`
	BMICategory           int    `json:"BMICategory"`
	SleepDisorderStatus   int    `json:"SleepDisorderStatus"`
}

// Gender is the normalized form of RequestRecord.Gender.
type Gender int

const (
	Male Gender = iota + 1
	Female
)

// BMICategory values accepted on the wire.
const (
	BMINormal  = 0
	BMIObesity = 1
)

// Normalized is a RequestRecord that passed validation, with its composite
// and categorical fields already parsed.
type Normalized struct {
	Record     RequestRecord
	Gender     Gender
	Overweight bool
	Systolic   int
	Diastolic  int
}
