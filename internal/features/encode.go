package features

// VectorLen is the number of features the model consumes.
const VectorLen = 13

// Vector is the fixed-order numeric input of the model:
//
//	Age, SleepDuration, PhysicalActivityLevel, StressLevel, HeartRate,
//	DailySteps, SystolicPressure, DiastolicPressure, IsFemale, IsMale,
//	IsOverweight, IsNormalWeight, SleepDisorderStatus
type Vector [VectorLen]float64

// Encode turns a validated record into its feature vector. Each one-hot
// pair has exactly one element set.
func Encode(n Normalized) Vector {
	r := n.Record

	var female, male float64
	if n.Gender == Female {
		female = 1
	} else {
		male = 1
	}

	var overweight, normal float64
	if n.Overweight {
		overweight = 1
	} else {
		normal = 1
	}

	return Vector{
		float64(r.Age),
		float64(r.SleepDuration),
		float64(r.PhysicalActivityLevel),
		float64(r.StressLevel),
		float64(r.HeartRate),
		float64(r.DailySteps),
		float64(n.Systolic),
		float64(n.Diastolic),
		female,
		male,
		overweight,
		normal,
		float64(r.SleepDisorderStatus),
	}
}

// Slice returns the vector as a plain slice, the shape used in logs and
// JSON payloads.
func (v Vector) Slice() []float64 {
	out := make([]float64, VectorLen)
	copy(out, v[:])
	return out
}
