package kpi

// Programs with a hiring quota.
const (
	ProgramPrimerPaso = "PPP - PROGRAMA PRIMER PASO [2024]"
	ProgramEmpleo26   = "EMPLEO +26"
)

// Cupo returns the hiring quota of a company with the given headcount in a
// program. isEmployer "N" marks a company without employees of record;
// Empleo +26 grants it a single position. Unknown programs get 0.
func Cupo(employees int64, isEmployer, program string) int64 {
	switch program {
	case ProgramPrimerPaso:
		switch {
		case employees < 1:
			return 0
		case employees <= 5:
			return 1
		case employees <= 10:
			return 2
		case employees <= 25:
			return 3
		case employees <= 50:
			return ceilShare(employees, 20)
		default:
			return ceilShare(employees, 10)
		}

	case ProgramEmpleo26:
		if isEmployer == "N" {
			return 1
		}
		switch {
		case employees < 1:
			return 1
		case employees <= 7:
			return 2
		case employees <= 30:
			return ceilShare(employees, 20)
		case employees <= 165:
			return ceilShare(employees, 15)
		default:
			return ceilShare(employees, 10)
		}
	}
	return 0
}

// ceilShare is ⌈pct% × n⌉ computed in integers.
func ceilShare(n, pct int64) int64 {
	return (n*pct + 99) / 100
}
